// Package api serves the operator surface: engine status and controls
// over HTTP, prometheus metrics, and a websocket event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/circuit"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/engine"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/events"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/ledger"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/persistence"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/scanner"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string
	Port int
}

// Deps are the engine components the API exposes. Store may be nil
// when PostgreSQL is not configured.
type Deps struct {
	State   EngineControl
	Breaker *circuit.Breaker
	Ledger  *ledger.Ledger
	Monitor *position.Monitor
	Scanner *scanner.Scanner
	Store   *persistence.Store
	Bus     *events.EventBus
}

// EngineControl is what the start/stop and status endpoints need.
type EngineControl interface {
	Snapshot() engine.Snapshot
	SetEnabled(enabled bool)
}

// Server wires gin routes over the engine.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	deps       Deps
	hub        *WSHub
	logger     zerolog.Logger
}

func NewServer(config ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router: router,
		deps:   deps,
		hub:    NewWSHub(logger),
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	if deps.Bus != nil {
		deps.Bus.SubscribeAll(s.hub.BroadcastEvent)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", s.handleWebSocket)

	apiGroup := s.router.Group("/api")
	{
		apiGroup.GET("/status", s.handleStatus)
		apiGroup.GET("/positions", s.handlePositions)
		apiGroup.GET("/ledger", s.handleLedger)
		apiGroup.GET("/breaker", s.handleBreaker)
		apiGroup.POST("/breaker/reset", s.handleBreakerReset)
		apiGroup.POST("/engine/start", s.handleEngineStart)
		apiGroup.POST("/engine/stop", s.handleEngineStop)
		apiGroup.GET("/trades", s.handleTrades)
	}
}

// Start runs the HTTP server and the websocket hub.
func (s *Server) Start() {
	go s.hub.Run()
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("api server failed")
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"engine":     s.deps.State.Snapshot(),
		"ws_clients": s.hub.ClientCount(),
	}
	if s.deps.Breaker != nil {
		status["circuit_breaker"] = s.deps.Breaker.GetStats()
	}
	if s.deps.Scanner != nil {
		status["scanner"] = s.deps.Scanner.Stats()
	}
	if s.deps.Monitor != nil {
		status["monitor"] = s.deps.Monitor.Stats()
	}
	if s.deps.Ledger != nil {
		status["threat_level"] = s.deps.Ledger.EvaluateStatus()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handlePositions(c *gin.Context) {
	var open []*position.Position
	if s.deps.Monitor != nil {
		open = s.deps.Monitor.Open()
	}
	c.JSON(http.StatusOK, gin.H{"positions": open, "count": len(open)})
}

func (s *Server) handleLedger(c *gin.Context) {
	if s.deps.Ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":      s.deps.Ledger.Entries(),
		"threat_level": s.deps.Ledger.EvaluateStatus(),
	})
}

func (s *Server) handleBreaker(c *gin.Context) {
	if s.deps.Breaker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "breaker not configured"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Breaker.GetStats())
}

// handleBreakerReset is the explicit operator override: the only way
// out of a session disable.
func (s *Server) handleBreakerReset(c *gin.Context) {
	if s.deps.Breaker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "breaker not configured"})
		return
	}
	var req struct {
		StartingBalance float64 `json:"starting_balance"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.StartingBalance <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "starting_balance must be positive"})
		return
	}
	s.deps.Breaker.Reset(req.StartingBalance)
	s.logger.Info().Float64("starting_balance", req.StartingBalance).Msg("circuit breaker reset by operator")
	c.JSON(http.StatusOK, s.deps.Breaker.GetStats())
}

func (s *Server) handleEngineStart(c *gin.Context) {
	s.deps.State.SetEnabled(true)
	events.BroadcastSystemStatus(events.EventEngineStarted, map[string]interface{}{"source": "api"})
	s.logger.Info().Msg("engine started by operator")
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

func (s *Server) handleEngineStop(c *gin.Context) {
	s.deps.State.SetEnabled(false)
	events.BroadcastSystemStatus(events.EventEngineStopped, map[string]interface{}{"source": "api"})
	s.logger.Info().Msg("engine stopped by operator")
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not configured"})
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	trades, err := s.deps.Store.RecentTrades(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}
