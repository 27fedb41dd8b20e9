package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/allocation"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/edge"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/engine"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/events"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/execution"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/ledger"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/metrics"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/ratchet"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/risk"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/strategy"
)

// Gate decides whether trading is currently allowed.
type Gate interface {
	CanTrade() (bool, string)
}

// Book is the monitor surface the scanner needs: tracking new fills
// and reading the open set.
type Book interface {
	Track(pos *position.Position) error
	Open() []*position.Position
	Count() int
	CountDirection(dir position.Direction) int
	RequestExit(positionID string, kind position.ExitKind)
}

// Pipeline evaluates entry signals against the guard chain.
type Pipeline interface {
	Evaluate(in *risk.Input) *risk.Result
	MarkSubmitted(now time.Time)
}

// Config tunes the tick loop and entry gating.
type Config struct {
	TickInterval     time.Duration
	Watchlist        []string
	MinVolume24h     float64 // liquidity floor, quote units
	ActivePair       string  // exempt from the liquidity floor
	EntryTimeframe   string
	TrendTimeframe   string
	MaxOpenPositions int
	MaxSameDirection int
	MaxDailyTrades   int
	MaxDailyLossPct  float64       // of starting balance
	PairCooldown     time.Duration // minimum gap between entries on one pair
	OvernightHour    int           // UTC hour after which no new entries open
	Split            allocation.SplitConfig
	Params           strategy.Params
	LiveMode         bool
}

// Deps wires the scanner to the rest of the engine. Feed, Gate,
// Detector, Ratchet, Ledger and SaveSignal may be nil.
type Deps struct {
	State      engine.Mutator
	Provider   market.Provider
	Feed       *market.Feed
	Gate       Gate
	Pipeline   Pipeline
	Book       Book
	Bridge     execution.Bridge
	Detector   *edge.Detector
	Ratchet    *ratchet.Ratchet
	Ledger     *ledger.Ledger
	SaveSignal func(sig *strategy.Signal, result *risk.Result)
	Primary    strategy.Strategy
	Second     strategy.Strategy
	Rules      []strategy.Strategy
}

// Scanner drives one evaluation tick at a time from a fallback timer
// and feed candle notices. All shared-state mutation funnels through
// its sequential per-pair processing.
type Scanner struct {
	config Config
	deps   Deps
	logger zerolog.Logger
	arena  *arena

	lastEntry map[string]time.Time // pair cooldown, scheduler-goroutine only

	inFlight atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(config Config, deps Deps, logger zerolog.Logger) *Scanner {
	if config.TickInterval <= 0 {
		config.TickInterval = 30 * time.Second
	}
	if config.EntryTimeframe == "" {
		config.EntryTimeframe = "15m"
	}
	if config.TrendTimeframe == "" {
		config.TrendTimeframe = "1h"
	}
	return &Scanner{
		config:    config,
		deps:      deps,
		logger:    logger.With().Str("component", "scanner").Logger(),
		arena:     newArena(),
		lastEntry: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the scheduler goroutine.
func (s *Scanner) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info().
		Dur("interval", s.config.TickInterval).
		Strs("watchlist", s.config.Watchlist).
		Msg("scanner started")
}

// Stop tears down the scheduler. In-flight order submissions are not
// cancelled; their results are ignored once the engine has stopped.
func (s *Scanner) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// run is the single scheduler: the fallback ticker and feed candle
// notices both request ticks, and Tick's in-flight flag guarantees at
// most one evaluation at a time.
func (s *Scanner) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	var notices <-chan market.CandleNotice
	var status <-chan bool
	if s.deps.Feed != nil {
		notices = s.deps.Feed.Notices()
		status = s.deps.Feed.StatusChanges()
	}

	for {
		select {
		case <-s.stopCh:
			return

		case <-ticker.C:
			s.Tick(time.Now())

		case notice, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			s.logger.Debug().Str("pair", notice.Pair).Msg("candle notice")
			s.Tick(time.Now())

		case connected, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			s.deps.State.SetFeedConnected(connected)
			if connected {
				metrics.FeedConnected.Set(1)
				s.logger.Info().Msg("feed reconnected, scanning resumed")
				s.Tick(time.Now())
			} else {
				metrics.FeedConnected.Set(0)
				s.logger.Warn().Msg("feed disconnected, scanning paused")
			}
		}
	}
}

// Tick runs one evaluation pass. Concurrent calls collapse into one:
// a tick already in flight makes this a no-op.
func (s *Scanner) Tick(now time.Time) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer s.inFlight.Store(false)

	start := time.Now()
	defer func() {
		metrics.TicksTotal.Inc()
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	snap := s.deps.State.Snapshot()
	if !snap.Enabled {
		return
	}
	if s.deps.Feed != nil && !snap.FeedConnected {
		s.logger.Debug().Msg("tick skipped, feed disconnected")
		return
	}
	if s.deps.Gate != nil {
		if ok, reason := s.deps.Gate.CanTrade(); !ok {
			s.logger.Info().Str("reason", reason).Msg("tick gated by circuit breaker")
			return
		}
	}

	entriesAllowed := true
	if s.config.MaxDailyTrades > 0 && snap.DailyTrades >= s.config.MaxDailyTrades {
		entriesAllowed = false
	}
	if s.config.MaxDailyLossPct > 0 && snap.StartingBalance > 0 &&
		snap.DailyLoss >= snap.StartingBalance*s.config.MaxDailyLossPct/100 {
		entriesAllowed = false
	}
	if s.config.OvernightHour > 0 && now.UTC().Hour() >= s.config.OvernightHour {
		entriesAllowed = false
	}

	for _, pair := range s.arena.retain(s.config.Watchlist) {
		if s.deps.Detector != nil {
			s.deps.Detector.Evict(pair)
		}
	}

	// Pairs run sequentially; a fill on one pair changes the balance
	// and open-position counts the next pair sees.
	for _, pair := range s.config.Watchlist {
		s.scanPair(pair, entriesAllowed, now)
	}

	s.deps.State.MarkTick(now)
	metrics.OpenPositions.Set(float64(s.deps.Book.Count()))
}

func (s *Scanner) scanPair(pair string, entriesAllowed bool, now time.Time) {
	entrySnap, err := s.deps.Provider.Snapshot(pair, s.config.EntryTimeframe)
	if err != nil || entrySnap == nil {
		s.logger.Debug().Str("pair", pair).Err(err).Msg("no market data, pair skipped")
		return
	}
	trendSnap, err := s.deps.Provider.Snapshot(pair, s.config.TrendTimeframe)
	if err != nil {
		trendSnap = nil
	}

	if s.config.MinVolume24h > 0 && pair != s.config.ActivePair {
		if entrySnap.Ticker == nil || entrySnap.Ticker.Volume24h < s.config.MinVolume24h {
			return
		}
	}

	// Dedup by candle timestamp: a repeat candle still gets exit
	// checks and score updates, but no fresh entry attempt.
	fresh := true
	if c := entrySnap.LastCandle(); c != nil {
		fresh = s.arena.observe(pair, c.CloseTime)
	}

	if s.deps.Detector != nil && s.deps.Second != nil && s.deps.Detector.Due(pair, now) {
		allowed := edge.AllModes()
		if s.deps.Ratchet != nil {
			allowed = s.deps.Ratchet.AllowedModes()
		}
		s.deps.Detector.Run(entrySnap, trendSnap, allowed, now)
	}

	ctx := &strategy.Context{Entry: entrySnap, Trend: trendSnap, Now: now}
	for _, strat := range s.activeStrategies() {
		s.evaluateStrategy(pair, strat, ctx, entriesAllowed && fresh, now)
	}
}

func (s *Scanner) activeStrategies() []strategy.Strategy {
	out := make([]strategy.Strategy, 0, 2+len(s.deps.Rules))
	if s.deps.Primary != nil {
		out = append(out, s.deps.Primary)
	}
	if s.deps.Second != nil {
		out = append(out, s.deps.Second)
	}
	out = append(out, s.deps.Rules...)
	return out
}

// evaluateStrategy runs one strategy against one pair. A panic or
// error here is contained: it never aborts the tick for other
// strategies or pairs.
func (s *Scanner) evaluateStrategy(pair string, strat strategy.Strategy, ctx *strategy.Context, tryEntry bool, now time.Time) {
	meta := strat.Metadata()
	defer func() {
		if r := recover(); r != nil {
			metrics.StrategyErrors.WithLabelValues(meta.Key).Inc()
			s.logger.Error().
				Str("pair", pair).
				Str("strategy", meta.Key).
				Interface("panic", r).
				Msg("strategy evaluation panicked")
		}
	}()

	s.checkExit(pair, strat, meta, ctx)

	if !tryEntry {
		return
	}
	s.tryEntry(pair, strat, meta, ctx, now)
}

func (s *Scanner) checkExit(pair string, strat strategy.Strategy, meta strategy.Metadata, ctx *strategy.Context) {
	for _, pos := range s.deps.Book.Open() {
		if pos.Pair != pair || pos.Strategy != meta.Key {
			continue
		}
		exit, err := strat.CheckExit(pos, ctx)
		if err != nil {
			metrics.StrategyErrors.WithLabelValues(meta.Key).Inc()
			s.logger.Warn().Err(err).Str("pair", pair).Str("strategy", meta.Key).Msg("exit check failed")
			continue
		}
		if exit != nil {
			s.logger.Info().
				Str("pair", pair).
				Str("strategy", meta.Key).
				Str("reason", exit.Reason).
				Msg("strategy exit requested")
			s.deps.Book.RequestExit(pos.ID, position.ExitStrategy)
		}
	}
}

func (s *Scanner) tryEntry(pair string, strat strategy.Strategy, meta strategy.Metadata, ctx *strategy.Context, now time.Time) {
	if s.config.MaxOpenPositions > 0 && s.deps.Book.Count() >= s.config.MaxOpenPositions {
		return
	}
	if s.config.PairCooldown > 0 {
		if last, ok := s.lastEntry[pair]; ok && now.Sub(last) < s.config.PairCooldown {
			return
		}
	}

	sig, err := strat.CheckEntry(ctx, s.config.Params)
	if err != nil {
		metrics.StrategyErrors.WithLabelValues(meta.Key).Inc()
		s.logger.Warn().Err(err).Str("pair", pair).Str("strategy", meta.Key).Msg("entry check failed")
		return
	}
	if sig == nil {
		return
	}

	metrics.SignalsTotal.WithLabelValues(meta.Key).Inc()
	events.BroadcastSignal(map[string]interface{}{"signal": sig})

	// A stale signal is discarded, never retried; the next candle
	// re-evaluates from scratch.
	if sig.Expired(now) {
		s.logger.Debug().Str("pair", pair).Str("strategy", meta.Key).Msg("signal expired before evaluation")
		return
	}

	if s.config.MaxSameDirection > 0 {
		dir := position.Direction(sig.Direction)
		if s.deps.Book.CountDirection(dir) >= s.config.MaxSameDirection {
			s.logger.Debug().
				Str("pair", pair).
				Str("direction", string(sig.Direction)).
				Msg("same-direction cap reached")
			return
		}
	}

	// Re-read shared state: earlier pairs in this tick may have filled.
	snap := s.deps.State.Snapshot()
	result := s.deps.Pipeline.Evaluate(&risk.Input{
		Signal:            sig,
		Snapshot:          ctx.Entry,
		PortfolioValue:    snap.PortfolioValue,
		OpenPositions:     s.openForRisk(),
		StrategyPool:      s.poolFor(meta.Key, snap.PortfolioValue),
		RatchetMultiplier: s.ratchetMultiplier(meta.Key),
		ThreatMultiplier:  s.threatMultiplier(meta.Key),
		LatencySensitive:  meta.LatencySensitive,
		LiveMode:          s.config.LiveMode,
		Now:               now,
	})

	if s.deps.SaveSignal != nil {
		s.deps.SaveSignal(sig, result)
	}
	if result.Blocked {
		metrics.BlocksTotal.WithLabelValues(result.Guard).Inc()
		return
	}

	s.submitEntry(sig, meta, result, now)
}

func (s *Scanner) submitEntry(sig *strategy.Signal, meta strategy.Metadata, result *risk.Result, now time.Time) {
	if !s.deps.State.ReserveBalance(result.PositionSize) {
		s.logger.Warn().
			Str("pair", sig.Pair).
			Float64("size", result.PositionSize).
			Msg("insufficient available balance")
		return
	}

	side := execution.SideBuy
	if sig.Direction == strategy.Short {
		side = execution.SideSell
	}
	orderCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	fill, err := s.deps.Bridge.SubmitOrder(orderCtx, &execution.OrderRequest{
		Pair:   sig.Pair,
		Side:   side,
		Type:   execution.TypeMarket,
		Qty:    result.BaseSize,
		Reason: sig.Reason,
	})
	if err != nil {
		s.deps.State.ReleaseBalance(result.PositionSize)
		s.logger.Error().Err(err).Str("pair", sig.Pair).Msg("entry order failed")
		return
	}
	if s.config.LiveMode {
		s.deps.Pipeline.MarkSubmitted(now)
	}

	pos := &position.Position{
		ID:                   position.NewID(),
		Pair:                 sig.Pair,
		Strategy:             sig.StrategyKey,
		Mode:                 sig.Mode,
		Direction:            position.Direction(sig.Direction),
		EntryPrice:           fill.Price,
		Qty:                  fill.Qty,
		ReservedNotional:     result.PositionSize,
		StopLoss:             sig.StopLoss,
		TP1Price:             sig.TP1,
		TP2Price:             sig.TP2,
		TrailingStopDistance: sig.TrailDistance,
		MaxHold:              strategy.HoldDuration(sig, meta),
		EntryTime:            fill.Timestamp,
	}
	if err := s.deps.Book.Track(pos); err != nil {
		// The pipeline's pair exclusion makes this unreachable within
		// one sequential tick; losing the race still must not leak the
		// reservation.
		s.deps.State.ReleaseBalance(result.PositionSize)
		s.logger.Error().Err(err).Str("pair", sig.Pair).Msg("failed to track filled position")
		return
	}

	s.lastEntry[sig.Pair] = now

	s.logger.Info().
		Str("pair", sig.Pair).
		Str("strategy", sig.StrategyKey).
		Str("direction", string(sig.Direction)).
		Float64("entry", fill.Price).
		Float64("qty", fill.Qty).
		Str("reason", sig.Reason).
		Msg("position entered")
}

// openForRisk maps the monitor's open set into the pipeline's view.
func (s *Scanner) openForRisk() []risk.OpenPosition {
	open := s.deps.Book.Open()
	out := make([]risk.OpenPosition, 0, len(open))
	for _, pos := range open {
		out = append(out, risk.OpenPosition{
			Pair:      pos.Pair,
			Strategy:  pos.Strategy,
			Direction: string(pos.Direction),
		})
	}
	return out
}

// poolFor resolves the strategy's allocated capital for this tick.
// Rule strategies draw from the primary pool.
func (s *Scanner) poolFor(key string, portfolio float64) float64 {
	threat := ledger.ThreatActive
	if s.deps.Ledger != nil {
		threat = s.deps.Ledger.EvaluateStatus()
	}
	alloc := allocation.Allocate(portfolio, s.config.Split, threat,
		s.deps.Primary != nil || len(s.deps.Rules) > 0, s.deps.Second != nil)
	if key == strategy.MultiModeKey {
		return alloc.PoolSecond
	}
	return alloc.PoolPrimary
}

// Ratchet and threat scaling apply to the secondary strategy only.
func (s *Scanner) ratchetMultiplier(key string) float64 {
	if key != strategy.MultiModeKey || s.deps.Ratchet == nil {
		return 1.0
	}
	return s.deps.Ratchet.SizeMultiplier()
}

func (s *Scanner) threatMultiplier(key string) float64 {
	if key != strategy.MultiModeKey || s.deps.Ledger == nil {
		return 1.0
	}
	return s.deps.Ledger.EvaluateStatus().SizeMultiplier()
}

// Stats summarizes the scanner for the status endpoint.
func (s *Scanner) Stats() map[string]interface{} {
	return map[string]interface{}{
		"watchlist":     s.config.Watchlist,
		"tick_interval": s.config.TickInterval.String(),
		"dedup_pairs":   s.arena.size(),
		"live_mode":     s.config.LiveMode,
	}
}
