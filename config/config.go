package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	EngineConfig      EngineConfig      `json:"engine"`
	TradingConfig     TradingConfig     `json:"trading"`
	ScannerConfig     ScannerConfig     `json:"scanner"`
	RiskConfig        RiskConfig        `json:"risk"`
	BreakerConfig     BreakerConfig     `json:"circuit_breaker"`
	AllocationConfig  AllocationConfig  `json:"allocation"`
	MonitorConfig     MonitorConfig     `json:"monitor"`
	FeedConfig        FeedConfig        `json:"feed"`
	ExchangeConfig    ExchangeConfig    `json:"exchange"`
	PersistenceConfig PersistenceConfig `json:"persistence"`
	ServerConfig      ServerConfig      `json:"server"`
	LoggingConfig     LoggingConfig     `json:"logging"`
}

// EngineConfig holds top-level engine switches
type EngineConfig struct {
	LiveMode        bool    `json:"live_mode"`        // false = paper execution
	StartingBalance float64 `json:"starting_balance"` // session capital, quote units
	ActivePair      string  `json:"active_pair"`      // pair exempt from the liquidity floor
	PrimaryEnabled  bool    `json:"primary_enabled"`  // scored strategy
	SecondEnabled   bool    `json:"second_enabled"`   // multi-mode strategy
	RulesEnabled    bool    `json:"rules_enabled"`    // simple rule strategies
}

type TradingConfig struct {
	PositionSizePct     float64 `json:"position_size_pct"`   // % of portfolio per trade
	StopLossPct         float64 `json:"stop_loss_pct"`       // % below entry
	TP1RMultiple        float64 `json:"tp1_r_multiple"`      // first target as R multiple
	TP2RMultiple        float64 `json:"tp2_r_multiple"`      // second target as R multiple
	MaxOpenPositions    int     `json:"max_open_positions"`
	MaxSameDirection    int     `json:"max_same_direction"`  // correlated-direction cap
	MaxDailyTrades      int     `json:"max_daily_trades"`
	MaxDailyLossPct     float64 `json:"max_daily_loss_pct"`
	PairCooldownSeconds int     `json:"pair_cooldown_seconds"`
	EntryThreshold      float64 `json:"entry_threshold"`     // minimum confluence score
	OvernightCutoffHour int     `json:"overnight_cutoff_hour"`
	TakerFeePct         float64 `json:"taker_fee_pct"`
	ExitSlippagePct     float64 `json:"exit_slippage_pct"`   // applied to monitor exit fills
}

type ScannerConfig struct {
	TickIntervalSeconds int      `json:"tick_interval_seconds"` // fallback timer
	Watchlist           []string `json:"watchlist"`
	MinVolume24h        float64  `json:"min_volume_24h"` // liquidity floor in quote units
	LowLiquidityHours   []int    `json:"low_liquidity_hours"`
	EdgeIntervalMinutes int      `json:"edge_interval_minutes"`
}

type RiskConfig struct {
	MaxSpreadPct         float64 `json:"max_spread_pct"`          // scalp-unsafe threshold
	CorrelationThreshold float64 `json:"correlation_threshold"`   // size-halving cutoff
	MaxSlippagePct       float64 `json:"max_slippage_pct"`        // VWAP deviation limit
	MinNetProfitAbs      float64 `json:"min_net_profit_abs"`      // fee-impact floor, quote units
	OrderCooldownSeconds int     `json:"order_cooldown_seconds"`  // live submissions only
	StrategyPoolCapPct   float64 `json:"strategy_pool_cap_pct"`   // per-trade cap of a pool
	MinNotional          float64 `json:"min_notional"`            // base dust floor
}

type BreakerConfig struct {
	Enabled            bool    `json:"enabled"`
	PauseLossStreak    int     `json:"pause_loss_streak"`     // losses before short pause
	LongPauseStreak    int     `json:"long_pause_loss_streak"`
	PauseMinutes       int     `json:"pause_minutes"`
	LongPauseMinutes   int     `json:"long_pause_minutes"`
	SessionMaxLossPct  float64 `json:"session_max_loss_pct"`  // of starting balance
}

type AllocationConfig struct {
	SplitPrimaryPct float64 `json:"split_primary_pct"` // user base split, ACTIVE threat
	SplitSecondPct  float64 `json:"split_second_pct"`
	BenchmarkPct    float64 `json:"benchmark_pct"` // daily return counted as benchmark-met
	LedgerPath      string  `json:"ledger_path"`
}

type MonitorConfig struct {
	TickMillis      int     `json:"tick_millis"`
	TP1CloseFraction float64 `json:"tp1_close_fraction"`
}

type FeedConfig struct {
	URL                string `json:"url"`
	ReconnectSeconds   int    `json:"reconnect_seconds"`
	MaxReconnectSeconds int   `json:"max_reconnect_seconds"`
}

type ExchangeConfig struct {
	RESTURL   string `json:"rest_url"`
	APIKey    string `json:"api_key"` // required in live mode
	SecretKey string `json:"secret_key"`
}

type PersistenceConfig struct {
	PostgresDSN string `json:"postgres_dsn"`
	RedisAddr   string `json:"redis_addr"`
	RedisDB     int    `json:"redis_db"`
}

type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // console writer when false
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.TradingConfig.PositionSizePct == 0 {
		cfg.TradingConfig.PositionSizePct = 2.0
	}
	if cfg.TradingConfig.StopLossPct == 0 {
		cfg.TradingConfig.StopLossPct = 1.0
	}
	if cfg.TradingConfig.TP1RMultiple == 0 {
		cfg.TradingConfig.TP1RMultiple = 1.0
	}
	if cfg.TradingConfig.TP2RMultiple == 0 {
		cfg.TradingConfig.TP2RMultiple = 2.0
	}
	if cfg.TradingConfig.MaxOpenPositions == 0 {
		cfg.TradingConfig.MaxOpenPositions = 5
	}
	if cfg.TradingConfig.MaxSameDirection == 0 {
		cfg.TradingConfig.MaxSameDirection = 2
	}
	if cfg.TradingConfig.MaxDailyTrades == 0 {
		cfg.TradingConfig.MaxDailyTrades = 40
	}
	if cfg.TradingConfig.MaxDailyLossPct == 0 {
		cfg.TradingConfig.MaxDailyLossPct = 3.0
	}
	if cfg.TradingConfig.EntryThreshold == 0 {
		cfg.TradingConfig.EntryThreshold = 65
	}
	if cfg.TradingConfig.TakerFeePct == 0 {
		cfg.TradingConfig.TakerFeePct = 0.1
	}
	if cfg.TradingConfig.ExitSlippagePct == 0 {
		cfg.TradingConfig.ExitSlippagePct = 0.05
	}
	if cfg.TradingConfig.OvernightCutoffHour == 0 {
		cfg.TradingConfig.OvernightCutoffHour = 22
	}

	if cfg.EngineConfig.StartingBalance == 0 {
		cfg.EngineConfig.StartingBalance = 10_000
	}

	if cfg.ScannerConfig.TickIntervalSeconds == 0 {
		cfg.ScannerConfig.TickIntervalSeconds = 15
	}
	if len(cfg.ScannerConfig.Watchlist) == 0 {
		cfg.ScannerConfig.Watchlist = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}
	}
	if cfg.ScannerConfig.MinVolume24h == 0 {
		cfg.ScannerConfig.MinVolume24h = 1_000_000
	}
	if cfg.ScannerConfig.EdgeIntervalMinutes == 0 {
		cfg.ScannerConfig.EdgeIntervalMinutes = 15
	}

	if cfg.RiskConfig.MaxSpreadPct == 0 {
		cfg.RiskConfig.MaxSpreadPct = 0.15
	}
	if cfg.RiskConfig.CorrelationThreshold == 0 {
		cfg.RiskConfig.CorrelationThreshold = 0.70
	}
	if cfg.RiskConfig.MaxSlippagePct == 0 {
		cfg.RiskConfig.MaxSlippagePct = 0.30
	}
	if cfg.RiskConfig.MinNetProfitAbs == 0 {
		cfg.RiskConfig.MinNetProfitAbs = 0.50
	}
	if cfg.RiskConfig.OrderCooldownSeconds == 0 {
		cfg.RiskConfig.OrderCooldownSeconds = 5
	}
	if cfg.RiskConfig.StrategyPoolCapPct == 0 {
		cfg.RiskConfig.StrategyPoolCapPct = 15.0
	}
	if cfg.RiskConfig.MinNotional == 0 {
		cfg.RiskConfig.MinNotional = 10.0
	}

	cfg.BreakerConfig.Enabled = true
	if cfg.BreakerConfig.PauseLossStreak == 0 {
		cfg.BreakerConfig.PauseLossStreak = 3
	}
	if cfg.BreakerConfig.LongPauseStreak == 0 {
		cfg.BreakerConfig.LongPauseStreak = 5
	}
	if cfg.BreakerConfig.PauseMinutes == 0 {
		cfg.BreakerConfig.PauseMinutes = 15
	}
	if cfg.BreakerConfig.LongPauseMinutes == 0 {
		cfg.BreakerConfig.LongPauseMinutes = 60
	}
	if cfg.BreakerConfig.SessionMaxLossPct == 0 {
		cfg.BreakerConfig.SessionMaxLossPct = 1.0
	}

	if cfg.AllocationConfig.SplitPrimaryPct == 0 {
		cfg.AllocationConfig.SplitPrimaryPct = 70
	}
	if cfg.AllocationConfig.SplitSecondPct == 0 {
		cfg.AllocationConfig.SplitSecondPct = 30
	}
	if cfg.AllocationConfig.BenchmarkPct == 0 {
		cfg.AllocationConfig.BenchmarkPct = 0.15
	}
	if cfg.AllocationConfig.LedgerPath == "" {
		cfg.AllocationConfig.LedgerPath = "ledger.json"
	}

	if cfg.MonitorConfig.TickMillis == 0 {
		cfg.MonitorConfig.TickMillis = 500
	}
	if cfg.MonitorConfig.TP1CloseFraction == 0 {
		cfg.MonitorConfig.TP1CloseFraction = 0.5
	}

	if cfg.FeedConfig.ReconnectSeconds == 0 {
		cfg.FeedConfig.ReconnectSeconds = 2
	}
	if cfg.FeedConfig.MaxReconnectSeconds == 0 {
		cfg.FeedConfig.MaxReconnectSeconds = 60
	}

	if cfg.ExchangeConfig.RESTURL == "" {
		cfg.ExchangeConfig.RESTURL = "https://api.binance.com"
	}

	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.EngineConfig.LiveMode = getEnvOrDefault("ENGINE_LIVE_MODE", boolStr(cfg.EngineConfig.LiveMode)) == "true"
	cfg.EngineConfig.ActivePair = getEnvOrDefault("ENGINE_ACTIVE_PAIR", cfg.EngineConfig.ActivePair)
	if raw := os.Getenv("ENGINE_STARTING_BALANCE"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			cfg.EngineConfig.StartingBalance = parsed
		}
	}
	cfg.EngineConfig.PrimaryEnabled = getEnvOrDefault("ENGINE_PRIMARY_ENABLED", "true") == "true"
	cfg.EngineConfig.SecondEnabled = getEnvOrDefault("ENGINE_SECOND_ENABLED", "true") == "true"
	cfg.EngineConfig.RulesEnabled = getEnvOrDefault("ENGINE_RULES_ENABLED", "false") == "true"

	if watchlist := os.Getenv("SCANNER_WATCHLIST"); watchlist != "" {
		cfg.ScannerConfig.Watchlist = strings.Split(watchlist, ",")
	}
	cfg.ScannerConfig.TickIntervalSeconds = getEnvIntOrDefault("SCANNER_TICK_SECONDS", cfg.ScannerConfig.TickIntervalSeconds)

	cfg.FeedConfig.URL = getEnvOrDefault("FEED_URL", cfg.FeedConfig.URL)

	cfg.ExchangeConfig.RESTURL = getEnvOrDefault("EXCHANGE_REST_URL", cfg.ExchangeConfig.RESTURL)
	cfg.ExchangeConfig.APIKey = getEnvOrDefault("EXCHANGE_API_KEY", cfg.ExchangeConfig.APIKey)
	cfg.ExchangeConfig.SecretKey = getEnvOrDefault("EXCHANGE_SECRET_KEY", cfg.ExchangeConfig.SecretKey)

	cfg.PersistenceConfig.PostgresDSN = getEnvOrDefault("POSTGRES_DSN", cfg.PersistenceConfig.PostgresDSN)
	cfg.PersistenceConfig.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.PersistenceConfig.RedisAddr)
	cfg.PersistenceConfig.RedisDB = getEnvIntOrDefault("REDIS_DB", cfg.PersistenceConfig.RedisDB)

	cfg.ServerConfig.Enabled = getEnvOrDefault("WEB_ENABLED", "true") == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultStr(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolStr(cfg.LoggingConfig.JSONFormat)) == "true"
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.TradingConfig.PositionSizePct <= 0 || c.TradingConfig.PositionSizePct > 100 {
		return fmt.Errorf("position_size_pct must be in (0,100], got %.2f", c.TradingConfig.PositionSizePct)
	}
	if c.TradingConfig.StopLossPct <= 0 {
		return fmt.Errorf("stop_loss_pct must be positive, got %.2f", c.TradingConfig.StopLossPct)
	}
	if c.TradingConfig.TP2RMultiple < c.TradingConfig.TP1RMultiple {
		return fmt.Errorf("tp2_r_multiple %.2f below tp1_r_multiple %.2f",
			c.TradingConfig.TP2RMultiple, c.TradingConfig.TP1RMultiple)
	}
	if c.TradingConfig.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive")
	}
	if c.AllocationConfig.SplitPrimaryPct+c.AllocationConfig.SplitSecondPct != 100 {
		return fmt.Errorf("capital split must sum to 100, got %.0f+%.0f",
			c.AllocationConfig.SplitPrimaryPct, c.AllocationConfig.SplitSecondPct)
	}
	if c.EngineConfig.LiveMode && c.FeedConfig.URL == "" {
		return fmt.Errorf("live mode requires feed url")
	}
	if c.EngineConfig.LiveMode && (c.ExchangeConfig.APIKey == "" || c.ExchangeConfig.SecretKey == "") {
		return fmt.Errorf("live mode requires exchange api credentials")
	}
	return nil
}

// TickInterval returns the fallback scan period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.ScannerConfig.TickIntervalSeconds) * time.Second
}

// MonitorTick returns the position monitor period.
func (c *Config) MonitorTick() time.Duration {
	return time.Duration(c.MonitorConfig.TickMillis) * time.Millisecond
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func defaultStr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
