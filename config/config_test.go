package config

import "testing"

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestDefaultsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.EngineConfig.StartingBalance != 10_000 {
		t.Errorf("starting balance = %v", cfg.EngineConfig.StartingBalance)
	}
	if len(cfg.ScannerConfig.Watchlist) == 0 {
		t.Error("default watchlist empty")
	}
	if cfg.MonitorConfig.TickMillis != 500 {
		t.Errorf("monitor tick = %dms", cfg.MonitorConfig.TickMillis)
	}
}

func TestValidateRejectsBadSizing(t *testing.T) {
	cfg := defaultConfig()
	cfg.TradingConfig.PositionSizePct = 150
	if err := cfg.Validate(); err == nil {
		t.Error("position size over 100% should fail validation")
	}
}

func TestValidateRejectsInvertedTargets(t *testing.T) {
	cfg := defaultConfig()
	cfg.TradingConfig.TP1RMultiple = 2.0
	cfg.TradingConfig.TP2RMultiple = 1.0
	if err := cfg.Validate(); err == nil {
		t.Error("TP2 below TP1 should fail validation")
	}
}

func TestValidateRejectsBrokenSplit(t *testing.T) {
	cfg := defaultConfig()
	cfg.AllocationConfig.SplitPrimaryPct = 60
	cfg.AllocationConfig.SplitSecondPct = 30
	if err := cfg.Validate(); err == nil {
		t.Error("split not summing to 100 should fail validation")
	}
}

func TestLiveModeRequirements(t *testing.T) {
	cfg := defaultConfig()
	cfg.EngineConfig.LiveMode = true
	if err := cfg.Validate(); err == nil {
		t.Error("live mode without feed url should fail validation")
	}

	cfg.FeedConfig.URL = "wss://stream.example.com/ws"
	if err := cfg.Validate(); err == nil {
		t.Error("live mode without api credentials should fail validation")
	}

	cfg.ExchangeConfig.APIKey = "key"
	cfg.ExchangeConfig.SecretKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("fully configured live mode should validate: %v", err)
	}
}
