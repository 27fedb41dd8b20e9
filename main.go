package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/config"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/allocation"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/api"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/circuit"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/edge"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/engine"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/events"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/execution"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/ledger"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/logging"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/metrics"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/persistence"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/ratchet"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/risk"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/scanner"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/strategy"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})

	logger.Info().
		Bool("live_mode", cfg.EngineConfig.LiveMode).
		Float64("starting_balance", cfg.EngineConfig.StartingBalance).
		Strs("watchlist", cfg.ScannerConfig.Watchlist).
		Msg("engine starting")

	bus := events.NewEventBus()
	events.SetDefault(bus)

	// Persistence layers degrade independently: Redis falls back to
	// in-memory snapshots, a missing Postgres DSN disables history.
	snapshots := persistence.NewSnapshotStore(
		cfg.PersistenceConfig.RedisAddr, cfg.PersistenceConfig.RedisDB, logger)

	var store *persistence.Store
	if cfg.PersistenceConfig.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err = persistence.NewStore(ctx, cfg.PersistenceConfig.PostgresDSN, logger)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("trade history store unavailable, continuing without it")
			store = nil
		}
	}

	indicators := market.NewIndicatorWorker(2, logger)
	indicators.Start()
	provider := market.NewRESTProvider(cfg.ExchangeConfig.RESTURL, indicators, logger)

	var feed *market.Feed
	if cfg.FeedConfig.URL != "" {
		feed = market.NewFeed(market.FeedConfig{
			URL:                 cfg.FeedConfig.URL,
			ReconnectInterval:   time.Duration(cfg.FeedConfig.ReconnectSeconds) * time.Second,
			MaxReconnectBackoff: time.Duration(cfg.FeedConfig.MaxReconnectSeconds) * time.Second,
		}, logger)
		feed.Start()
	}

	state := engine.NewState(cfg.EngineConfig.StartingBalance)
	state.SetEnabled(true)
	state.SetActivePair(cfg.EngineConfig.ActivePair)

	breaker := circuit.NewBreaker(&circuit.Config{
		Enabled:           cfg.BreakerConfig.Enabled,
		PauseLossStreak:   cfg.BreakerConfig.PauseLossStreak,
		LongPauseStreak:   cfg.BreakerConfig.LongPauseStreak,
		PauseMinutes:      cfg.BreakerConfig.PauseMinutes,
		LongPauseMinutes:  cfg.BreakerConfig.LongPauseMinutes,
		SessionMaxLossPct: cfg.BreakerConfig.SessionMaxLossPct,
	}, cfg.EngineConfig.StartingBalance)

	ledgerBook, err := ledger.New(cfg.AllocationConfig.LedgerPath, cfg.AllocationConfig.BenchmarkPct)
	if err != nil {
		logger.Warn().Err(err).Msg("performance ledger unavailable, threat level stays neutral")
		ledgerBook = nil
	}

	secondPool := cfg.EngineConfig.StartingBalance * cfg.AllocationConfig.SplitSecondPct / 100
	rat := ratchet.New(secondPool)

	detector := edge.NewDetector(
		time.Duration(cfg.ScannerConfig.EdgeIntervalMinutes)*time.Minute, logger)

	primary, second, rules := buildStrategies(cfg, detector, logger)

	pipeline := risk.NewPipeline(risk.Config{
		PositionSizePct:      cfg.TradingConfig.PositionSizePct,
		CorrelationThreshold: cfg.RiskConfig.CorrelationThreshold,
		MaxSpreadPct:         cfg.RiskConfig.MaxSpreadPct,
		MaxSlippagePct:       cfg.RiskConfig.MaxSlippagePct,
		TakerFeePct:          cfg.TradingConfig.TakerFeePct,
		MinNetProfitAbs:      cfg.RiskConfig.MinNetProfitAbs,
		OrderCooldown:        time.Duration(cfg.RiskConfig.OrderCooldownSeconds) * time.Second,
		StrategyPoolCapPct:   cfg.RiskConfig.StrategyPoolCapPct,
		MinNotional:          cfg.RiskConfig.MinNotional,
		LowLiquidityHours:    cfg.ScannerConfig.LowLiquidityHours,
	}, logger)

	bridge := buildBridge(cfg, provider, logger)

	onClose := func(result *position.TradeResult) {
		// Release exactly what the scanner reserved; the fill notional
		// drifts from it by slippage. Recovered positions without a
		// recorded reservation fall back to the fill notional.
		notional := result.ReservedNotional
		if notional <= 0 {
			notional = result.EntryPrice * result.Qty
		}
		state.ApplyTradeResult(result, notional)
		breaker.RecordTrade(result.PnL, result.Fees)
		if result.Strategy == strategy.MultiModeKey {
			rat.RecordPnL(result.PnL)
		}
		metrics.TradesTotal.WithLabelValues(string(result.ExitKind)).Inc()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		snapshots.Delete(ctx, result.Pair)
		if store != nil {
			if err := store.SaveTrade(ctx, result); err != nil {
				logger.Error().Err(err).Str("pair", result.Pair).Msg("failed to persist trade result")
			}
		}
	}

	monitor := position.NewMonitor(position.MonitorConfig{
		TickInterval:     cfg.MonitorTick(),
		TP1CloseFraction: cfg.MonitorConfig.TP1CloseFraction,
		ExitSlippagePct:  cfg.TradingConfig.ExitSlippagePct,
	}, bridge, provider.Price, onClose, logger)

	recoverPositions(snapshots, monitor, logger)
	monitor.Start()

	snapshotStop := make(chan struct{})
	go snapshotLoop(snapshots, monitor, snapshotStop)

	var gate scanner.Gate
	if cfg.BreakerConfig.Enabled {
		gate = breaker
	}
	var saveSignal func(*strategy.Signal, *risk.Result)
	if store != nil {
		saveSignal = store.SaveSignal
	}

	scn := scanner.New(scanner.Config{
		TickInterval:     cfg.TickInterval(),
		Watchlist:        cfg.ScannerConfig.Watchlist,
		MinVolume24h:     cfg.ScannerConfig.MinVolume24h,
		ActivePair:       cfg.EngineConfig.ActivePair,
		EntryTimeframe:   "15m",
		TrendTimeframe:   "1h",
		MaxOpenPositions: cfg.TradingConfig.MaxOpenPositions,
		MaxSameDirection: cfg.TradingConfig.MaxSameDirection,
		MaxDailyTrades:   cfg.TradingConfig.MaxDailyTrades,
		MaxDailyLossPct:  cfg.TradingConfig.MaxDailyLossPct,
		PairCooldown:     time.Duration(cfg.TradingConfig.PairCooldownSeconds) * time.Second,
		OvernightHour:    cfg.TradingConfig.OvernightCutoffHour,
		Split: allocation.SplitConfig{
			PrimaryPct: cfg.AllocationConfig.SplitPrimaryPct,
			SecondPct:  cfg.AllocationConfig.SplitSecondPct,
		},
		Params: strategy.Params{
			StopLossPct:    cfg.TradingConfig.StopLossPct,
			TP1RMultiple:   cfg.TradingConfig.TP1RMultiple,
			TP2RMultiple:   cfg.TradingConfig.TP2RMultiple,
			EntryThreshold: cfg.TradingConfig.EntryThreshold,
		},
		LiveMode: cfg.EngineConfig.LiveMode,
	}, scanner.Deps{
		State:      state,
		Provider:   provider,
		Feed:       feed,
		Gate:       gate,
		Pipeline:   pipeline,
		Book:       monitor,
		Bridge:     bridge,
		Detector:   detector,
		Ratchet:    rat,
		Ledger:     ledgerBook,
		SaveSignal: saveSignal,
		Primary:    primary,
		Second:     second,
		Rules:      rules,
	}, logger)
	scn.Start()

	rolloverStop := make(chan struct{})
	go rolloverLoop(state, ledgerBook, rat, rolloverStop, logger)

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(api.ServerConfig{
			Host: cfg.ServerConfig.Host,
			Port: cfg.ServerConfig.Port,
		}, api.Deps{
			State:   state,
			Breaker: breaker,
			Ledger:  ledgerBook,
			Monitor: monitor,
			Scanner: scn,
			Store:   store,
			Bus:     bus,
		}, logger)
		server.Start()
		logger.Info().Str("host", cfg.ServerConfig.Host).Int("port", cfg.ServerConfig.Port).
			Msg("operator API listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	close(rolloverStop)
	close(snapshotStop)
	scn.Stop()
	monitor.Stop()
	if feed != nil {
		feed.Stop()
	}
	indicators.Stop()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
		cancel()
	}

	// final snapshot so a restart can recover open positions
	persistOpenPositions(snapshots, monitor)
	if store != nil {
		store.Close()
	}
	if err := snapshots.Close(); err != nil {
		logger.Error().Err(err).Msg("snapshot store close error")
	}

	logger.Info().Msg("engine stopped")
}

func buildStrategies(cfg *config.Config, detector *edge.Detector, logger zerolog.Logger) (strategy.Strategy, strategy.Strategy, []strategy.Strategy) {
	var primary, second strategy.Strategy

	if cfg.EngineConfig.PrimaryEnabled {
		s, err := strategy.NewScored()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build scored strategy")
		}
		primary = s
	}
	if cfg.EngineConfig.SecondEnabled {
		s, err := strategy.NewMultiMode(detector)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build multi-mode strategy")
		}
		second = s
	}

	var rules []strategy.Strategy
	if cfg.EngineConfig.RulesEnabled {
		built, err := strategy.NewRuleRegistry(cfg.ScannerConfig.MinVolume24h)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build rule strategies")
		}
		rules = built
	}
	return primary, second, rules
}

func buildBridge(cfg *config.Config, provider *market.RESTProvider, logger zerolog.Logger) execution.Bridge {
	if !cfg.EngineConfig.LiveMode {
		paperCfg := execution.DefaultPaperConfig()
		paperCfg.TakerFeePct = cfg.TradingConfig.TakerFeePct
		return execution.NewPaperBridge(provider.Price, paperCfg, logger)
	}

	broker := execution.NewRESTBroker(
		cfg.ExchangeConfig.RESTURL,
		cfg.ExchangeConfig.APIKey,
		cfg.ExchangeConfig.SecretKey,
		logger)
	return execution.NewLiveBridge(broker, execution.DefaultLiveConfig(), logger)
}

// recoverPositions hands persisted open positions back to the monitor
// after a restart.
func recoverPositions(snapshots *persistence.SnapshotStore, monitor *position.Monitor, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recovered, err := snapshots.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("position recovery failed")
		return
	}
	for _, pos := range recovered {
		if err := monitor.Track(pos); err != nil {
			logger.Error().Err(err).Str("pair", pos.Pair).Msg("could not re-track recovered position")
			continue
		}
		logger.Info().Str("pair", pos.Pair).Str("strategy", pos.Strategy).
			Float64("entry", pos.EntryPrice).Msg("recovered open position")
	}
}

// snapshotLoop persists open positions every few seconds so a crash
// loses at most one interval of trailing-stop movement.
func snapshotLoop(snapshots *persistence.SnapshotStore, monitor *position.Monitor, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			persistOpenPositions(snapshots, monitor)
		}
	}
}

func persistOpenPositions(snapshots *persistence.SnapshotStore, monitor *position.Monitor) {
	open := monitor.Open()
	if len(open) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pos := range open {
		_ = snapshots.Save(ctx, pos)
	}
}

// rolloverLoop closes out the trading day at UTC midnight: the day's
// outcome is recorded in the performance ledger, then daily counters
// and the profit ratchet reset.
func rolloverLoop(state *engine.State, ledgerBook *ledger.Ledger, rat *ratchet.Ratchet, stop <-chan struct{}, logger zerolog.Logger) {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)

		select {
		case <-stop:
			return
		case <-time.After(next.Sub(now)):
		}

		snap := state.Snapshot()
		if ledgerBook != nil {
			pnlPct := 0.0
			if snap.StartingBalance > 0 {
				pnlPct = snap.DailyPnL / snap.StartingBalance * 100
			}
			winRate := 0.0
			if snap.DailyTrades > 0 {
				winRate = float64(snap.DailyWins) / float64(snap.DailyTrades) * 100
			}
			if err := ledgerBook.RecordDay(ledger.DayResult{
				Date:         next.Add(-24 * time.Hour),
				PnL:          snap.DailyPnL,
				PnLPct:       pnlPct,
				Trades:       snap.DailyTrades,
				WinRate:      winRate,
				DominantMode: snap.DominantMode,
			}); err != nil {
				logger.Error().Err(err).Msg("failed to record daily result")
			}
		}

		state.ResetDay()
		rat.RollDay()
		logger.Info().Float64("day_pnl", snap.DailyPnL).Int("trades", snap.DailyTrades).
			Msg("daily rollover complete")
	}
}
