package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/guards"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/strategy"
)

// Guard names in evaluation order
const (
	GuardSpread      = "spread"
	GuardCorrelation = "correlation"
	GuardSizing      = "sizing"
	GuardSlippage    = "slippage"
	GuardFeeImpact   = "fee_impact"
	GuardRateLimit   = "rate_limit"
	GuardPairLock    = "pair_exclusion"
)

// Config holds risk pipeline thresholds
type Config struct {
	PositionSizePct      float64 // % of portfolio per trade
	CorrelationThreshold float64
	MaxSpreadPct         float64 // scalp-unsafe spread threshold
	MaxSlippagePct       float64
	TakerFeePct          float64
	MinNetProfitAbs      float64
	OrderCooldown        time.Duration // live submissions only
	StrategyPoolCapPct   float64       // per-trade cap of a strategy pool
	MinNotional          float64       // base dust floor
	LowLiquidityHours    []int         // UTC hours with halved sizing
}

// OpenPosition is the pipeline's view of one open position
type OpenPosition struct {
	Pair      string
	Strategy  string
	Direction string
}

// Input carries one signal plus the state snapshot it is judged against.
// The scanner re-reads state between pairs, so consecutive inputs in
// one tick see each other's fills.
type Input struct {
	Signal            *strategy.Signal
	Snapshot          *market.Snapshot
	PortfolioValue    float64
	OpenPositions     []OpenPosition
	StrategyPool      float64 // allocated capital for the signal's strategy
	RatchetMultiplier float64
	ThreatMultiplier  float64 // secondary strategy threat sizing
	LatencySensitive  bool
	LiveMode          bool
	Now               time.Time
}

// Result is the pipeline's accept/block decision
type Result struct {
	Blocked      bool     `json:"blocked"`
	Guard        string   `json:"guard,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	PositionSize float64  `json:"position_size"` // quote units
	BaseSize     float64  `json:"base_size"`     // positionSize / currentPrice
	CurrentPrice float64  `json:"current_price"`
	Evaluated    []string `json:"evaluated"` // guards run, in order

	// corrFactor is the correlation guard's size scale, consumed by the
	// sizing guard. Zero means the correlation guard has not run.
	corrFactor float64
}

// Pipeline orchestrates the guards into a single accept/block decision.
// Guards run strictly in order; the first failure short-circuits with
// no side effects.
type Pipeline struct {
	config Config
	logger zerolog.Logger

	mu            sync.Mutex
	lastLiveOrder time.Time
}

// NewPipeline creates a risk pipeline.
func NewPipeline(config Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		config: config,
		logger: logger.With().Str("component", "risk").Logger(),
	}
}

type guardStep struct {
	name string
	run  func(*Input, *Result) (blocked bool, reason string)
}

// Evaluate runs the guard chain for one signal.
func (p *Pipeline) Evaluate(in *Input) *Result {
	result := &Result{}

	if in.Signal == nil || in.Snapshot == nil {
		result.Blocked = true
		result.Reason = "missing signal or market snapshot"
		return result
	}
	if in.Snapshot.Ticker == nil || in.Snapshot.Ticker.Price <= 0 {
		result.Blocked = true
		result.Reason = fmt.Sprintf("no current price for %s", in.Signal.Pair)
		return result
	}
	result.CurrentPrice = in.Snapshot.Ticker.Price

	steps := []guardStep{
		{GuardSpread, p.checkSpread},
		{GuardCorrelation, p.checkCorrelation},
		{GuardSizing, p.checkSizing},
		{GuardSlippage, p.checkSlippage},
		{GuardFeeImpact, p.checkFeeImpact},
		{GuardRateLimit, p.checkRateLimit},
		{GuardPairLock, p.checkPairExclusion},
	}

	for _, step := range steps {
		result.Evaluated = append(result.Evaluated, step.name)
		if blocked, reason := step.run(in, result); blocked {
			result.Blocked = true
			result.Guard = step.name
			result.Reason = reason
			p.logger.Info().
				Str("pair", in.Signal.Pair).
				Str("strategy", in.Signal.StrategyKey).
				Str("guard", step.name).
				Str("reason", reason).
				Msg("signal blocked")
			return result
		}
	}

	result.BaseSize = result.PositionSize / result.CurrentPrice
	return result
}

// MarkSubmitted records a live order submission for the rate limiter.
func (p *Pipeline) MarkSubmitted(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastLiveOrder = now
}

func (p *Pipeline) checkSpread(in *Input, _ *Result) (bool, string) {
	if !in.LatencySensitive {
		return false, ""
	}

	book := in.Snapshot.OrderBook
	if book == nil {
		return true, "no order book for spread check"
	}

	spread := guards.EvaluateSpread(book.BestBid(), book.BestAsk(), p.config.MaxSpreadPct)
	if !spread.ScalpSafe {
		return true, spread.Reason
	}
	return false, ""
}

// checkCorrelation only scales; the factor is applied during sizing.
func (p *Pipeline) checkCorrelation(in *Input, result *Result) (bool, string) {
	openPairs := make([]string, 0, len(in.OpenPositions))
	for _, pos := range in.OpenPositions {
		openPairs = append(openPairs, pos.Pair)
	}

	corr := guards.EvaluateCorrelation(in.Signal.Pair, openPairs, p.config.CorrelationThreshold)
	result.corrFactor = corr.SizeFactor
	return false, ""
}

func (p *Pipeline) checkSizing(in *Input, result *Result) (bool, string) {
	corrFactor := result.corrFactor
	if corrFactor <= 0 {
		corrFactor = 1.0
	}

	size := in.PortfolioValue * p.config.PositionSizePct / 100
	size *= corrFactor

	// Per-trade cap inside the strategy's allocated pool.
	if in.StrategyPool > 0 {
		poolCap := in.StrategyPool * p.config.StrategyPoolCapPct / 100
		if size > poolCap {
			size = poolCap
		}
	}

	if in.RatchetMultiplier > 0 {
		size *= in.RatchetMultiplier
	}
	if in.ThreatMultiplier > 0 {
		size *= in.ThreatMultiplier
	}

	if p.isLowLiquidityHour(in.Now) {
		size *= 0.5
	}

	if size <= 0 {
		return true, "position size is zero after scaling"
	}

	floor := p.config.MinNotional * strategy.MinNotionalFactor(in.Signal.Mode)
	if size < floor {
		return true, fmt.Sprintf("size %.2f below minimum notional %.2f", size, floor)
	}

	result.PositionSize = size
	return false, ""
}

func (p *Pipeline) checkSlippage(in *Input, result *Result) (bool, string) {
	book := in.Snapshot.OrderBook
	if book == nil {
		return true, "no order book for slippage check"
	}

	levels := book.Asks
	if in.Signal.Direction == strategy.Short {
		levels = book.Bids
	}

	baseQty := result.PositionSize / result.CurrentPrice
	slip := guards.EstimateSlippage(levels, baseQty, p.config.MaxSlippagePct)
	if slip.Blocked {
		return true, slip.Reason
	}
	return false, ""
}

func (p *Pipeline) checkFeeImpact(in *Input, result *Result) (bool, string) {
	if !in.LiveMode {
		return false, ""
	}

	fee := guards.EvaluateFeeImpact(in.Signal.EntryPrice, in.Signal.TP1,
		result.PositionSize, p.config.TakerFeePct, p.config.MinNetProfitAbs)
	if fee.Blocked {
		return true, fee.Reason
	}
	return false, ""
}

func (p *Pipeline) checkRateLimit(in *Input, _ *Result) (bool, string) {
	if !in.LiveMode {
		return false, ""
	}

	p.mu.Lock()
	last := p.lastLiveOrder
	p.mu.Unlock()

	if !last.IsZero() {
		elapsed := in.Now.Sub(last)
		if elapsed < p.config.OrderCooldown {
			return true, fmt.Sprintf("order cooldown: %v since last submission, need %v",
				elapsed.Round(time.Millisecond), p.config.OrderCooldown)
		}
	}
	return false, ""
}

func (p *Pipeline) checkPairExclusion(in *Input, _ *Result) (bool, string) {
	for _, pos := range in.OpenPositions {
		if pos.Pair == in.Signal.Pair {
			return true, fmt.Sprintf("pair %s already held by strategy %s", pos.Pair, pos.Strategy)
		}
	}
	return false, ""
}

func (p *Pipeline) isLowLiquidityHour(now time.Time) bool {
	hour := now.UTC().Hour()
	for _, h := range p.config.LowLiquidityHours {
		if h == hour {
			return true
		}
	}
	return false
}
