package strategy

import (
	"fmt"
	"time"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
)

// Breakout is a simple rule strategy: buy when price breaks above the
// last completed candle's high on sufficient volume.
type Breakout struct {
	meta      Metadata
	minVolume float64
}

// NewBreakout constructs the breakout rule strategy.
func NewBreakout(minVolume float64) (*Breakout, error) {
	b := &Breakout{
		meta: Metadata{
			Key:       "breakout",
			SignalTTL: 15 * time.Second,
			MaxHold:   6 * time.Hour,
			Regimes:   []string{"expansion"},
		},
		minVolume: minVolume,
	}
	if err := b.meta.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Breakout) Metadata() Metadata {
	return b.meta
}

func (b *Breakout) CheckEntry(ctx *Context, params Params) (*Signal, error) {
	candles := ctx.Entry.Candles
	if len(candles) < 2 || ctx.Entry.Ticker == nil {
		return nil, nil
	}

	prev := candles[len(candles)-2]
	if b.minVolume > 0 && prev.Volume < b.minVolume {
		return nil, nil
	}

	price := ctx.Entry.Ticker.Price
	if price <= prev.High {
		return nil, nil
	}

	sig := newSignal(b.meta, ctx.Entry.Pair, Long, price, ctx.Now)
	sig.Confidence = 0.55
	sig.Reason = fmt.Sprintf("price %.4f broke above last candle high %.4f", price, prev.High)
	applyBrackets(sig, params)
	return sig, nil
}

func (b *Breakout) CheckExit(pos *position.Position, ctx *Context) (*ExitSignal, error) {
	return nil, nil
}

// SupportBounce buys a touch of the recent swing low when it holds.
type SupportBounce struct {
	meta     Metadata
	lookback int
}

// NewSupportBounce constructs the support-bounce rule strategy.
func NewSupportBounce(lookback int) (*SupportBounce, error) {
	if lookback <= 0 {
		lookback = 20
	}
	s := &SupportBounce{
		meta: Metadata{
			Key:       "support_bounce",
			SignalTTL: 15 * time.Second,
			MaxHold:   6 * time.Hour,
			Regimes:   []string{"ranging"},
		},
		lookback: lookback,
	}
	if err := s.meta.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SupportBounce) Metadata() Metadata {
	return s.meta
}

func (s *SupportBounce) CheckEntry(ctx *Context, params Params) (*Signal, error) {
	candles := ctx.Entry.Candles
	if len(candles) < s.lookback+1 || ctx.Entry.Ticker == nil {
		return nil, nil
	}

	support := lowestLow(candles[len(candles)-1-s.lookback : len(candles)-1])
	price := ctx.Entry.Ticker.Price

	// Within 0.3% above support and the current bar closed green.
	last := ctx.Entry.LastCandle()
	dist := (price - support) / support * 100
	if dist < 0 || dist > 0.3 || last.Close <= last.Open {
		return nil, nil
	}

	sig := newSignal(s.meta, ctx.Entry.Pair, Long, price, ctx.Now)
	sig.Confidence = 0.5
	sig.Reason = fmt.Sprintf("bounce %.2f%% above %d-bar support %.4f", dist, s.lookback, support)
	applyBrackets(sig, params)
	return sig, nil
}

func (s *SupportBounce) CheckExit(pos *position.Position, ctx *Context) (*ExitSignal, error) {
	return nil, nil
}

func lowestLow(candles []market.Candle) float64 {
	low := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < low {
			low = c.Low
		}
	}
	return low
}

// NewRuleRegistry builds the simple rule strategies the engine can run
// alongside the scored and multi-mode strategies.
func NewRuleRegistry(minVolume float64) ([]Strategy, error) {
	breakout, err := NewBreakout(minVolume)
	if err != nil {
		return nil, err
	}
	bounce, err := NewSupportBounce(20)
	if err != nil {
		return nil, err
	}
	return []Strategy{breakout, bounce}, nil
}
