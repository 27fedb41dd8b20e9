package strategy

import (
	"fmt"
	"time"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
)

// ScoredKey identifies the primary strategy
const ScoredKey = "scored"

// Component weights, summing to 1.0. Trend carries the most.
const (
	trendWeight    = 0.30
	momentumWeight = 0.25
	volumeWeight   = 0.20
	squeezeWeight  = 0.15
	bookWeight     = 0.10
)

// ScoreBreakdown is the per-component view behind one composite score
type ScoreBreakdown struct {
	Trend    float64 `json:"trend"`
	Momentum float64 `json:"momentum"`
	Volume   float64 `json:"volume"`
	Squeeze  float64 `json:"squeeze"`
	Book     float64 `json:"book"`
	Total    float64 `json:"total"` // 0-100
}

// Scored is the primary confluence-scored strategy: it composes
// independent 0-1 component scores into a 0-100 total and enters long
// when the total clears the configured threshold.
type Scored struct {
	meta Metadata
}

// NewScored constructs the primary strategy.
func NewScored() (*Scored, error) {
	s := &Scored{
		meta: Metadata{
			Key:              ScoredKey,
			LatencySensitive: true,
			SignalTTL:        20 * time.Second,
			MaxHold:          8 * time.Hour,
			Regimes:          []string{"trending", "expansion"},
		},
	}
	if err := s.meta.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scored) Metadata() Metadata {
	return s.meta
}

// Score computes the composite confluence score for display and entry.
func (s *Scored) Score(ctx *Context) ScoreBreakdown {
	bd := ScoreBreakdown{
		Trend:    trendComponent(ctx.Entry, ctx.Trend),
		Momentum: momentumComponent(ctx.Entry),
		Volume:   volumeComponent(ctx.Entry),
		Squeeze:  squeezeComponent(ctx.Entry),
		Book:     bookComponent(ctx.Entry),
	}
	bd.Total = (bd.Trend*trendWeight +
		bd.Momentum*momentumWeight +
		bd.Volume*volumeWeight +
		bd.Squeeze*squeezeWeight +
		bd.Book*bookWeight) * 100
	return bd
}

func (s *Scored) CheckEntry(ctx *Context, params Params) (*Signal, error) {
	last := ctx.Entry.LastCandle()
	if last == nil || ctx.Entry.Ticker == nil {
		return nil, fmt.Errorf("scored: no price data for %s", ctx.Entry.Pair)
	}

	bd := s.Score(ctx)
	if bd.Total < params.EntryThreshold {
		return nil, nil
	}

	sig := newSignal(s.meta, ctx.Entry.Pair, Long, ctx.Entry.Ticker.Price, ctx.Now)
	sig.Score = bd.Total
	sig.Confidence = bd.Total / 100
	sig.Reason = fmt.Sprintf("confluence %.0f (trend %.2f, momentum %.2f, volume %.2f)",
		bd.Total, bd.Trend, bd.Momentum, bd.Volume)
	applyBrackets(sig, params)
	return sig, nil
}

// CheckExit closes when the confluence that justified the entry has
// collapsed well below the entry threshold.
func (s *Scored) CheckExit(pos *position.Position, ctx *Context) (*ExitSignal, error) {
	bd := s.Score(ctx)
	if bd.Total < 30 {
		return &ExitSignal{
			PositionID: pos.ID,
			Reason:     fmt.Sprintf("confluence collapsed to %.0f", bd.Total),
		}, nil
	}
	return nil, nil
}

// trendComponent blends EMA alignment on both timeframes with ADX.
func trendComponent(entry, trend *market.Snapshot) float64 {
	score := emaAlignScore(entry)*0.5 + emaAlignScore(trend)*0.3

	adx, ok := trend.Indicator(market.IndADX)
	if ok && adx >= 25 {
		score += 0.2
	} else if ok && adx >= 20 {
		score += 0.1
	}
	return clamp01(score)
}

// momentumComponent reads RSI: rising but not overbought is best.
func momentumComponent(s *market.Snapshot) float64 {
	rsi, ok := s.Indicator(market.IndRSI)
	if !ok {
		return 0.5 // neutral without data
	}
	switch {
	case rsi >= 55 && rsi <= 70:
		return 1.0
	case rsi >= 50 && rsi < 55:
		return 0.7
	case rsi > 70 && rsi <= 80:
		return 0.4
	case rsi >= 40 && rsi < 50:
		return 0.3
	default:
		return 0.1
	}
}

func volumeComponent(s *market.Snapshot) float64 {
	last := s.LastCandle()
	avg, ok := s.Indicator(market.IndVolSMA)
	if last == nil || !ok || avg <= 0 {
		return 0.5
	}
	ratio := last.Volume / avg
	switch {
	case ratio >= 2.0:
		return 1.0
	case ratio >= 1.3:
		return 0.8
	case ratio >= 1.0:
		return 0.6
	case ratio >= 0.7:
		return 0.3
	default:
		return 0.1
	}
}

// squeezeComponent rewards band expansion out of a contraction.
func squeezeComponent(s *market.Snapshot) float64 {
	now, ok := s.Indicator(market.IndBBWidth)
	if !ok || now <= 0 {
		return 0.5
	}
	past, ok := s.IndicatorAt(market.IndBBWidth, 10)
	if !ok || past <= 0 {
		return 0.5
	}
	ratio := now / past
	switch {
	case ratio >= 1.5:
		return 1.0
	case ratio >= 1.1:
		return 0.7
	case ratio >= 0.9:
		return 0.4
	default:
		return 0.2
	}
}

// bookComponent measures top-of-book imbalance toward the bid.
func bookComponent(s *market.Snapshot) float64 {
	if s.OrderBook == nil || len(s.OrderBook.Bids) == 0 || len(s.OrderBook.Asks) == 0 {
		return 0.5
	}

	depth := 5
	bidQty, askQty := 0.0, 0.0
	for i := 0; i < depth && i < len(s.OrderBook.Bids); i++ {
		bidQty += s.OrderBook.Bids[i].Qty
	}
	for i := 0; i < depth && i < len(s.OrderBook.Asks); i++ {
		askQty += s.OrderBook.Asks[i].Qty
	}
	if bidQty+askQty == 0 {
		return 0.5
	}
	return clamp01(bidQty / (bidQty + askQty))
}

func emaAlignScore(s *market.Snapshot) float64 {
	fast, okF := s.Indicator(market.IndEMAFast)
	slow, okS := s.Indicator(market.IndEMASlow)
	last := s.LastCandle()
	if !okF || !okS || last == nil {
		return 0
	}
	switch {
	case fast > slow && last.Close > fast:
		return 1
	case fast > slow:
		return 0.5
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
