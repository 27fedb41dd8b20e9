package strategy

import (
	"fmt"
	"time"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/edge"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
)

// MultiModeKey identifies the secondary strategy
const MultiModeKey = "multimode"

// ModeSource supplies the currently selected sub-mode per pair.
// The edge detector satisfies this.
type ModeSource interface {
	SelectedMode(pair string) edge.Mode
}

// MultiMode is the secondary strategy. The edge detector picks which
// of its sub-modes is live per pair; each sub-mode has its own entry
// heuristic, stop scale, and hold window.
type MultiMode struct {
	meta  Metadata
	modes ModeSource
}

// NewMultiMode constructs the secondary strategy around a mode source.
func NewMultiMode(modes ModeSource) (*MultiMode, error) {
	if modes == nil {
		return nil, fmt.Errorf("multimode: mode source is required")
	}
	m := &MultiMode{
		meta: Metadata{
			Key:              MultiModeKey,
			LatencySensitive: true,
			SignalTTL:        10 * time.Second,
			MaxHold:          4 * time.Hour,
			Regimes:          []string{"ranging", "trending"},
		},
		modes: modes,
	}
	if err := m.meta.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MultiMode) Metadata() Metadata {
	return m.meta
}

func (m *MultiMode) CheckEntry(ctx *Context, params Params) (*Signal, error) {
	if ctx.Entry.Ticker == nil || ctx.Entry.LastCandle() == nil {
		return nil, fmt.Errorf("multimode: no price data for %s", ctx.Entry.Pair)
	}

	mode := m.modes.SelectedMode(ctx.Entry.Pair)
	if mode == edge.ModeNone {
		return nil, nil
	}

	var sig *Signal
	switch mode {
	case edge.ModeScalp:
		sig = m.checkScalpEntry(ctx)
	case edge.ModeSwing:
		sig = m.checkSwingEntry(ctx)
	case edge.ModePosition:
		sig = m.checkPositionEntry(ctx)
	}
	if sig == nil {
		return nil, nil
	}

	sig.Mode = string(mode)
	applyBrackets(sig, scaleParams(params, mode))
	return sig, nil
}

// CheckExit closes a position whose sub-mode is no longer selected for
// the pair and whose trade has gone nowhere.
func (m *MultiMode) CheckExit(pos *position.Position, ctx *Context) (*ExitSignal, error) {
	if pos.Mode == "" || ctx.Entry.Ticker == nil {
		return nil, nil
	}

	current := m.modes.SelectedMode(pos.Pair)
	if string(current) == pos.Mode {
		return nil, nil
	}
	if pos.UnrealizedPnL(ctx.Entry.Ticker.Price) < 0 {
		return &ExitSignal{
			PositionID: pos.ID,
			Reason:     fmt.Sprintf("mode flipped %s -> %s while underwater", pos.Mode, current),
		}, nil
	}
	return nil, nil
}

// checkScalpEntry buys a momentum dip in a ranging book with bid support.
func (m *MultiMode) checkScalpEntry(ctx *Context) *Signal {
	rsi, ok := ctx.Entry.Indicator(market.IndRSI)
	if !ok || rsi >= 35 {
		return nil
	}
	if bookComponent(ctx.Entry) < 0.55 {
		return nil
	}

	sig := newSignal(m.meta, ctx.Entry.Pair, Long, ctx.Entry.Ticker.Price, ctx.Now)
	sig.Confidence = 0.6 + (35-rsi)/100
	sig.Reason = fmt.Sprintf("scalp dip: rsi %.1f with bid-side depth", rsi)
	return sig
}

// checkSwingEntry buys a confirmed breakout of the prior candle high
// with volume behind it.
func (m *MultiMode) checkSwingEntry(ctx *Context) *Signal {
	candles := ctx.Entry.Candles
	if len(candles) < 2 {
		return nil
	}
	prev := candles[len(candles)-2]
	price := ctx.Entry.Ticker.Price
	if price <= prev.High {
		return nil
	}
	if emaAlignScore(ctx.Entry) < 1 {
		return nil
	}

	last := ctx.Entry.LastCandle()
	avg, ok := ctx.Entry.Indicator(market.IndVolSMA)
	if !ok || avg <= 0 || last.Volume/avg < 1.3 {
		return nil
	}

	sig := newSignal(m.meta, ctx.Entry.Pair, Long, price, ctx.Now)
	sig.Confidence = 0.7
	sig.Reason = fmt.Sprintf("swing breakout above %.4f on %.1fx volume", prev.High, last.Volume/avg)
	return sig
}

// checkPositionEntry buys a pullback to the fast EMA inside a mature
// higher-timeframe trend.
func (m *MultiMode) checkPositionEntry(ctx *Context) *Signal {
	adx, ok := ctx.Trend.Indicator(market.IndADX)
	if !ok || adx < 25 {
		return nil
	}
	if emaAlignScore(ctx.Trend) < 1 {
		return nil
	}

	fast, ok := ctx.Entry.Indicator(market.IndEMAFast)
	if !ok || fast <= 0 {
		return nil
	}
	price := ctx.Entry.Ticker.Price
	dist := (price - fast) / fast * 100
	if dist < -0.1 || dist > 0.5 {
		return nil
	}

	sig := newSignal(m.meta, ctx.Entry.Pair, Long, price, ctx.Now)
	sig.Confidence = 0.65
	sig.Reason = fmt.Sprintf("trend pullback to fast EMA (adx %.0f)", adx)
	return sig
}

// Per-mode hold windows and stop scales. Scalp runs tight and short;
// position mode rides the higher timeframe.
var modeHold = map[edge.Mode]time.Duration{
	edge.ModeScalp:    30 * time.Minute,
	edge.ModeSwing:    4 * time.Hour,
	edge.ModePosition: 24 * time.Hour,
}

var modeStopScale = map[edge.Mode]float64{
	edge.ModeScalp:    0.5,
	edge.ModeSwing:    1.0,
	edge.ModePosition: 1.5,
}

// MinNotionalFactor scales the pipeline's dust floor per mode.
func MinNotionalFactor(mode string) float64 {
	switch edge.Mode(mode) {
	case edge.ModeSwing:
		return 2.0
	case edge.ModePosition:
		return 3.0
	default:
		return 1.0
	}
}

// HoldDuration resolves a signal's max-hold window: mode-specific for
// the multi-mode strategy, the strategy default otherwise.
func HoldDuration(sig *Signal, meta Metadata) time.Duration {
	if sig.Mode != "" {
		if d, ok := modeHold[edge.Mode(sig.Mode)]; ok {
			return d
		}
	}
	return meta.MaxHold
}

func scaleParams(params Params, mode edge.Mode) Params {
	if scale, ok := modeStopScale[mode]; ok {
		params.StopLossPct *= scale
	}
	return params
}
