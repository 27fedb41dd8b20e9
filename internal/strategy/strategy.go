package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
)

// Direction of a proposed entry
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Signal is a proposed entry produced by a strategy's CheckEntry.
// It is consumed at most once by the risk pipeline and discarded,
// never retried, once its TTL elapses.
type Signal struct {
	ID            string    `json:"id"`
	StrategyKey   string    `json:"strategy_key"`
	Pair          string    `json:"pair"`
	Direction     Direction `json:"direction"`
	Confidence    float64   `json:"confidence"` // 0-1
	Reason        string    `json:"reason"`
	Score         float64   `json:"score,omitempty"` // scored strategy only
	Mode          string    `json:"mode,omitempty"`  // multi-mode strategy only
	EntryPrice    float64   `json:"entry_price"`
	StopLoss      float64   `json:"stop_loss"`
	TP1           float64   `json:"tp1"`
	TP2           float64   `json:"tp2"`
	TrailDistance float64   `json:"trail_distance"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the signal's TTL has elapsed.
func (s *Signal) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ExitSignal is a strategy-driven request to close an open position.
type ExitSignal struct {
	PositionID string `json:"position_id"`
	Reason     string `json:"reason"`
}

// Metadata describes a strategy's fixed capabilities and risk traits.
// All fields are validated at construction; there is no runtime
// capability probing.
type Metadata struct {
	Key              string
	LatencySensitive bool          // spread guard enforced
	SignalTTL        time.Duration // entry signal lifetime
	MaxHold          time.Duration // position monitor force-exit age
	Regimes          []string      // market regimes the strategy expects
}

// Context is the per-pair market state handed to strategy evaluation.
type Context struct {
	Entry *market.Snapshot // fast timeframe
	Trend *market.Snapshot // higher timeframe
	Now   time.Time
}

// Params are the user-tunable knobs shared by strategies.
type Params struct {
	StopLossPct    float64 // % below entry
	TP1RMultiple   float64
	TP2RMultiple   float64
	EntryThreshold float64 // minimum score for the scored strategy
}

// Strategy is a signal generator. CheckEntry returns nil when there is
// no entry; CheckExit returns nil when the position should stay open.
type Strategy interface {
	Metadata() Metadata
	CheckEntry(ctx *Context, params Params) (*Signal, error)
	CheckExit(pos *position.Position, ctx *Context) (*ExitSignal, error)
}

// Validate rejects metadata the engine cannot schedule.
func (m Metadata) Validate() error {
	if m.Key == "" {
		return fmt.Errorf("strategy key must not be empty")
	}
	if m.SignalTTL <= 0 {
		return fmt.Errorf("strategy %s: signal TTL must be positive", m.Key)
	}
	if m.MaxHold <= 0 {
		return fmt.Errorf("strategy %s: max hold must be positive", m.Key)
	}
	return nil
}

// newSignal stamps the common fields of an entry signal.
func newSignal(meta Metadata, pair string, direction Direction, entry float64, now time.Time) *Signal {
	return &Signal{
		ID:          uuid.NewString(),
		StrategyKey: meta.Key,
		Pair:        pair,
		Direction:   direction,
		EntryPrice:  entry,
		CreatedAt:   now,
		ExpiresAt:   now.Add(meta.SignalTTL),
	}
}

// applyBrackets fills stop and targets from the stop distance and the
// configured R multiples.
func applyBrackets(sig *Signal, params Params) {
	risk := sig.EntryPrice * params.StopLossPct / 100
	if sig.Direction == Short {
		sig.StopLoss = sig.EntryPrice + risk
		sig.TP1 = sig.EntryPrice - risk*params.TP1RMultiple
		sig.TP2 = sig.EntryPrice - risk*params.TP2RMultiple
	} else {
		sig.StopLoss = sig.EntryPrice - risk
		sig.TP1 = sig.EntryPrice + risk*params.TP1RMultiple
		sig.TP2 = sig.EntryPrice + risk*params.TP2RMultiple
	}
	sig.TrailDistance = risk
}
