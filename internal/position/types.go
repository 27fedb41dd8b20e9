package position

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a position
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Direction of a position
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Position is one open trade, exclusively owned by the Monitor while
// open. Only the Monitor mutates stop and trailing fields.
type Position struct {
	ID                  string    `json:"id"`
	Pair                string    `json:"pair"`
	Strategy            string    `json:"strategy"`
	Mode                string    `json:"mode,omitempty"`
	Direction           Direction `json:"direction"`
	EntryPrice          float64   `json:"entry_price"`
	Qty                 float64   `json:"qty"`
	ReservedNotional    float64   `json:"reserved_notional"`
	StopLoss            float64   `json:"stop_loss"`
	TP1Price            float64   `json:"tp1_price"`
	TP2Price            float64   `json:"tp2_price"`
	TP1Hit              bool      `json:"tp1_hit"`
	TrailingActive      bool      `json:"trailing_active"`
	TrailingStop        float64   `json:"trailing_stop"`
	TrailingStopDistance float64  `json:"trailing_stop_distance"`
	MaxHold             time.Duration `json:"max_hold"`
	Status              Status    `json:"status"`
	EntryTime           time.Time `json:"entry_time"`
	RealizedPnL         float64   `json:"realized_pnl"`
	FeesPaid            float64   `json:"fees_paid"`
}

// NewID returns a fresh position identifier.
func NewID() string {
	return uuid.NewString()
}

// Age returns how long the position has been open.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// Notional returns the remaining position value at a price.
func (p *Position) Notional(price float64) float64 {
	return p.Qty * price
}

// UnrealizedPnL values the remaining quantity at a price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Direction == Short {
		return (p.EntryPrice - price) * p.Qty
	}
	return (price - p.EntryPrice) * p.Qty
}

// ExitKind names why the monitor closed (part of) a position
type ExitKind string

const (
	ExitStopLoss   ExitKind = "stop_loss"
	ExitTP1        ExitKind = "tp1_partial"
	ExitTP2        ExitKind = "tp2"
	ExitTrailing   ExitKind = "trailing_stop"
	ExitMaxHold    ExitKind = "max_hold"
	ExitStrategy   ExitKind = "strategy_exit"
)

// TradeResult is emitted exactly once per fully closed position; it
// feeds the circuit breaker, the ledger, and the ratchet.
type TradeResult struct {
	PositionID string    `json:"position_id"`
	Pair       string    `json:"pair"`
	Strategy   string    `json:"strategy"`
	Mode       string    `json:"mode,omitempty"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Qty        float64   `json:"qty"`
	// ReservedNotional is the quote amount earmarked at entry; the
	// settlement releases exactly this, not the fill notional.
	ReservedNotional float64 `json:"reserved_notional"`
	PnL        float64   `json:"pnl"`
	Fees       float64   `json:"fees"`
	ExitKind   ExitKind  `json:"exit_kind"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}
