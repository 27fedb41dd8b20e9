package execution

import (
	"context"
	"time"
)

// Order side and type constants, exchange convention.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TypeMarket = "MARKET"
	TypeLimit  = "LIMIT"
)

// OrderRequest describes an order to place through a bridge.
type OrderRequest struct {
	Pair     string
	Side     string
	Type     string
	Qty      float64 // base units
	Price    float64 // limit orders only
	Reason   string  // entry signal reason or exit kind, for logs
	ClientID string
}

// Fill is the terminal outcome of an order.
type Fill struct {
	OrderID   string
	Pair      string
	Side      string
	Price     float64 // average fill price
	Qty       float64
	Fee       float64 // quote units
	Timestamp time.Time
}

// Bridge places and cancels orders. The paper simulator and the live
// adapter both satisfy it; everything above the bridge is unaware of
// which one it is talking to.
type Bridge interface {
	// SubmitOrder places an order and blocks until it is filled,
	// cancelled, or the context ends. Limit orders that do not fill
	// within the adapter's timeout are cancelled and return an error.
	SubmitOrder(ctx context.Context, req *OrderRequest) (*Fill, error)

	// CancelOrder cancels a resting order by ID. Cancelling an order
	// that already filled is not an error.
	CancelOrder(ctx context.Context, pair, orderID string) error

	// Mode reports "paper" or "live".
	Mode() string
}
