package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// BrokerOrder is the exchange-side view of an order.
type BrokerOrder struct {
	ID       string
	Status   string // NEW, PARTIALLY_FILLED, FILLED, CANCELED
	AvgPrice float64
	Executed float64 // base units filled so far
	Fee      float64
}

// BrokerClient is the minimal exchange surface the live bridge needs.
// The concrete client is injected at wiring time.
type BrokerClient interface {
	PlaceOrder(ctx context.Context, pair, side, orderType string, qty, price float64) (*BrokerOrder, error)
	GetOrder(ctx context.Context, pair, orderID string) (*BrokerOrder, error)
	CancelOrder(ctx context.Context, pair, orderID string) error
}

// ErrOrderTimeout is returned when a limit order rests past the
// timeout and is cancelled unfilled.
var ErrOrderTimeout = errors.New("limit order timed out and was cancelled")

// LiveConfig tunes the live adapter.
type LiveConfig struct {
	LimitOrderTimeout time.Duration // cancel resting limit orders after this
	PollInterval      time.Duration
}

func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		LimitOrderTimeout: 60 * time.Second,
		PollInterval:      2 * time.Second,
	}
}

// LiveBridge places real orders through an injected broker client.
// Limit orders that do not fill within LimitOrderTimeout are cancelled.
type LiveBridge struct {
	client BrokerClient
	config LiveConfig
	logger zerolog.Logger
}

func NewLiveBridge(client BrokerClient, config LiveConfig, logger zerolog.Logger) *LiveBridge {
	if config.LimitOrderTimeout <= 0 {
		config.LimitOrderTimeout = 60 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &LiveBridge{
		client: client,
		config: config,
		logger: logger.With().Str("bridge", "live").Logger(),
	}
}

func (b *LiveBridge) Mode() string { return "live" }

func (b *LiveBridge) SubmitOrder(ctx context.Context, req *OrderRequest) (*Fill, error) {
	if req.Qty <= 0 {
		return nil, fmt.Errorf("invalid qty %.8f for %s", req.Qty, req.Pair)
	}

	placed, err := b.client.PlaceOrder(ctx, req.Pair, req.Side, req.Type, req.Qty, req.Price)
	if err != nil {
		return nil, fmt.Errorf("place %s %s %s: %w", req.Side, req.Type, req.Pair, err)
	}

	b.logger.Info().
		Str("pair", req.Pair).
		Str("side", req.Side).
		Str("type", req.Type).
		Str("order_id", placed.ID).
		Float64("qty", req.Qty).
		Msg("order placed")

	if placed.Status == "FILLED" {
		return fillFromOrder(req, placed), nil
	}

	// Market orders fill or fail server-side; anything still open here
	// is a resting limit order we babysit until fill or timeout.
	deadline := time.NewTimer(b.config.LimitOrderTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(b.config.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			b.cancelQuietly(req.Pair, placed.ID)
			return nil, ctx.Err()

		case <-deadline.C:
			b.cancelQuietly(req.Pair, placed.ID)
			// The order may have filled between the last poll and the
			// cancel; trust the final exchange state.
			final, err := b.client.GetOrder(context.Background(), req.Pair, placed.ID)
			if err == nil && final.Status == "FILLED" {
				return fillFromOrder(req, final), nil
			}
			b.logger.Warn().
				Str("pair", req.Pair).
				Str("order_id", placed.ID).
				Dur("timeout", b.config.LimitOrderTimeout).
				Msg("limit order cancelled on timeout")
			return nil, ErrOrderTimeout

		case <-poll.C:
			order, err := b.client.GetOrder(ctx, req.Pair, placed.ID)
			if err != nil {
				b.logger.Warn().Err(err).Str("order_id", placed.ID).Msg("order status poll failed")
				continue
			}
			switch order.Status {
			case "FILLED":
				return fillFromOrder(req, order), nil
			case "CANCELED":
				return nil, fmt.Errorf("order %s cancelled by exchange", placed.ID)
			}
		}
	}
}

func (b *LiveBridge) CancelOrder(ctx context.Context, pair, orderID string) error {
	return b.client.CancelOrder(ctx, pair, orderID)
}

func (b *LiveBridge) cancelQuietly(pair, orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.CancelOrder(ctx, pair, orderID); err != nil {
		b.logger.Warn().Err(err).Str("order_id", orderID).Msg("cancel failed")
	}
}

func fillFromOrder(req *OrderRequest, order *BrokerOrder) *Fill {
	price := order.AvgPrice
	if price <= 0 {
		price = req.Price
	}
	qty := order.Executed
	if qty <= 0 {
		qty = req.Qty
	}
	return &Fill{
		OrderID:   order.ID,
		Pair:      req.Pair,
		Side:      req.Side,
		Price:     price,
		Qty:       qty,
		Fee:       order.Fee,
		Timestamp: time.Now(),
	}
}
