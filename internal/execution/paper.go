package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PriceFunc returns the current price for a pair. The paper bridge
// uses it to fill market orders.
type PriceFunc func(pair string) (float64, error)

// PaperConfig tunes the fill simulation.
type PaperConfig struct {
	SlippagePct float64 // adverse price adjustment per fill
	TakerFeePct float64
}

// DefaultPaperConfig matches typical spot taker economics.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		SlippagePct: 0.05,
		TakerFeePct: 0.1,
	}
}

// PaperBridge fills every order immediately at the current price with
// simulated adverse slippage. No exchange is contacted.
type PaperBridge struct {
	price  PriceFunc
	config PaperConfig
	logger zerolog.Logger

	mu    sync.Mutex
	fills []*Fill
}

func NewPaperBridge(price PriceFunc, config PaperConfig, logger zerolog.Logger) *PaperBridge {
	return &PaperBridge{
		price:  price,
		config: config,
		logger: logger.With().Str("bridge", "paper").Logger(),
	}
}

func (b *PaperBridge) Mode() string { return "paper" }

func (b *PaperBridge) SubmitOrder(ctx context.Context, req *OrderRequest) (*Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Qty <= 0 {
		return nil, fmt.Errorf("invalid qty %.8f for %s", req.Qty, req.Pair)
	}

	fillPrice := req.Price
	if req.Type == TypeMarket || fillPrice <= 0 {
		p, err := b.price(req.Pair)
		if err != nil {
			return nil, fmt.Errorf("paper fill price for %s: %w", req.Pair, err)
		}
		fillPrice = p
	}

	// Slippage always moves against the trade.
	slip := fillPrice * b.config.SlippagePct / 100
	if req.Side == SideBuy {
		fillPrice += slip
	} else {
		fillPrice -= slip
	}

	fill := &Fill{
		OrderID:   uuid.New().String(),
		Pair:      req.Pair,
		Side:      req.Side,
		Price:     fillPrice,
		Qty:       req.Qty,
		Fee:       fillPrice * req.Qty * b.config.TakerFeePct / 100,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	b.fills = append(b.fills, fill)
	b.mu.Unlock()

	b.logger.Debug().
		Str("pair", req.Pair).
		Str("side", req.Side).
		Float64("price", fill.Price).
		Float64("qty", fill.Qty).
		Str("reason", req.Reason).
		Msg("paper fill")

	return fill, nil
}

func (b *PaperBridge) CancelOrder(_ context.Context, _, _ string) error {
	// Paper orders fill instantly; there is never anything resting.
	return nil
}

// Fills returns a copy of every simulated fill, oldest first.
func (b *PaperBridge) Fills() []*Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Fill, len(b.fills))
	copy(out, b.fills)
	return out
}
