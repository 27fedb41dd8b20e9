package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPaperFillAppliesAdverseSlippage(t *testing.T) {
	price := func(string) (float64, error) { return 100, nil }
	b := NewPaperBridge(price, PaperConfig{SlippagePct: 0.1, TakerFeePct: 0.1}, zerolog.Nop())

	buy, err := b.SubmitOrder(context.Background(), &OrderRequest{
		Pair: "BTCUSDT", Side: SideBuy, Type: TypeMarket, Qty: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if buy.Price != 100.1 {
		t.Errorf("buy fill = %.4f, want 100.10 (slipped up)", buy.Price)
	}
	if buy.Fee != 100.1*2*0.001 {
		t.Errorf("fee = %.6f", buy.Fee)
	}

	sell, err := b.SubmitOrder(context.Background(), &OrderRequest{
		Pair: "BTCUSDT", Side: SideSell, Type: TypeMarket, Qty: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if sell.Price != 99.9 {
		t.Errorf("sell fill = %.4f, want 99.90 (slipped down)", sell.Price)
	}

	if len(b.Fills()) != 2 {
		t.Errorf("recorded %d fills, want 2", len(b.Fills()))
	}
}

func TestPaperLimitFillsAtLimitPrice(t *testing.T) {
	price := func(string) (float64, error) { return 100, nil }
	b := NewPaperBridge(price, PaperConfig{}, zerolog.Nop())

	fill, err := b.SubmitOrder(context.Background(), &OrderRequest{
		Pair: "ETHUSDT", Side: SideBuy, Type: TypeLimit, Price: 95, Qty: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fill.Price != 95 {
		t.Errorf("limit fill = %.2f, want 95", fill.Price)
	}
}

func TestPaperRejectsZeroQty(t *testing.T) {
	b := NewPaperBridge(func(string) (float64, error) { return 100, nil },
		DefaultPaperConfig(), zerolog.Nop())
	if _, err := b.SubmitOrder(context.Background(), &OrderRequest{Pair: "BTCUSDT", Qty: 0}); err == nil {
		t.Fatal("expected error for zero qty")
	}
}

// fakeBroker scripts order lifecycle transitions for the live bridge.
type fakeBroker struct {
	mu        sync.Mutex
	order     *BrokerOrder
	fillAfter int // polls before the order reports FILLED; -1 = never
	polls     int
	cancelled bool
}

func (f *fakeBroker) PlaceOrder(_ context.Context, _, _, orderType string, qty, price float64) (*BrokerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = &BrokerOrder{ID: "ord-1", Status: "NEW", AvgPrice: price, Executed: 0}
	if orderType == TypeMarket {
		f.order.Status = "FILLED"
		f.order.Executed = qty
	}
	return f.order, nil
}

func (f *fakeBroker) GetOrder(_ context.Context, _, _ string) (*BrokerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.fillAfter >= 0 && f.polls >= f.fillAfter && !f.cancelled {
		f.order.Status = "FILLED"
		f.order.Executed = 1
	}
	cp := *f.order
	return &cp, nil
}

func (f *fakeBroker) CancelOrder(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
	if f.order.Status != "FILLED" {
		f.order.Status = "CANCELED"
	}
	return nil
}

func TestLiveMarketOrderFillsImmediately(t *testing.T) {
	broker := &fakeBroker{fillAfter: -1}
	b := NewLiveBridge(broker, DefaultLiveConfig(), zerolog.Nop())

	fill, err := b.SubmitOrder(context.Background(), &OrderRequest{
		Pair: "BTCUSDT", Side: SideBuy, Type: TypeMarket, Qty: 1, Price: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fill.Qty != 1 {
		t.Errorf("qty = %.2f", fill.Qty)
	}
}

func TestLiveLimitOrderFillsAfterPoll(t *testing.T) {
	broker := &fakeBroker{fillAfter: 2}
	cfg := LiveConfig{LimitOrderTimeout: time.Second, PollInterval: 10 * time.Millisecond}
	b := NewLiveBridge(broker, cfg, zerolog.Nop())

	fill, err := b.SubmitOrder(context.Background(), &OrderRequest{
		Pair: "BTCUSDT", Side: SideBuy, Type: TypeLimit, Qty: 1, Price: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fill.OrderID != "ord-1" {
		t.Errorf("orderID = %s", fill.OrderID)
	}
}

func TestLiveLimitOrderTimeoutCancels(t *testing.T) {
	broker := &fakeBroker{fillAfter: -1}
	cfg := LiveConfig{LimitOrderTimeout: 30 * time.Millisecond, PollInterval: 10 * time.Millisecond}
	b := NewLiveBridge(broker, cfg, zerolog.Nop())

	_, err := b.SubmitOrder(context.Background(), &OrderRequest{
		Pair: "BTCUSDT", Side: SideBuy, Type: TypeLimit, Qty: 1, Price: 100,
	})
	if !errors.Is(err, ErrOrderTimeout) {
		t.Fatalf("err = %v, want ErrOrderTimeout", err)
	}
	if !broker.cancelled {
		t.Error("resting order was not cancelled")
	}
}

func TestLiveCancelOnContextDone(t *testing.T) {
	broker := &fakeBroker{fillAfter: -1}
	cfg := LiveConfig{LimitOrderTimeout: time.Second, PollInterval: 10 * time.Millisecond}
	b := NewLiveBridge(broker, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := b.SubmitOrder(ctx, &OrderRequest{
		Pair: "BTCUSDT", Side: SideBuy, Type: TypeLimit, Qty: 1, Price: 100,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !broker.cancelled {
		t.Error("order not cancelled on context done")
	}
}
