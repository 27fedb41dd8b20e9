package position

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/execution"
)

type priceMap struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newPriceMap() *priceMap {
	return &priceMap{prices: make(map[string]float64)}
}

func (p *priceMap) set(pair string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[pair] = price
}

func (p *priceMap) get(pair string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[pair]
	if !ok {
		return 0, errors.New("no price")
	}
	return price, nil
}

type resultCollector struct {
	mu      sync.Mutex
	results []*TradeResult
}

func (c *resultCollector) sink(r *TradeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *resultCollector) all() []*TradeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*TradeResult(nil), c.results...)
}

func exactConfig() MonitorConfig {
	return MonitorConfig{
		TickInterval:     500 * time.Millisecond,
		TP1CloseFraction: 0.5,
		ExitSlippagePct:  0, // deterministic exit prices
	}
}

func longPosition() *Position {
	return &Position{
		ID:                   NewID(),
		Pair:                 "BTCUSDT",
		Strategy:             "scored",
		Direction:            Long,
		EntryPrice:           100,
		Qty:                  2,
		StopLoss:             99,
		TP1Price:             101,
		TP2Price:             102,
		TrailingStopDistance: 1,
		MaxHold:              8 * time.Hour,
		EntryTime:            time.Now(),
	}
}

func TestStopLossFullClose(t *testing.T) {
	prices := newPriceMap()
	sink := &resultCollector{}
	m := NewMonitor(exactConfig(), nil, prices.get, sink.sink, zerolog.Nop())

	pos := longPosition()
	if err := m.Track(pos); err != nil {
		t.Fatal(err)
	}

	prices.set("BTCUSDT", 98.9)
	m.Tick(time.Now())

	if m.Count() != 0 {
		t.Fatal("position should be fully closed")
	}
	results := sink.all()
	if len(results) != 1 {
		t.Fatalf("got %d trade results, want exactly 1", len(results))
	}
	r := results[0]
	if r.ExitKind != ExitStopLoss {
		t.Errorf("exitKind = %s", r.ExitKind)
	}
	wantPnL := (98.9 - 100.0) * 2
	if diff := r.PnL - wantPnL; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("pnl = %.4f, want %.4f", r.PnL, wantPnL)
	}
}

func TestTP1PartialCloseMovesToBreakeven(t *testing.T) {
	prices := newPriceMap()
	sink := &resultCollector{}
	m := NewMonitor(exactConfig(), nil, prices.get, sink.sink, zerolog.Nop())

	pos := longPosition()
	m.Track(pos)

	prices.set("BTCUSDT", 101)
	m.Tick(time.Now())

	open, ok := m.ForPair("BTCUSDT")
	if !ok {
		t.Fatal("position should remain open after partial close")
	}
	if open.Qty != 1 {
		t.Errorf("qty = %.4f, want 1 (half closed)", open.Qty)
	}
	if !open.TP1Hit {
		t.Error("tp1Hit not marked")
	}
	if open.StopLoss != 100 {
		t.Errorf("stop = %.2f, want breakeven 100", open.StopLoss)
	}
	if !open.TrailingActive {
		t.Error("trailing not activated")
	}
	if open.TrailingStop != 100 { // 101 - distance 1
		t.Errorf("trailingStop = %.2f, want 100", open.TrailingStop)
	}
	if len(sink.all()) != 0 {
		t.Error("partial close must not emit a trade result")
	}
}

func TestTP1FiresBeforeTP2OnGap(t *testing.T) {
	prices := newPriceMap()
	m := NewMonitor(exactConfig(), nil, prices.get, nil, zerolog.Nop())

	pos := longPosition()
	m.Track(pos)

	// Price gaps straight through both targets: the first tick takes
	// the partial, not the full TP2 close.
	prices.set("BTCUSDT", 103)
	m.Tick(time.Now())

	open, ok := m.ForPair("BTCUSDT")
	if !ok {
		t.Fatal("expected partial close first")
	}
	if open.Qty != 1 || !open.TP1Hit {
		t.Errorf("qty=%.2f tp1Hit=%v", open.Qty, open.TP1Hit)
	}
}

func TestTP2ClosesRemainderAfterTP1(t *testing.T) {
	prices := newPriceMap()
	sink := &resultCollector{}
	m := NewMonitor(exactConfig(), nil, prices.get, sink.sink, zerolog.Nop())

	pos := longPosition()
	pos.TrailingStopDistance = 5 // keep trailing out of the way
	m.Track(pos)

	prices.set("BTCUSDT", 101)
	m.Tick(time.Now()) // TP1 partial
	prices.set("BTCUSDT", 102)
	m.Tick(time.Now()) // TP2 remainder

	if m.Count() != 0 {
		t.Fatal("position should be fully closed")
	}
	results := sink.all()
	if len(results) != 1 {
		t.Fatalf("got %d trade results, want exactly 1", len(results))
	}
	r := results[0]
	if r.ExitKind != ExitTP2 {
		t.Errorf("exitKind = %s", r.ExitKind)
	}
	// 1 @ +1 (TP1 partial) + 1 @ +2 (TP2) = 3
	if diff := r.PnL - 3.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("total pnl = %.4f, want 3", r.PnL)
	}
	if r.Qty != 2 {
		t.Errorf("result qty = %.2f, want original 2", r.Qty)
	}
}

func TestTrailingOnlyTightens(t *testing.T) {
	prices := newPriceMap()
	sink := &resultCollector{}
	m := NewMonitor(exactConfig(), nil, prices.get, sink.sink, zerolog.Nop())

	pos := longPosition()
	pos.TP2Price = 200 // out of reach
	m.Track(pos)

	prices.set("BTCUSDT", 101)
	m.Tick(time.Now()) // TP1: trailing on at 100

	prices.set("BTCUSDT", 103)
	m.Tick(time.Now())
	open, _ := m.ForPair("BTCUSDT")
	if open.TrailingStop != 102 {
		t.Fatalf("trailingStop = %.2f, want 102", open.TrailingStop)
	}

	// Pullback must not loosen the stop.
	prices.set("BTCUSDT", 102.5)
	m.Tick(time.Now())
	open, _ = m.ForPair("BTCUSDT")
	if open.TrailingStop != 102 {
		t.Fatalf("trailingStop loosened to %.2f", open.TrailingStop)
	}

	// Crossing the trailing stop closes the remainder.
	prices.set("BTCUSDT", 101.9)
	m.Tick(time.Now())
	if m.Count() != 0 {
		t.Fatal("trailing cross should close the position")
	}
	results := sink.all()
	if len(results) != 1 || results[0].ExitKind != ExitTrailing {
		t.Fatalf("results = %+v", results)
	}
}

func TestMaxHoldForcesExit(t *testing.T) {
	prices := newPriceMap()
	sink := &resultCollector{}
	m := NewMonitor(exactConfig(), nil, prices.get, sink.sink, zerolog.Nop())

	pos := longPosition()
	pos.MaxHold = time.Hour
	pos.EntryTime = time.Now().Add(-2 * time.Hour)
	m.Track(pos)

	prices.set("BTCUSDT", 100.5) // between stop and TP1
	m.Tick(time.Now())

	if m.Count() != 0 {
		t.Fatal("max hold should force a close")
	}
	if results := sink.all(); len(results) != 1 || results[0].ExitKind != ExitMaxHold {
		t.Fatalf("results = %+v", results)
	}
}

func TestShortStopLoss(t *testing.T) {
	prices := newPriceMap()
	sink := &resultCollector{}
	m := NewMonitor(exactConfig(), nil, prices.get, sink.sink, zerolog.Nop())

	pos := longPosition()
	pos.Direction = Short
	pos.StopLoss = 101
	pos.TP1Price = 99
	pos.TP2Price = 98
	m.Track(pos)

	prices.set("BTCUSDT", 101.2)
	m.Tick(time.Now())

	results := sink.all()
	if len(results) != 1 || results[0].ExitKind != ExitStopLoss {
		t.Fatalf("results = %+v", results)
	}
	wantPnL := (100.0 - 101.2) * 2
	if diff := results[0].PnL - wantPnL; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("pnl = %.4f, want %.4f", results[0].PnL, wantPnL)
	}
}

func TestRequestExitClosesOnNextTick(t *testing.T) {
	prices := newPriceMap()
	sink := &resultCollector{}
	m := NewMonitor(exactConfig(), nil, prices.get, sink.sink, zerolog.Nop())

	pos := longPosition()
	m.Track(pos)
	prices.set("BTCUSDT", 100.5)

	m.RequestExit(pos.ID, ExitStrategy)
	m.Tick(time.Now())

	if results := sink.all(); len(results) != 1 || results[0].ExitKind != ExitStrategy {
		t.Fatalf("results = %+v", results)
	}
}

func TestExitSlippageAdjustment(t *testing.T) {
	prices := newPriceMap()
	sink := &resultCollector{}
	cfg := exactConfig()
	cfg.ExitSlippagePct = 0.1
	m := NewMonitor(cfg, nil, prices.get, sink.sink, zerolog.Nop())

	pos := longPosition()
	m.Track(pos)

	prices.set("BTCUSDT", 98)
	m.Tick(time.Now())

	results := sink.all()
	if len(results) != 1 {
		t.Fatal("expected one close")
	}
	want := 98 - 98*0.001 // adverse adjustment on a long exit
	if diff := results[0].ExitPrice - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("exitPrice = %.4f, want %.4f", results[0].ExitPrice, want)
	}
}

func TestTrackRejectsDuplicatePair(t *testing.T) {
	m := NewMonitor(exactConfig(), nil, newPriceMap().get, nil, zerolog.Nop())

	first := longPosition()
	if err := m.Track(first); err != nil {
		t.Fatal(err)
	}

	second := longPosition()
	second.ID = NewID()
	second.Strategy = "multimode"
	if err := m.Track(second); err == nil {
		t.Fatal("expected duplicate-pair rejection")
	}
}

// failingBridge errors a set number of times before delegating fills.
type failingBridge struct {
	mu       sync.Mutex
	failures int
	fills    int
}

func (b *failingBridge) SubmitOrder(_ context.Context, req *execution.OrderRequest) (*execution.Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return nil, errors.New("exchange unavailable")
	}
	b.fills++
	return &execution.Fill{OrderID: "x", Pair: req.Pair, Side: req.Side, Price: 98.9, Qty: req.Qty}, nil
}

func (b *failingBridge) CancelOrder(context.Context, string, string) error { return nil }
func (b *failingBridge) Mode() string                                     { return "paper" }

func TestExitRetriesAfterBridgeFailure(t *testing.T) {
	prices := newPriceMap()
	sink := &resultCollector{}
	bridge := &failingBridge{failures: 1}
	m := NewMonitor(exactConfig(), bridge, prices.get, sink.sink, zerolog.Nop())

	pos := longPosition()
	m.Track(pos)
	prices.set("BTCUSDT", 98.9)

	m.Tick(time.Now())
	if m.Count() != 1 {
		t.Fatal("position must stay open after a failed exit order")
	}
	if len(sink.all()) != 0 {
		t.Fatal("no trade result on a failed exit")
	}

	m.Tick(time.Now())
	if m.Count() != 0 {
		t.Fatal("retry on the next tick should close the position")
	}
	if results := sink.all(); len(results) != 1 {
		t.Fatalf("got %d results, want exactly 1", len(results))
	}
}

func TestTradeResultCarriesReservedNotional(t *testing.T) {
	prices := newPriceMap()
	sink := &resultCollector{}
	m := NewMonitor(exactConfig(), nil, prices.get, sink.sink, zerolog.Nop())

	pos := longPosition()
	pos.ReservedNotional = 200 // what the scanner earmarked, not the fill notional
	m.Track(pos)

	prices.set("BTCUSDT", 98.9)
	m.Tick(time.Now())

	results := sink.all()
	if len(results) != 1 {
		t.Fatalf("got %d results, want exactly 1", len(results))
	}
	if results[0].ReservedNotional != 200 {
		t.Errorf("reservedNotional = %.2f, want 200", results[0].ReservedNotional)
	}
}
