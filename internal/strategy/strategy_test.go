package strategy

import (
	"testing"
	"time"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/edge"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
)

var testParams = Params{
	StopLossPct:    1.0,
	TP1RMultiple:   1.0,
	TP2RMultiple:   2.0,
	EntryThreshold: 65,
}

func bullishSnapshot(pair string) *market.Snapshot {
	widths := make([]float64, 12)
	for i := range widths {
		widths[i] = 2.0
	}
	widths[len(widths)-1] = 2.6 // expansion vs 10 bars back

	candles := make([]market.Candle, 30)
	for i := range candles {
		candles[i] = market.Candle{
			Open: 99, High: 100, Low: 98, Close: 99.5, Volume: 400,
			CloseTime: time.Now().Add(time.Duration(i-30) * time.Minute),
		}
	}
	candles[len(candles)-1] = market.Candle{
		Open: 100, High: 102.5, Low: 99.8, Close: 102, Volume: 900,
		CloseTime: time.Now(),
	}

	return &market.Snapshot{
		Pair:    pair,
		Candles: candles,
		Ticker:  &market.Ticker{Price: 102, Volume24h: 5_000_000},
		OrderBook: &market.OrderBook{
			Bids: []market.BookLevel{{Price: 101.99, Qty: 30}, {Price: 101.98, Qty: 25}},
			Asks: []market.BookLevel{{Price: 102.01, Qty: 10}, {Price: 102.02, Qty: 8}},
		},
		Indicators: map[string][]float64{
			market.IndADX:     {32},
			market.IndATRPct:  {0.8},
			market.IndRSI:     {62},
			market.IndBBWidth: widths,
			market.IndEMAFast: {101},
			market.IndEMASlow: {100},
			market.IndVolSMA:  {450},
		},
	}
}

func bearishSnapshot(pair string) *market.Snapshot {
	s := bullishSnapshot(pair)
	s.Indicators[market.IndRSI] = []float64{28}
	s.Indicators[market.IndEMAFast] = []float64{99}
	s.Indicators[market.IndEMASlow] = []float64{100}
	s.Indicators[market.IndADX] = []float64{12}
	s.Candles[len(s.Candles)-1].Volume = 200
	return s
}

func TestScoredEntryOnStrongConfluence(t *testing.T) {
	s, err := NewScored()
	if err != nil {
		t.Fatalf("NewScored: %v", err)
	}

	ctx := &Context{Entry: bullishSnapshot("BTCUSDT"), Trend: bullishSnapshot("BTCUSDT"), Now: time.Now()}
	sig, err := s.CheckEntry(ctx, testParams)
	if err != nil {
		t.Fatalf("CheckEntry: %v", err)
	}
	if sig == nil {
		t.Fatalf("expected entry signal, score = %.0f", s.Score(ctx).Total)
	}

	if sig.StrategyKey != ScoredKey || sig.Pair != "BTCUSDT" {
		t.Errorf("bad signal identity: %s/%s", sig.StrategyKey, sig.Pair)
	}
	if sig.Score < testParams.EntryThreshold {
		t.Errorf("score %.0f below threshold", sig.Score)
	}
	// 1% stop, 1R/2R targets off entry 102
	if sig.StopLoss >= sig.EntryPrice {
		t.Error("stop must sit below entry for a long")
	}
	if !(sig.TP1 > sig.EntryPrice && sig.TP2 > sig.TP1) {
		t.Errorf("targets out of order: entry %.2f tp1 %.2f tp2 %.2f", sig.EntryPrice, sig.TP1, sig.TP2)
	}
	if got := sig.ExpiresAt.Sub(sig.CreatedAt); got != 20*time.Second {
		t.Errorf("TTL = %v, want 20s", got)
	}
}

func TestScoredNoEntryOnWeakConfluence(t *testing.T) {
	s, _ := NewScored()
	ctx := &Context{Entry: bearishSnapshot("BTCUSDT"), Trend: bearishSnapshot("BTCUSDT"), Now: time.Now()}

	sig, err := s.CheckEntry(ctx, testParams)
	if err != nil {
		t.Fatalf("CheckEntry: %v", err)
	}
	if sig != nil {
		t.Errorf("expected no signal, got score %.0f", sig.Score)
	}
}

func TestSignalExpiry(t *testing.T) {
	now := time.Now()
	sig := &Signal{CreatedAt: now, ExpiresAt: now.Add(20 * time.Second)}

	if sig.Expired(now.Add(10 * time.Second)) {
		t.Error("signal expired early")
	}
	if !sig.Expired(now.Add(21 * time.Second)) {
		t.Error("signal should expire after TTL")
	}
}

type fixedModeSource struct{ mode edge.Mode }

func (f fixedModeSource) SelectedMode(string) edge.Mode { return f.mode }

func TestMultiModeNoModeNoEntry(t *testing.T) {
	m, err := NewMultiMode(fixedModeSource{edge.ModeNone})
	if err != nil {
		t.Fatalf("NewMultiMode: %v", err)
	}
	ctx := &Context{Entry: bullishSnapshot("ETHUSDT"), Trend: bullishSnapshot("ETHUSDT"), Now: time.Now()}

	sig, err := m.CheckEntry(ctx, testParams)
	if err != nil || sig != nil {
		t.Errorf("no mode must mean no entry, got sig=%v err=%v", sig, err)
	}
}

func TestMultiModeSwingBreakout(t *testing.T) {
	m, _ := NewMultiMode(fixedModeSource{edge.ModeSwing})
	ctx := &Context{Entry: bullishSnapshot("ETHUSDT"), Trend: bullishSnapshot("ETHUSDT"), Now: time.Now()}

	sig, err := m.CheckEntry(ctx, testParams)
	if err != nil {
		t.Fatalf("CheckEntry: %v", err)
	}
	if sig == nil {
		t.Fatal("expected swing entry on breakout snapshot")
	}
	if sig.Mode != string(edge.ModeSwing) {
		t.Errorf("mode = %s, want swing", sig.Mode)
	}
	if got := sig.ExpiresAt.Sub(sig.CreatedAt); got != 10*time.Second {
		t.Errorf("TTL = %v, want 10s", got)
	}
}

func TestMultiModeScalpStopTighter(t *testing.T) {
	scalp, _ := NewMultiMode(fixedModeSource{edge.ModeScalp})
	snap := bullishSnapshot("ETHUSDT")
	snap.Indicators[market.IndRSI] = []float64{30}
	ctx := &Context{Entry: snap, Trend: snap, Now: time.Now()}

	sig, err := scalp.CheckEntry(ctx, testParams)
	if err != nil {
		t.Fatalf("CheckEntry: %v", err)
	}
	if sig == nil {
		t.Fatal("expected scalp entry on oversold dip with bid depth")
	}

	// Scalp stop is half the configured distance.
	wantStop := sig.EntryPrice * (1 - testParams.StopLossPct*0.5/100)
	if diff := sig.StopLoss - wantStop; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("stop = %.6f, want %.6f", sig.StopLoss, wantStop)
	}
}

func TestHoldDurationPerMode(t *testing.T) {
	meta := Metadata{Key: "x", SignalTTL: time.Second, MaxHold: 4 * time.Hour}

	sig := &Signal{Mode: string(edge.ModeScalp)}
	if got := HoldDuration(sig, meta); got != 30*time.Minute {
		t.Errorf("scalp hold = %v, want 30m", got)
	}
	if got := HoldDuration(&Signal{}, meta); got != 4*time.Hour {
		t.Errorf("default hold = %v, want 4h", got)
	}
}

func TestMetadataValidation(t *testing.T) {
	bad := Metadata{Key: "", SignalTTL: time.Second, MaxHold: time.Hour}
	if err := bad.Validate(); err == nil {
		t.Error("empty key must fail validation")
	}
	bad = Metadata{Key: "x", SignalTTL: 0, MaxHold: time.Hour}
	if err := bad.Validate(); err == nil {
		t.Error("zero TTL must fail validation")
	}
}

func TestBreakoutRule(t *testing.T) {
	b, err := NewBreakout(0)
	if err != nil {
		t.Fatalf("NewBreakout: %v", err)
	}
	ctx := &Context{Entry: bullishSnapshot("SOLUSDT"), Trend: bullishSnapshot("SOLUSDT"), Now: time.Now()}

	sig, err := b.CheckEntry(ctx, testParams)
	if err != nil {
		t.Fatalf("CheckEntry: %v", err)
	}
	if sig == nil {
		t.Fatal("expected breakout entry: price above previous candle high")
	}
	if sig.StrategyKey != "breakout" {
		t.Errorf("key = %s", sig.StrategyKey)
	}
}
