package circuit

import (
	"testing"
	"time"
)

func newTestBreaker(balance float64) *Breaker {
	return NewBreaker(DefaultConfig(), balance)
}

func TestThreeLossesTriggerShortPause(t *testing.T) {
	b := newTestBreaker(10000)

	for i := 0; i < 3; i++ {
		b.RecordTrade(-5, 0.5)
	}

	allowed, reason := b.CanTrade()
	if allowed {
		t.Fatal("expected pause after 3 consecutive losses")
	}
	if reason == "" {
		t.Error("expected a pause reason")
	}

	stats := b.GetStats()
	pausedUntil := stats["paused_until"].(time.Time)
	want := time.Now().Add(15 * time.Minute)
	if diff := pausedUntil.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("pausedUntil = %v, want ~%v", pausedUntil, want)
	}
}

func TestFifthLossExtendsPause(t *testing.T) {
	b := newTestBreaker(10000)

	for i := 0; i < 5; i++ {
		b.RecordTrade(-5, 0.5)
	}

	stats := b.GetStats()
	pausedUntil := stats["paused_until"].(time.Time)
	want := time.Now().Add(60 * time.Minute)
	if diff := pausedUntil.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("pausedUntil = %v, want ~%v (long pause overrides short)", pausedUntil, want)
	}
}

func TestWinResetsStreak(t *testing.T) {
	b := newTestBreaker(10000)

	b.RecordTrade(-5, 0.5)
	b.RecordTrade(-5, 0.5)
	b.RecordTrade(10, 0.5)
	b.RecordTrade(-5, 0.5)
	b.RecordTrade(-5, 0.5)

	if allowed, reason := b.CanTrade(); !allowed {
		t.Fatalf("streak should have reset on win, blocked: %s", reason)
	}
}

func TestBreakevenTradeResetsStreak(t *testing.T) {
	b := newTestBreaker(10000)

	b.RecordTrade(-5, 0.5)
	b.RecordTrade(-5, 0.5)
	b.RecordTrade(0, 0.5)

	stats := b.GetStats()
	if got := stats["consecutive_losses"].(int); got != 0 {
		t.Errorf("consecutiveLosses = %d, want 0 after non-negative outcome", got)
	}
}

func TestSessionDrawdownDisablesPermanently(t *testing.T) {
	b := newTestBreaker(10000)

	// -1% of 10000 is -100
	b.RecordTrade(-60, 1)
	b.RecordTrade(-45, 1)

	if allowed, _ := b.CanTrade(); allowed {
		t.Fatal("expected disabled after -1% session drawdown")
	}

	// Winning trades do not re-enable a disabled session
	b.RecordTrade(500, 1)
	if allowed, reason := b.CanTrade(); allowed {
		t.Fatal("disabled breaker must stay disabled despite wins")
	} else if reason == "" {
		t.Error("expected a disabled reason")
	}

	if !b.GetStats()["disabled"].(bool) {
		t.Error("stats should report disabled")
	}
}

func TestElapsedPauseClears(t *testing.T) {
	b := newTestBreaker(10000)
	for i := 0; i < 3; i++ {
		b.RecordTrade(-1, 0.1)
	}

	// Rewind the pause as if it had elapsed.
	b.mu.Lock()
	b.pausedUntil = time.Now().Add(-time.Second)
	b.mu.Unlock()

	if allowed, reason := b.CanTrade(); !allowed {
		t.Fatalf("elapsed pause should clear, blocked: %s", reason)
	}
	if !b.GetStats()["paused_until"].(time.Time).IsZero() {
		t.Error("pausedUntil should be cleared after elapsing")
	}
}

func TestCountersAreMonotonic(t *testing.T) {
	b := newTestBreaker(10000)

	outcomes := []float64{5, -3, 2, -1, -4, 8}
	for _, pnl := range outcomes {
		b.RecordTrade(pnl, 0.2)
	}

	stats := b.GetStats()
	if got := stats["total_trades"].(int); got != len(outcomes) {
		t.Errorf("totalTrades = %d, want %d", got, len(outcomes))
	}
	if got := stats["wins"].(int); got != 3 {
		t.Errorf("wins = %d, want 3", got)
	}
	if got := stats["losses"].(int); got != 3 {
		t.Errorf("losses = %d, want 3", got)
	}
}

func TestInvalidPnLIgnored(t *testing.T) {
	b := newTestBreaker(10000)

	b.RecordTrade(nan(), 0)
	if got := b.GetStats()["total_trades"].(int); got != 0 {
		t.Errorf("NaN trade should be ignored, totalTrades = %d", got)
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestHistoryCapped(t *testing.T) {
	b := newTestBreaker(10000)
	for i := 0; i < 30; i++ {
		b.RecordTrade(1, 0.1)
	}
	if got := len(b.History()); got != historyCap {
		t.Errorf("history length = %d, want %d", got, historyCap)
	}
}
