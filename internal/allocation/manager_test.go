package allocation

import (
	"math"
	"testing"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/ledger"
)

var userSplit = SplitConfig{PrimaryPct: 70, SecondPct: 30}

func TestSingleActiveStrategyGetsEverything(t *testing.T) {
	a := Allocate(10000, userSplit, ledger.ThreatActive, true, false)
	if a.PoolPrimary != 10000 || a.PoolSecond != 0 {
		t.Errorf("primary-only: got %.2f/%.2f, want 10000/0", a.PoolPrimary, a.PoolSecond)
	}

	a = Allocate(10000, userSplit, ledger.ThreatCritical, false, true)
	if a.PoolSecond != 10000 || a.PoolPrimary != 0 {
		t.Errorf("second-only: got %.2f/%.2f, want 0/10000", a.PoolPrimary, a.PoolSecond)
	}
}

func TestThreatOverrides(t *testing.T) {
	tests := []struct {
		threat              ledger.ThreatLevel
		wantPrimary, wantSecond float64
	}{
		{ledger.ThreatActive, 70, 30},
		{ledger.ThreatDominant, 50, 50},
		{ledger.ThreatWarning, 75, 25},
		{ledger.ThreatCritical, 87, 13},
	}

	for _, tt := range tests {
		a := Allocate(10000, userSplit, tt.threat, true, true)
		if a.PctPrimary != tt.wantPrimary || a.PctSecond != tt.wantSecond {
			t.Errorf("%s: got %.0f/%.0f, want %.0f/%.0f",
				tt.threat, a.PctPrimary, a.PctSecond, tt.wantPrimary, tt.wantSecond)
		}
		if sum := a.PoolPrimary + a.PoolSecond; math.Abs(sum-10000) > 1e-9 {
			t.Errorf("%s: pools sum to %.2f, want 10000", tt.threat, sum)
		}
	}
}

func TestSkewedUserSplitNormalized(t *testing.T) {
	a := Allocate(10000, SplitConfig{PrimaryPct: 60, SecondPct: 60}, ledger.ThreatActive, true, true)
	if math.Abs(a.PctPrimary-50) > 1e-9 || math.Abs(a.PctSecond-50) > 1e-9 {
		t.Errorf("normalized split = %.2f/%.2f, want 50/50", a.PctPrimary, a.PctSecond)
	}
}

func TestNoActiveStrategies(t *testing.T) {
	a := Allocate(10000, userSplit, ledger.ThreatActive, false, false)
	if a.PoolPrimary != 0 || a.PoolSecond != 0 {
		t.Errorf("expected empty allocation, got %.2f/%.2f", a.PoolPrimary, a.PoolSecond)
	}
}
