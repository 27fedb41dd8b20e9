package allocation

import (
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/ledger"
)

// SplitConfig is the user's base capital split between the primary
// (scored) and secondary (multi-mode) strategies, in percent.
type SplitConfig struct {
	PrimaryPct float64 `json:"primary_pct"`
	SecondPct  float64 `json:"second_pct"`
}

// Allocation is the resolved capital pool per strategy
type Allocation struct {
	PoolPrimary float64 `json:"pool_primary"`
	PoolSecond  float64 `json:"pool_second"`
	PctPrimary  float64 `json:"pct_primary"`
	PctSecond   float64 `json:"pct_second"`
}

// Allocate maps total portfolio value, the user split, and the current
// threat level to per-strategy capital pools. A lone active strategy
// receives everything; with both active the threat level overrides the
// user split, and the result is normalized to 100%.
func Allocate(totalPortfolio float64, split SplitConfig, threat ledger.ThreatLevel, primaryActive, secondActive bool) Allocation {
	if totalPortfolio < 0 {
		totalPortfolio = 0
	}

	switch {
	case !primaryActive && !secondActive:
		return Allocation{}
	case primaryActive && !secondActive:
		return Allocation{PoolPrimary: totalPortfolio, PctPrimary: 100}
	case secondActive && !primaryActive:
		return Allocation{PoolSecond: totalPortfolio, PctSecond: 100}
	}

	var pctPrimary, pctSecond float64
	switch threat {
	case ledger.ThreatDominant:
		pctPrimary, pctSecond = 50, 50
	case ledger.ThreatWarning:
		pctPrimary, pctSecond = 75, 25
	case ledger.ThreatCritical:
		pctPrimary, pctSecond = 87, 13
	default:
		pctPrimary, pctSecond = split.PrimaryPct, split.SecondPct
	}

	if total := pctPrimary + pctSecond; total > 0 && total != 100 {
		pctPrimary = pctPrimary / total * 100
		pctSecond = pctSecond / total * 100
	}

	return Allocation{
		PoolPrimary: totalPortfolio * pctPrimary / 100,
		PoolSecond:  totalPortfolio * pctSecond / 100,
		PctPrimary:  pctPrimary,
		PctSecond:   pctSecond,
	}
}
