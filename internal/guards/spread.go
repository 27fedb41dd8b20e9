package guards

import "fmt"

// SpreadStatus classifies spread width into bands
type SpreadStatus string

const (
	SpreadGreen  SpreadStatus = "green"  // < 0.05% of mid
	SpreadYellow SpreadStatus = "yellow" // < the scalp-unsafe limit
	SpreadRed    SpreadStatus = "red"    // at or past the limit
)

const (
	spreadGreenMaxPct = 0.05

	// DefaultMaxSpreadPct is the scalp-unsafe limit used when no
	// threshold is configured.
	DefaultMaxSpreadPct = 0.15
)

// SpreadResult holds the spread assessment for one book top
type SpreadResult struct {
	BestBid    float64      `json:"best_bid"`
	BestAsk    float64      `json:"best_ask"`
	SpreadPct  float64      `json:"spread_pct"` // of mid price
	Status     SpreadStatus `json:"status"`
	ScalpSafe  bool         `json:"scalp_safe"`
	Reason     string       `json:"reason"`
}

// EvaluateSpread computes the bid/ask spread as a percentage of the mid
// price and assigns a status band. The red band starts at maxPct
// (DefaultMaxSpreadPct when maxPct <= 0). ScalpSafe is false in the red
// band; the pipeline enforces it only for latency-sensitive strategies.
func EvaluateSpread(bestBid, bestAsk, maxPct float64) SpreadResult {
	result := SpreadResult{BestBid: bestBid, BestAsk: bestAsk}

	if maxPct <= 0 {
		maxPct = DefaultMaxSpreadPct
	}
	greenMax := spreadGreenMaxPct
	if maxPct < greenMax {
		greenMax = maxPct
	}

	if bestBid <= 0 || bestAsk <= 0 || bestAsk < bestBid {
		result.Status = SpreadRed
		result.Reason = "invalid book top"
		return result
	}

	mid := (bestBid + bestAsk) / 2
	result.SpreadPct = (bestAsk - bestBid) / mid * 100

	switch {
	case result.SpreadPct < greenMax:
		result.Status = SpreadGreen
		result.ScalpSafe = true
	case result.SpreadPct < maxPct:
		result.Status = SpreadYellow
		result.ScalpSafe = true
	default:
		result.Status = SpreadRed
		result.Reason = fmt.Sprintf("spread %.3f%% exceeds scalp-safe limit %.2f%%",
			result.SpreadPct, maxPct)
	}

	return result
}
