package guards

import "fmt"

// FeeImpactResult holds the projected round-trip economics of a trade
type FeeImpactResult struct {
	Blocked        bool    `json:"blocked"`
	RoundTripFees  float64 `json:"round_trip_fees"`
	GrossProfit    float64 `json:"gross_profit"`
	NetProfit      float64 `json:"net_profit"`
	Reason         string  `json:"reason"`
}

// EvaluateFeeImpact computes taker fees for entry plus exit against the
// move from entry to the first target. A trade whose projected net
// profit is negative or below minNetAbs is not worth the fees; the
// pipeline enforces this block in live mode only.
func EvaluateFeeImpact(entryPrice, tp1Price, notional, takerFeePct, minNetAbs float64) FeeImpactResult {
	result := FeeImpactResult{}

	if entryPrice <= 0 || notional <= 0 {
		result.Blocked = true
		result.Reason = "invalid entry price or notional"
		return result
	}

	move := tp1Price - entryPrice
	if move < 0 {
		move = -move
	}

	result.GrossProfit = notional * move / entryPrice
	result.RoundTripFees = notional * takerFeePct / 100 * 2
	result.NetProfit = result.GrossProfit - result.RoundTripFees

	if result.NetProfit <= 0 {
		result.Blocked = true
		result.Reason = fmt.Sprintf("fees %.4f eat gross profit %.4f to first target",
			result.RoundTripFees, result.GrossProfit)
		return result
	}
	if result.NetProfit < minNetAbs {
		result.Blocked = true
		result.Reason = fmt.Sprintf("net profit %.4f below minimum %.2f", result.NetProfit, minNetAbs)
	}

	return result
}
