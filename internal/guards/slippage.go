package guards

import (
	"fmt"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
)

// SlippageResult holds the estimated fill quality for a sized order
type SlippageResult struct {
	Blocked      bool    `json:"blocked"`
	AvgFillPrice float64 `json:"avg_fill_price"`
	BestPrice    float64 `json:"best_price"`
	DeviationPct float64 `json:"deviation_pct"`
	FilledQty    float64 `json:"filled_qty"`
	Reason       string  `json:"reason"`
}

// EstimateSlippage walks one side of the book consuming depth until
// baseQty is filled and compares the volume-weighted fill price to the
// best price. Blocks when depth runs out or the deviation exceeds
// maxDeviationPct. For buys pass the asks, for sells the bids.
func EstimateSlippage(levels []market.BookLevel, baseQty, maxDeviationPct float64) SlippageResult {
	result := SlippageResult{}

	if baseQty <= 0 {
		result.Blocked = true
		result.Reason = "non-positive order size"
		return result
	}
	if len(levels) == 0 {
		result.Blocked = true
		result.Reason = "empty order book side"
		return result
	}

	result.BestPrice = levels[0].Price

	remaining := baseQty
	cost := 0.0
	for _, level := range levels {
		if remaining <= 0 {
			break
		}
		take := level.Qty
		if take > remaining {
			take = remaining
		}
		cost += take * level.Price
		remaining -= take
	}

	if remaining > 0 {
		result.Blocked = true
		result.FilledQty = baseQty - remaining
		result.Reason = fmt.Sprintf("insufficient depth: %.6f of %.6f fillable", result.FilledQty, baseQty)
		return result
	}

	result.FilledQty = baseQty
	result.AvgFillPrice = cost / baseQty
	if result.BestPrice > 0 {
		deviation := result.AvgFillPrice - result.BestPrice
		if deviation < 0 {
			deviation = -deviation
		}
		result.DeviationPct = deviation / result.BestPrice * 100
	}

	if result.DeviationPct > maxDeviationPct {
		result.Blocked = true
		result.Reason = fmt.Sprintf("estimated slippage %.3f%% exceeds %.2f%%",
			result.DeviationPct, maxDeviationPct)
	}

	return result
}
