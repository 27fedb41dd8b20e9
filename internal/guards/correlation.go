package guards

import "fmt"

// Static pairwise correlation table for the major spot pairs the
// engine trades. Values are symmetric; missing lookups fall back to
// the base-asset heuristic below.
var correlationTable = map[string]map[string]float64{
	"BTCUSDT": {"ETHUSDT": 0.82, "BNBUSDT": 0.74, "SOLUSDT": 0.72, "LTCUSDT": 0.78, "ADAUSDT": 0.68},
	"ETHUSDT": {"BTCUSDT": 0.82, "BNBUSDT": 0.76, "SOLUSDT": 0.79, "LTCUSDT": 0.71, "ADAUSDT": 0.73},
	"BNBUSDT": {"BTCUSDT": 0.74, "ETHUSDT": 0.76, "SOLUSDT": 0.66, "LTCUSDT": 0.62, "ADAUSDT": 0.61},
	"SOLUSDT": {"BTCUSDT": 0.72, "ETHUSDT": 0.79, "BNBUSDT": 0.66, "LTCUSDT": 0.58, "ADAUSDT": 0.70},
	"LTCUSDT": {"BTCUSDT": 0.78, "ETHUSDT": 0.71, "BNBUSDT": 0.62, "SOLUSDT": 0.58, "ADAUSDT": 0.64},
	"ADAUSDT": {"BTCUSDT": 0.68, "ETHUSDT": 0.73, "BNBUSDT": 0.61, "SOLUSDT": 0.70, "LTCUSDT": 0.64},
}

// PairCorrelation returns the static correlation between two pairs.
// Unknown combinations return 0.5, a neutral assumption for the
// broadly correlated crypto spot market.
func PairCorrelation(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if row, ok := correlationTable[a]; ok {
		if corr, ok := row[b]; ok {
			return corr
		}
	}
	return 0.5
}

// CorrelationResult holds the size adjustment decision
type CorrelationResult struct {
	MaxCorrelation float64 `json:"max_correlation"`
	AgainstPair    string  `json:"against_pair"`
	SizeFactor     float64 `json:"size_factor"`
	Reason         string  `json:"reason"`
}

// EvaluateCorrelation checks a candidate pair against every open
// position's pair. A correlation at or above threshold halves the
// intended size; this guard never blocks outright.
func EvaluateCorrelation(candidate string, openPairs []string, threshold float64) CorrelationResult {
	result := CorrelationResult{SizeFactor: 1.0}

	for _, pair := range openPairs {
		corr := PairCorrelation(candidate, pair)
		if corr > result.MaxCorrelation {
			result.MaxCorrelation = corr
			result.AgainstPair = pair
		}
	}

	if result.MaxCorrelation >= threshold {
		result.SizeFactor = 0.5
		result.Reason = fmt.Sprintf("correlation %.2f with open %s position, size halved",
			result.MaxCorrelation, result.AgainstPair)
	}

	return result
}
