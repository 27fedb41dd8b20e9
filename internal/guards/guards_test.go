package guards

import (
	"math"
	"testing"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
)

func TestEvaluateSpreadBands(t *testing.T) {
	tests := []struct {
		name       string
		bid, ask   float64
		wantStatus SpreadStatus
		wantSafe   bool
	}{
		{"tight book", 100.00, 100.03, SpreadGreen, true},
		{"moderate book", 100.00, 100.08, SpreadYellow, true},
		{"wide book", 100.00, 100.20, SpreadRed, false},
		{"crossed book", 100.00, 99.00, SpreadRed, false},
		{"empty book", 0, 0, SpreadRed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EvaluateSpread(tt.bid, tt.ask, 0)
			if result.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s (spread %.4f%%)", result.Status, tt.wantStatus, result.SpreadPct)
			}
			if result.ScalpSafe != tt.wantSafe {
				t.Errorf("scalpSafe = %v, want %v", result.ScalpSafe, tt.wantSafe)
			}
		})
	}
}

func TestEvaluateSpreadPercentOfMid(t *testing.T) {
	// bid=100.00 ask=100.20: spread 0.20 over mid 100.10
	result := EvaluateSpread(100.00, 100.20, 0)
	want := 0.20 / 100.10 * 100
	if math.Abs(result.SpreadPct-want) > 1e-9 {
		t.Errorf("spreadPct = %.6f, want %.6f", result.SpreadPct, want)
	}
}

func TestEvaluateSpreadConfiguredThreshold(t *testing.T) {
	// ~0.12% spread: yellow under the default limit, red under a 0.10% one.
	result := EvaluateSpread(100.00, 100.12, 0)
	if result.Status != SpreadYellow || !result.ScalpSafe {
		t.Fatalf("default limit: status = %s scalpSafe = %v, want yellow/true", result.Status, result.ScalpSafe)
	}

	result = EvaluateSpread(100.00, 100.12, 0.10)
	if result.Status != SpreadRed || result.ScalpSafe {
		t.Fatalf("0.10%% limit: status = %s scalpSafe = %v, want red/false", result.Status, result.ScalpSafe)
	}

	// A limit tighter than the green band shrinks the green band too.
	result = EvaluateSpread(100.00, 100.04, 0.03)
	if result.Status != SpreadRed {
		t.Errorf("0.03%% limit: status = %s, want red", result.Status)
	}
}

func TestEvaluateCorrelationHalvesSize(t *testing.T) {
	result := EvaluateCorrelation("ETHUSDT", []string{"BTCUSDT"}, 0.70)
	if result.SizeFactor != 0.5 {
		t.Errorf("sizeFactor = %.2f, want 0.5", result.SizeFactor)
	}
	if result.AgainstPair != "BTCUSDT" {
		t.Errorf("againstPair = %s, want BTCUSDT", result.AgainstPair)
	}
}

func TestEvaluateCorrelationNeverBlocks(t *testing.T) {
	result := EvaluateCorrelation("BTCUSDT", []string{"ETHUSDT", "SOLUSDT", "LTCUSDT"}, 0.70)
	if result.SizeFactor <= 0 {
		t.Fatalf("correlation guard must only scale, got factor %.2f", result.SizeFactor)
	}
}

func TestEvaluateCorrelationNoOpenPositions(t *testing.T) {
	result := EvaluateCorrelation("BTCUSDT", nil, 0.70)
	if result.SizeFactor != 1.0 {
		t.Errorf("sizeFactor = %.2f, want 1.0", result.SizeFactor)
	}
}

func TestEstimateSlippageWalksBook(t *testing.T) {
	asks := []market.BookLevel{
		{Price: 100, Qty: 1},
		{Price: 101, Qty: 1},
		{Price: 102, Qty: 1},
	}

	result := EstimateSlippage(asks, 2.5, 0.30)

	// 1@100 + 1@101 + 0.5@102 = 252 / 2.5 = 100.8
	want := 100.8
	if math.Abs(result.AvgFillPrice-want) > 1e-9 {
		t.Errorf("avgFillPrice = %.4f, want %.4f", result.AvgFillPrice, want)
	}
	if result.AvgFillPrice <= 100 || result.AvgFillPrice >= 102 {
		t.Errorf("avg fill price %.4f outside book range", result.AvgFillPrice)
	}
	// 0.8% deviation from best price 100 exceeds the 0.30% limit
	if !result.Blocked {
		t.Error("expected block, deviation exceeds limit")
	}
}

func TestEstimateSlippageWithinLimit(t *testing.T) {
	asks := []market.BookLevel{
		{Price: 100.00, Qty: 5},
		{Price: 100.05, Qty: 5},
	}

	result := EstimateSlippage(asks, 2, 0.30)
	if result.Blocked {
		t.Fatalf("unexpected block: %s", result.Reason)
	}
	if result.AvgFillPrice != 100.00 {
		t.Errorf("avgFillPrice = %.4f, want 100.00", result.AvgFillPrice)
	}
}

func TestEstimateSlippageInsufficientDepth(t *testing.T) {
	asks := []market.BookLevel{{Price: 100, Qty: 1}}

	result := EstimateSlippage(asks, 3, 0.30)
	if !result.Blocked {
		t.Fatal("expected block on insufficient depth")
	}
	if result.FilledQty != 1 {
		t.Errorf("filledQty = %.4f, want 1", result.FilledQty)
	}
}

func TestEvaluateFeeImpactBlocksUnprofitable(t *testing.T) {
	// 0.05% to target, 0.1% taker each way: fees dominate
	result := EvaluateFeeImpact(100, 100.05, 1000, 0.1, 0.5)
	if !result.Blocked {
		t.Fatalf("expected block, net=%.4f", result.NetProfit)
	}
}

func TestEvaluateFeeImpactAllowsProfitable(t *testing.T) {
	// 1% to target, 0.1% taker each way
	result := EvaluateFeeImpact(100, 101, 1000, 0.1, 0.5)
	if result.Blocked {
		t.Fatalf("unexpected block: %s", result.Reason)
	}
	wantNet := 10.0 - 2.0
	if math.Abs(result.NetProfit-wantNet) > 1e-9 {
		t.Errorf("netProfit = %.4f, want %.4f", result.NetProfit, wantNet)
	}
}

func TestEvaluateFeeImpactMinimumFloor(t *testing.T) {
	// Profitable but below the absolute floor
	result := EvaluateFeeImpact(100, 100.3, 100, 0.1, 0.5)
	if !result.Blocked {
		t.Fatalf("expected floor block, net=%.4f", result.NetProfit)
	}
}
