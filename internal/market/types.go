package market

import "time"

// Candle represents one OHLCV bar
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// BookLevel is one price level of the order book
type BookLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook holds bids and asks sorted best-first
type OrderBook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// BestBid returns the top bid price, 0 when the book side is empty.
func (ob *OrderBook) BestBid() float64 {
	if ob == nil || len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the top ask price, 0 when the book side is empty.
func (ob *OrderBook) BestAsk() float64 {
	if ob == nil || len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Ticker holds the latest trade price and rolling volume
type Ticker struct {
	Price     float64 `json:"price"`
	Volume24h float64 `json:"volume_24h"`
}

// Snapshot is the per-pair market state the engine evaluates against.
// Indicators map name to an array aligned with Candles; the engine
// treats indicator computation as an external service and only reads.
type Snapshot struct {
	Pair       string               `json:"pair"`
	Timeframe  string               `json:"timeframe"`
	Candles    []Candle             `json:"candles"`
	OrderBook  *OrderBook           `json:"order_book"`
	Ticker     *Ticker              `json:"ticker"`
	Indicators map[string][]float64 `json:"indicators"`
}

// LastCandle returns the newest candle, nil when no candles are loaded.
func (s *Snapshot) LastCandle() *Candle {
	if s == nil || len(s.Candles) == 0 {
		return nil
	}
	return &s.Candles[len(s.Candles)-1]
}

// Indicator returns the latest value of a named indicator series.
func (s *Snapshot) Indicator(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	series, ok := s.Indicators[name]
	if !ok || len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// IndicatorAt returns an indicator value offset candles back from the
// newest bar (offset 0 is the latest).
func (s *Snapshot) IndicatorAt(name string, offset int) (float64, bool) {
	if s == nil {
		return 0, false
	}
	series, ok := s.Indicators[name]
	if !ok || len(series) <= offset {
		return 0, false
	}
	return series[len(series)-1-offset], true
}

// Canonical indicator series names supplied by the indicator backend.
const (
	IndADX     = "adx"
	IndATRPct  = "atr_pct"
	IndRSI     = "rsi"
	IndBBWidth = "bb_width"
	IndEMAFast = "ema_fast"
	IndEMASlow = "ema_slow"
	IndVolSMA  = "volume_sma"
)

// Provider supplies market state per pair and timeframe. The engine
// never mutates what it returns.
type Provider interface {
	Snapshot(pair, timeframe string) (*Snapshot, error)
	Price(pair string) (float64, error)
}
