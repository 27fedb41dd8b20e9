package market

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RESTProvider fetches candles, order books, and tickers from a spot
// exchange REST API and merges asynchronously computed indicators into
// the snapshots it returns. It satisfies Provider.
type RESTProvider struct {
	baseURL    string
	httpClient *http.Client
	indicators *IndicatorWorker
	logger     zerolog.Logger

	mu      sync.RWMutex
	tickers map[string]tickerEntry
}

type tickerEntry struct {
	ticker    Ticker
	fetchedAt time.Time
}

const tickerCacheTTL = 2 * time.Second

func NewRESTProvider(baseURL string, indicators *IndicatorWorker, logger zerolog.Logger) *RESTProvider {
	return &RESTProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		indicators: indicators,
		logger:     logger.With().Str("component", "market").Logger(),
		tickers:    make(map[string]tickerEntry),
	}
}

// Snapshot assembles the full per-pair market state for one timeframe.
// Indicators come from the background worker; a snapshot without them
// yet is returned with an empty indicator map rather than blocking.
func (p *RESTProvider) Snapshot(pair, timeframe string) (*Snapshot, error) {
	candles, err := p.fetchCandles(pair, timeframe, 100)
	if err != nil {
		return nil, err
	}
	book, err := p.fetchOrderBook(pair, 20)
	if err != nil {
		return nil, err
	}
	ticker, err := p.fetchTicker(pair)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Pair:      pair,
		Timeframe: timeframe,
		Candles:   candles,
		OrderBook: book,
		Ticker:    ticker,
	}
	if p.indicators != nil {
		snap.Indicators = p.indicators.Request(pair, timeframe, candles)
	}
	return snap, nil
}

// Price returns the latest trade price.
func (p *RESTProvider) Price(pair string) (float64, error) {
	ticker, err := p.fetchTicker(pair)
	if err != nil {
		return 0, err
	}
	return ticker.Price, nil
}

func (p *RESTProvider) fetchCandles(pair, timeframe string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(limit))

	var raw [][]interface{}
	if err := p.getJSON(fmt.Sprintf("/api/v3/klines?%s", params.Encode()), &raw); err != nil {
		return nil, fmt.Errorf("fetch candles %s %s: %w", pair, timeframe, err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		openMs, _ := row[0].(float64)
		closeMs, _ := row[6].(float64)
		candles = append(candles, Candle{
			OpenTime:  time.UnixMilli(int64(openMs)),
			CloseTime: time.UnixMilli(int64(closeMs)),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		})
	}
	return candles, nil
}

func (p *RESTProvider) fetchOrderBook(pair string, depth int) (*OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("limit", strconv.Itoa(depth))

	var raw struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := p.getJSON(fmt.Sprintf("/api/v3/depth?%s", params.Encode()), &raw); err != nil {
		return nil, fmt.Errorf("fetch order book %s: %w", pair, err)
	}

	return &OrderBook{
		Bids: parseLevels(raw.Bids),
		Asks: parseLevels(raw.Asks),
	}, nil
}

func (p *RESTProvider) fetchTicker(pair string) (*Ticker, error) {
	p.mu.RLock()
	entry, ok := p.tickers[pair]
	p.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < tickerCacheTTL {
		t := entry.ticker
		return &t, nil
	}

	params := url.Values{}
	params.Set("symbol", pair)

	var raw struct {
		LastPrice   string `json:"lastPrice"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := p.getJSON(fmt.Sprintf("/api/v3/ticker/24hr?%s", params.Encode()), &raw); err != nil {
		return nil, fmt.Errorf("fetch ticker %s: %w", pair, err)
	}

	price, _ := strconv.ParseFloat(raw.LastPrice, 64)
	volume, _ := strconv.ParseFloat(raw.QuoteVolume, 64)
	ticker := Ticker{Price: price, Volume24h: volume}

	p.mu.Lock()
	p.tickers[pair] = tickerEntry{ticker: ticker, fetchedAt: time.Now()}
	p.mu.Unlock()

	return &ticker, nil
}

func (p *RESTProvider) getJSON(path string, out interface{}) error {
	resp, err := p.httpClient.Get(p.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func parseLevels(raw [][]string) []BookLevel {
	levels := make([]BookLevel, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			continue
		}
		price, _ := strconv.ParseFloat(row[0], 64)
		qty, _ := strconv.ParseFloat(row[1], 64)
		levels = append(levels, BookLevel{Price: price, Qty: qty})
	}
	return levels
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	}
	return 0
}
