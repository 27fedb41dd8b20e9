package market

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func exchangeStub(tickerCalls *atomic.Int64) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			http.Error(w, "unknown symbol", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`[
			[1717200000000,"100.0","101.0","99.0","100.5","12.5",1717200899999,"1256.2",42,"6.0","603.1"],
			[1717200900000,"100.5","102.0","100.0","101.5","9.1",1717201799999,"923.4",31,"4.4","446.6"]
		]`))
	})
	mux.HandleFunc("/api/v3/depth", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids":[["101.4","3.0"],["101.3","5.0"]],"asks":[["101.6","2.0"],["101.7","4.0"]]}`))
	})
	mux.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		if tickerCalls != nil {
			tickerCalls.Add(1)
		}
		w.Write([]byte(`{"lastPrice":"101.5","quoteVolume":"2500000.0"}`))
	})
	return mux
}

func TestSnapshotAssembly(t *testing.T) {
	srv := httptest.NewServer(exchangeStub(nil))
	defer srv.Close()

	p := NewRESTProvider(srv.URL, nil, zerolog.Nop())

	snap, err := p.Snapshot("BTCUSDT", "15m")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(snap.Candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(snap.Candles))
	}
	last := snap.LastCandle()
	if last.Close != 101.5 || last.High != 102.0 {
		t.Errorf("last candle = %+v", last)
	}
	if got := last.CloseTime.UnixMilli(); got != 1717201799999 {
		t.Errorf("close time = %d", got)
	}
	if snap.OrderBook.BestBid() != 101.4 || snap.OrderBook.BestAsk() != 101.6 {
		t.Errorf("book top = %v / %v", snap.OrderBook.BestBid(), snap.OrderBook.BestAsk())
	}
	if snap.Ticker.Price != 101.5 || snap.Ticker.Volume24h != 2500000.0 {
		t.Errorf("ticker = %+v", snap.Ticker)
	}
}

func TestSnapshotErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(exchangeStub(nil))
	defer srv.Close()

	p := NewRESTProvider(srv.URL, nil, zerolog.Nop())

	if _, err := p.Snapshot("DOGEUSDT", "15m"); err == nil {
		t.Fatal("expected error for unknown symbol")
	}
}

func TestTickerCache(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(exchangeStub(&calls))
	defer srv.Close()

	p := NewRESTProvider(srv.URL, nil, zerolog.Nop())

	for i := 0; i < 5; i++ {
		price, err := p.Price("BTCUSDT")
		if err != nil {
			t.Fatalf("Price: %v", err)
		}
		if price != 101.5 {
			t.Errorf("price = %v", price)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("ticker endpoint hit %d times within the cache window, want 1", got)
	}
}
