package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
)

func memoryStore() *SnapshotStore {
	// Empty address skips Redis entirely.
	return NewSnapshotStore("", 0, zerolog.Nop())
}

func TestInMemoryFallbackRoundTrip(t *testing.T) {
	s := memoryStore()
	if s.Available() {
		t.Fatal("no redis address should mean unavailable")
	}

	ctx := context.Background()
	pos := &position.Position{
		ID:         position.NewID(),
		Pair:       "BTCUSDT",
		Strategy:   "scored",
		Direction:  position.Long,
		EntryPrice: 100,
		Qty:        2,
		StopLoss:   99,
		Status:     position.StatusOpen,
		EntryTime:  time.Now(),
	}
	if err := s.Save(ctx, pos); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].Pair != "BTCUSDT" || loaded[0].Qty != 2 {
		t.Fatalf("loaded = %+v", loaded)
	}

	// Mutating the caller's position must not touch the stored copy.
	pos.Qty = 1
	loaded, _ = s.Load(ctx)
	if loaded[0].Qty != 2 {
		t.Error("store must hold its own copy")
	}
}

func TestDeleteRemovesSnapshot(t *testing.T) {
	s := memoryStore()
	ctx := context.Background()

	s.Save(ctx, &position.Position{ID: "a", Pair: "BTCUSDT"})
	s.Save(ctx, &position.Position{ID: "b", Pair: "ETHUSDT"})
	s.Delete(ctx, "BTCUSDT")

	loaded, _ := s.Load(ctx)
	if len(loaded) != 1 || loaded[0].Pair != "ETHUSDT" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestSaveOverwritesSamePair(t *testing.T) {
	s := memoryStore()
	ctx := context.Background()

	s.Save(ctx, &position.Position{ID: "a", Pair: "BTCUSDT", Qty: 2})
	s.Save(ctx, &position.Position{ID: "a", Pair: "BTCUSDT", Qty: 1})

	loaded, _ := s.Load(ctx)
	if len(loaded) != 1 || loaded[0].Qty != 1 {
		t.Fatalf("loaded = %+v", loaded)
	}
}
