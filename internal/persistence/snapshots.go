package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
)

const (
	// snapshotKeyPrefix keys one open position: engine:position:{pair}
	snapshotKeyPrefix = "engine:position"

	// snapshotSetKey lists the pairs with a stored snapshot.
	snapshotSetKey = "engine:positions:pairs"

	// snapshotTTL keeps stale snapshots from outliving a dead engine
	// by more than a week.
	snapshotTTL = 7 * 24 * time.Hour
)

// SnapshotStore persists open positions to Redis so a restart can
// recover them. When Redis is unreachable it falls back to an
// in-memory cache so trading continues; the cache does not survive a
// process restart.
type SnapshotStore struct {
	client    *redis.Client
	logger    zerolog.Logger
	available atomic.Bool

	mu    sync.RWMutex
	cache map[string]*position.Position // by pair
}

// NewSnapshotStore connects to Redis. A failed ping degrades to the
// in-memory fallback instead of returning an error.
func NewSnapshotStore(addr string, db int, logger zerolog.Logger) *SnapshotStore {
	s := &SnapshotStore{
		logger: logger.With().Str("component", "snapshots").Logger(),
		cache:  make(map[string]*position.Position),
	}
	if addr == "" {
		s.logger.Info().Msg("no redis address, using in-memory snapshots")
		return s
	}

	s.client = redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis unreachable, using in-memory snapshots")
	} else {
		s.available.Store(true)
		s.logger.Info().Str("addr", addr).Msg("redis snapshot store connected")
	}
	return s
}

// Save upserts the snapshot for a position's pair.
func (s *SnapshotStore) Save(ctx context.Context, pos *position.Position) error {
	cp := *pos
	s.mu.Lock()
	s.cache[cp.Pair] = &cp
	s.mu.Unlock()

	if !s.available.Load() {
		return nil
	}

	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", cp.Pair, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, snapshotKey(cp.Pair), data, snapshotTTL)
	pipe.SAdd(ctx, snapshotSetKey, cp.Pair)
	if _, err := pipe.Exec(ctx); err != nil {
		s.markUnavailable(err)
		return nil // cache already holds it
	}
	return nil
}

// Delete removes the snapshot when a position fully closes.
func (s *SnapshotStore) Delete(ctx context.Context, pair string) {
	s.mu.Lock()
	delete(s.cache, pair)
	s.mu.Unlock()

	if !s.available.Load() {
		return
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, snapshotKey(pair))
	pipe.SRem(ctx, snapshotSetKey, pair)
	if _, err := pipe.Exec(ctx); err != nil {
		s.markUnavailable(err)
	}
}

// Load returns every stored snapshot, for crash recovery at startup.
func (s *SnapshotStore) Load(ctx context.Context) ([]*position.Position, error) {
	if s.available.Load() {
		pairs, err := s.client.SMembers(ctx, snapshotSetKey).Result()
		if err == nil {
			out := make([]*position.Position, 0, len(pairs))
			for _, pair := range pairs {
				data, err := s.client.Get(ctx, snapshotKey(pair)).Bytes()
				if err != nil {
					if err != redis.Nil {
						s.logger.Warn().Err(err).Str("pair", pair).Msg("snapshot read failed")
					}
					continue
				}
				var pos position.Position
				if err := json.Unmarshal(data, &pos); err != nil {
					s.logger.Warn().Err(err).Str("pair", pair).Msg("snapshot unmarshal failed")
					continue
				}
				out = append(out, &pos)
			}
			return out, nil
		}
		s.markUnavailable(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*position.Position, 0, len(s.cache))
	for _, pos := range s.cache {
		cp := *pos
		out = append(out, &cp)
	}
	return out, nil
}

// Available reports whether Redis is currently reachable.
func (s *SnapshotStore) Available() bool {
	return s.available.Load()
}

// Close shuts the Redis connection down.
func (s *SnapshotStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *SnapshotStore) markUnavailable(err error) {
	if s.available.CompareAndSwap(true, false) {
		s.logger.Warn().Err(err).Msg("redis lost, degraded to in-memory snapshots")
	}
}

func snapshotKey(pair string) string {
	return fmt.Sprintf("%s:%s", snapshotKeyPrefix, pair)
}
