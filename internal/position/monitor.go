package position

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/events"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/execution"
)

const qtyEpsilon = 1e-9

// PriceFunc returns the latest known price for a pair.
type PriceFunc func(pair string) (float64, error)

// ResultSink receives the single trade result emitted when a position
// fully closes.
type ResultSink func(*TradeResult)

// MonitorConfig tunes the monitor loop.
type MonitorConfig struct {
	TickInterval     time.Duration
	TP1CloseFraction float64 // fraction of qty closed at the first target
	ExitSlippagePct  float64 // adverse adjustment applied to exit fills
}

// DefaultMonitorConfig returns the standard 500ms loop.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		TickInterval:     500 * time.Millisecond,
		TP1CloseFraction: 0.5,
		ExitSlippagePct:  0.05,
	}
}

type tracked struct {
	pos           *Position
	origQty       float64
	requestedExit ExitKind // set by RequestExit, cleared on close
}

// Monitor owns every open position. It checks stops, targets, trailing
// and hold limits on a short fixed interval and is the only component
// that mutates position stop/trailing fields.
type Monitor struct {
	config MonitorConfig
	bridge execution.Bridge
	price  PriceFunc
	onClose ResultSink
	logger zerolog.Logger

	mu        sync.RWMutex
	positions map[string]*tracked // by position ID

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewMonitor(config MonitorConfig, bridge execution.Bridge, price PriceFunc, onClose ResultSink, logger zerolog.Logger) *Monitor {
	if config.TickInterval <= 0 {
		config.TickInterval = 500 * time.Millisecond
	}
	if config.TP1CloseFraction <= 0 || config.TP1CloseFraction >= 1 {
		config.TP1CloseFraction = 0.5
	}
	return &Monitor{
		config:    config,
		bridge:    bridge,
		price:     price,
		onClose:   onClose,
		logger:    logger.With().Str("component", "monitor").Logger(),
		positions: make(map[string]*tracked),
		stopCh:    make(chan struct{}),
	}
}

// Track adopts a freshly filled position. At most one open position per
// pair is allowed across all strategies.
func (m *Monitor) Track(pos *Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.positions {
		if t.pos.Pair == pos.Pair {
			return fmt.Errorf("pair %s already held by strategy %s", pos.Pair, t.pos.Strategy)
		}
	}

	pos.Status = StatusOpen
	m.positions[pos.ID] = &tracked{pos: pos, origQty: pos.Qty}

	m.logger.Info().
		Str("id", pos.ID).
		Str("pair", pos.Pair).
		Str("strategy", pos.Strategy).
		Str("direction", string(pos.Direction)).
		Float64("entry", pos.EntryPrice).
		Float64("qty", pos.Qty).
		Msg("position opened")

	events.BroadcastPositionUpdate(map[string]interface{}{
		"action":   "opened",
		"position": pos,
	})
	return nil
}

// RequestExit flags a position for a strategy-driven close on the next
// tick. Unknown IDs are ignored.
func (m *Monitor) RequestExit(positionID string, kind ExitKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.positions[positionID]; ok {
		t.requestedExit = kind
	}
}

// Open returns copies of all open positions.
func (m *Monitor) Open() []*Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Position, 0, len(m.positions))
	for _, t := range m.positions {
		cp := *t.pos
		out = append(out, &cp)
	}
	return out
}

// ForPair returns a copy of the open position on a pair, if any.
func (m *Monitor) ForPair(pair string) (*Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.positions {
		if t.pos.Pair == pair {
			cp := *t.pos
			return &cp, true
		}
	}
	return nil, false
}

// Count returns the number of open positions.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// CountDirection returns how many open positions share a direction.
func (m *Monitor) CountDirection(dir Direction) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.positions {
		if t.pos.Direction == dir {
			n++
		}
	}
	return n
}

// Start launches the monitor loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Tick(time.Now())
			}
		}
	}()
	m.logger.Info().Dur("interval", m.config.TickInterval).Msg("monitor started")
}

// Stop halts the loop. Open positions are left open.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Tick evaluates every open position against the latest price. It is
// exported so the scanner tests and the loop share one code path.
func (m *Monitor) Tick(now time.Time) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.positions))
	for id := range m.positions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.checkPosition(id, now)
	}
}

func (m *Monitor) checkPosition(id string, now time.Time) {
	m.mu.Lock()
	t, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	pos := t.pos

	price, err := m.price(pos.Pair)
	if err != nil || price <= 0 {
		m.mu.Unlock()
		m.logger.Debug().Str("pair", pos.Pair).Err(err).Msg("no price, position check skipped")
		return
	}

	long := pos.Direction == Long

	// Trailing ratchet first so a fresh tick can only tighten, never
	// loosen the stop.
	if pos.TrailingActive && pos.TrailingStopDistance > 0 {
		if long {
			if candidate := price - pos.TrailingStopDistance; candidate > pos.TrailingStop {
				pos.TrailingStop = candidate
			}
		} else {
			if candidate := price + pos.TrailingStopDistance; candidate < pos.TrailingStop || pos.TrailingStop == 0 {
				pos.TrailingStop = candidate
			}
		}
	}

	var (
		closeQty float64
		kind     ExitKind
	)

	switch {
	case stopHit(pos, price, long):
		closeQty, kind = pos.Qty, ExitStopLoss

	case pos.TrailingActive && trailingHit(pos, price, long):
		closeQty, kind = pos.Qty, ExitTrailing

	case pos.TP1Hit && tpHit(pos.TP2Price, price, long):
		closeQty, kind = pos.Qty, ExitTP2

	case !pos.TP1Hit && tpHit(pos.TP1Price, price, long):
		closeQty, kind = pos.Qty*m.config.TP1CloseFraction, ExitTP1

	case pos.MaxHold > 0 && pos.Age(now) > pos.MaxHold:
		m.logger.Warn().Str("pair", pos.Pair).Dur("age", pos.Age(now)).Msg("max hold exceeded, forcing exit")
		closeQty, kind = pos.Qty, ExitMaxHold

	case t.requestedExit != "":
		closeQty, kind = pos.Qty, t.requestedExit
	}

	if closeQty <= 0 {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.closePart(id, closeQty, price, kind, now)
}

func stopHit(pos *Position, price float64, long bool) bool {
	if pos.StopLoss <= 0 {
		return false
	}
	if long {
		return price <= pos.StopLoss
	}
	return price >= pos.StopLoss
}

func trailingHit(pos *Position, price float64, long bool) bool {
	if pos.TrailingStop <= 0 {
		return false
	}
	if long {
		return price <= pos.TrailingStop
	}
	return price >= pos.TrailingStop
}

func tpHit(target, price float64, long bool) bool {
	if target <= 0 {
		return false
	}
	if long {
		return price >= target
	}
	return price <= target
}

// closePart executes an exit. A bridge failure leaves the position
// untouched; the next tick retries.
func (m *Monitor) closePart(id string, qty, price float64, kind ExitKind, now time.Time) {
	m.mu.RLock()
	t, ok := m.positions[id]
	if !ok {
		m.mu.RUnlock()
		return
	}
	pos := t.pos
	long := pos.Direction == Long
	pair, direction := pos.Pair, pos.Direction
	m.mu.RUnlock()

	exitPrice := m.adjustExit(price, long)
	var fee float64

	if m.bridge != nil {
		side := execution.SideSell
		if direction == Short {
			side = execution.SideBuy
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		fill, err := m.bridge.SubmitOrder(ctx, &execution.OrderRequest{
			Pair:   pair,
			Side:   side,
			Type:   execution.TypeMarket,
			Qty:    qty,
			Reason: string(kind),
		})
		cancel()
		if err != nil {
			m.logger.Error().Err(err).Str("pair", pair).Str("exit", string(kind)).Msg("exit order failed, will retry")
			return
		}
		exitPrice = fill.Price
		fee = fill.Fee
	}

	m.mu.Lock()
	t, ok = m.positions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	pos = t.pos

	pnl := (exitPrice - pos.EntryPrice) * qty
	if !long {
		pnl = -pnl
	}
	pos.Qty -= qty
	pos.RealizedPnL += pnl
	pos.FeesPaid += fee

	if kind == ExitTP1 {
		pos.TP1Hit = true
		pos.StopLoss = pos.EntryPrice // breakeven
		pos.TrailingActive = true
		if pos.TrailingStopDistance > 0 {
			if long {
				pos.TrailingStop = price - pos.TrailingStopDistance
			} else {
				pos.TrailingStop = price + pos.TrailingStopDistance
			}
		}
	}

	m.logger.Info().
		Str("pair", pos.Pair).
		Str("exit", string(kind)).
		Float64("qty", qty).
		Float64("price", exitPrice).
		Float64("pnl", pnl).
		Msg("position exit")

	if math.Abs(pos.Qty) > qtyEpsilon {
		cp := *pos
		m.mu.Unlock()
		events.BroadcastPositionUpdate(map[string]interface{}{
			"action":   "partial_close",
			"exit":     string(kind),
			"position": &cp,
		})
		return
	}

	// Full close: emit exactly one trade result.
	pos.Qty = 0
	pos.Status = StatusClosed
	result := &TradeResult{
		PositionID: pos.ID,
		Pair:       pos.Pair,
		Strategy:   pos.Strategy,
		Mode:       pos.Mode,
		Direction:  pos.Direction,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Qty:        t.origQty,

		ReservedNotional: pos.ReservedNotional,
		PnL:              pos.RealizedPnL,
		Fees:             pos.FeesPaid,
		ExitKind:         kind,
		OpenedAt:         pos.EntryTime,
		ClosedAt:         now,
	}
	delete(m.positions, id)
	m.mu.Unlock()

	if m.onClose != nil {
		m.onClose(result)
	}
	events.BroadcastPositionUpdate(map[string]interface{}{
		"action": "closed",
		"result": result,
	})
}

// adjustExit moves the observed price against the trade by the fixed
// exit slippage. Bridge fills override it.
func (m *Monitor) adjustExit(price float64, long bool) float64 {
	slip := price * m.config.ExitSlippagePct / 100
	if long {
		return price - slip
	}
	return price + slip
}

// Stats summarizes the monitor for the status endpoint.
func (m *Monitor) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"open_positions": len(m.positions),
		"tick_interval":  m.config.TickInterval.String(),
	}
}
