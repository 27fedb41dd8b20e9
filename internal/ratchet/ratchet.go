package ratchet

import (
	"sync"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/edge"
)

// Level is the current ratchet stage. Each stage down revokes the more
// aggressive sub-modes and cuts position size.
type Level int

const (
	LevelFull      Level = iota // all modes, full size
	LevelReduced                // scalp revoked
	LevelDefensive              // conservative mode only
	LevelHalted                 // no mode may trade
)

func (l Level) String() string {
	switch l {
	case LevelFull:
		return "full"
	case LevelReduced:
		return "reduced"
	case LevelDefensive:
		return "defensive"
	case LevelHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Drawdown thresholds from the intraday high-water mark, as a fraction
// of the strategy's capital pool.
const (
	reducedDrawdownPct   = 1.0
	defensiveDrawdownPct = 2.0
	haltedDrawdownPct    = 3.0
)

// Ratchet throttles the secondary strategy from its own intraday
// results. It only steps down within a day; RollDay rearms it.
type Ratchet struct {
	mu            sync.RWMutex
	pool          float64 // capital pool the drawdown is measured against
	intradayPnL   float64
	highWaterMark float64
}

// New creates a ratchet for a capital pool.
func New(pool float64) *Ratchet {
	return &Ratchet{pool: pool}
}

// SetPool updates the pool the drawdown percentage is computed from.
func (r *Ratchet) SetPool(pool float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pool = pool
}

// RecordPnL applies a closed-trade result to the intraday track.
func (r *Ratchet) RecordPnL(pnl float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.intradayPnL += pnl
	if r.intradayPnL > r.highWaterMark {
		r.highWaterMark = r.intradayPnL
	}
}

// RollDay resets the intraday track at the day boundary.
func (r *Ratchet) RollDay() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intradayPnL = 0
	r.highWaterMark = 0
}

// Level returns the current ratchet stage.
func (r *Ratchet) Level() Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.levelLocked()
}

func (r *Ratchet) levelLocked() Level {
	if r.pool <= 0 {
		return LevelFull
	}

	drawdownPct := (r.highWaterMark - r.intradayPnL) / r.pool * 100
	switch {
	case drawdownPct >= haltedDrawdownPct:
		return LevelHalted
	case drawdownPct >= defensiveDrawdownPct:
		return LevelDefensive
	case drawdownPct >= reducedDrawdownPct:
		return LevelReduced
	default:
		return LevelFull
	}
}

// AllowedModes returns the sub-modes the current level permits.
func (r *Ratchet) AllowedModes() []edge.Mode {
	switch r.Level() {
	case LevelFull:
		return []edge.Mode{edge.ModeScalp, edge.ModeSwing, edge.ModePosition}
	case LevelReduced:
		return []edge.Mode{edge.ModeSwing, edge.ModePosition}
	case LevelDefensive:
		return []edge.Mode{edge.ConservativeMode}
	default:
		return nil
	}
}

// SizeMultiplier scales the secondary strategy's position size by level.
func (r *Ratchet) SizeMultiplier() float64 {
	switch r.Level() {
	case LevelFull:
		return 1.0
	case LevelReduced:
		return 0.75
	case LevelDefensive:
		return 0.5
	default:
		return 0
	}
}

// Stats reports ratchet state for the status API.
func (r *Ratchet) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]interface{}{
		"level":           r.levelLocked().String(),
		"intraday_pnl":    r.intradayPnL,
		"high_water_mark": r.highWaterMark,
		"pool":            r.pool,
	}
}
