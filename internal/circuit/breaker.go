package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/events"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/metrics"
)

// historyCap bounds the per-session trade result log
const historyCap = 20

// TradeRecord is one closed-trade outcome kept in breaker history
type TradeRecord struct {
	PnL      float64   `json:"pnl"`
	Fees     float64   `json:"fees"`
	ClosedAt time.Time `json:"closed_at"`
}

// Config holds circuit breaker thresholds
type Config struct {
	Enabled           bool    `json:"enabled"`
	PauseLossStreak   int     `json:"pause_loss_streak"`      // consecutive losses before short pause
	LongPauseStreak   int     `json:"long_pause_loss_streak"` // consecutive losses before long pause
	PauseMinutes      int     `json:"pause_minutes"`
	LongPauseMinutes  int     `json:"long_pause_minutes"`
	SessionMaxLossPct float64 `json:"session_max_loss_pct"` // of starting balance, disables session
}

// DefaultConfig returns the thresholds the engine ships with
func DefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		PauseLossStreak:   3,
		LongPauseStreak:   5,
		PauseMinutes:      15,
		LongPauseMinutes:  60,
		SessionMaxLossPct: 1.0,
	}
}

// Breaker gates all trading for one engine session. State resets when
// the engine restarts; a disabled breaker stays disabled until then.
type Breaker struct {
	config            *Config
	consecutiveLosses int
	sessionPnL        float64
	sessionFees       float64
	totalTrades       int
	wins              int
	losses            int
	pausedUntil       time.Time
	disabled          bool
	disabledReason    string
	startingBalance   float64
	history           []TradeRecord
	mu                sync.RWMutex
}

// NewBreaker creates a session breaker anchored to the starting balance.
func NewBreaker(config *Config, startingBalance float64) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Breaker{
		config:          config,
		startingBalance: startingBalance,
		history:         make([]TradeRecord, 0, historyCap),
	}
}

// RecordTrade feeds one closed-trade outcome into the breaker and
// applies the transition rules.
func (b *Breaker) RecordTrade(pnl, fees float64) {
	if !b.config.Enabled {
		return
	}
	if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
		return
	}

	b.mu.Lock()

	b.totalTrades++
	b.sessionPnL += pnl
	b.sessionFees += fees

	if pnl < 0 {
		b.losses++
		b.consecutiveLosses++
	} else {
		b.wins++
		b.consecutiveLosses = 0
	}

	b.history = append([]TradeRecord{{PnL: pnl, Fees: fees, ClosedAt: time.Now()}}, b.history...)
	if len(b.history) > historyCap {
		b.history = b.history[:historyCap]
	}

	var action, reason string

	// Longer streak checked first so its pause overwrites the shorter one.
	switch {
	case b.consecutiveLosses >= b.config.LongPauseStreak:
		b.pausedUntil = time.Now().Add(time.Duration(b.config.LongPauseMinutes) * time.Minute)
		action = "paused"
		reason = fmt.Sprintf("%d consecutive losses, pausing %dm", b.consecutiveLosses, b.config.LongPauseMinutes)
	case b.consecutiveLosses >= b.config.PauseLossStreak:
		b.pausedUntil = time.Now().Add(time.Duration(b.config.PauseMinutes) * time.Minute)
		action = "paused"
		reason = fmt.Sprintf("%d consecutive losses, pausing %dm", b.consecutiveLosses, b.config.PauseMinutes)
	}

	// Session drawdown disables irreversibly regardless of streaks.
	if !b.disabled && b.startingBalance > 0 &&
		b.sessionPnL <= -(b.config.SessionMaxLossPct/100)*b.startingBalance {
		b.disabled = true
		b.disabledReason = fmt.Sprintf("session loss %.2f breached %.2f%% of starting balance %.2f",
			b.sessionPnL, b.config.SessionMaxLossPct, b.startingBalance)
		action = "disabled"
		reason = b.disabledReason
	}

	stats := b.statsLocked()
	b.mu.Unlock()

	if action != "" {
		stats["action"] = action
		stats["reason"] = reason
		metrics.BreakerTrips.Inc()
		events.BroadcastCircuitBreaker(stats)
	}
}

// CanTrade reports whether the breaker currently allows new entries.
// An elapsed pause is cleared on the way through.
func (b *Breaker) CanTrade() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disabled {
		return false, fmt.Sprintf("breaker disabled for session: %s", b.disabledReason)
	}

	if !b.pausedUntil.IsZero() {
		if time.Now().Before(b.pausedUntil) {
			remaining := time.Until(b.pausedUntil).Round(time.Second)
			return false, fmt.Sprintf("breaker paused, %v remaining", remaining)
		}
		b.pausedUntil = time.Time{}
	}

	return true, ""
}

// Reset restores the breaker for a new session. Operator action only.
func (b *Breaker) Reset(startingBalance float64) {
	b.mu.Lock()
	b.consecutiveLosses = 0
	b.sessionPnL = 0
	b.sessionFees = 0
	b.totalTrades = 0
	b.wins = 0
	b.losses = 0
	b.pausedUntil = time.Time{}
	b.disabled = false
	b.disabledReason = ""
	b.startingBalance = startingBalance
	b.history = b.history[:0]
	stats := b.statsLocked()
	b.mu.Unlock()

	stats["action"] = "reset"
	events.BroadcastCircuitBreaker(stats)
}

// SessionPnL returns cumulative session profit and loss.
func (b *Breaker) SessionPnL() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessionPnL
}

// History returns a copy of the recent trade results, newest first.
func (b *Breaker) History() []TradeRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]TradeRecord, len(b.history))
	copy(out, b.history)
	return out
}

// GetStats returns current breaker statistics
func (b *Breaker) GetStats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.statsLocked()
}

func (b *Breaker) statsLocked() map[string]interface{} {
	return map[string]interface{}{
		"consecutive_losses": b.consecutiveLosses,
		"session_pnl":        b.sessionPnL,
		"session_fees":       b.sessionFees,
		"total_trades":       b.totalTrades,
		"wins":               b.wins,
		"losses":             b.losses,
		"paused_until":       b.pausedUntil,
		"disabled":           b.disabled,
		"starting_balance":   b.startingBalance,
	}
}
