package engine

import (
	"sync"
	"time"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/position"
)

// Snapshot is a point-in-time read of engine state. Everyone may read;
// nobody mutates through it.
type Snapshot struct {
	Enabled          bool      `json:"enabled"`
	FeedConnected    bool      `json:"feed_connected"`
	PortfolioValue   float64   `json:"portfolio_value"`
	AvailableBalance float64   `json:"available_balance"`
	StartingBalance  float64   `json:"starting_balance"`
	SessionPnL       float64   `json:"session_pnl"`
	SessionFees      float64   `json:"session_fees"`
	DailyTrades      int       `json:"daily_trades"`
	DailyPnL         float64   `json:"daily_pnl"`
	DailyLoss        float64   `json:"daily_loss"`
	DailyWins        int       `json:"daily_wins"`
	DominantMode     string    `json:"dominant_mode,omitempty"`
	ActivePair       string    `json:"active_pair,omitempty"`
	LastTick         time.Time `json:"last_tick"`
}

// Reader is the read-only view handed to the API and anything else
// that must not mutate engine state.
type Reader interface {
	Snapshot() Snapshot
}

// Mutator is the command interface for state changes. Only the scanner
// and the position monitor receive it; everything else gets a Reader.
type Mutator interface {
	Reader
	SetEnabled(enabled bool)
	SetFeedConnected(connected bool)
	SetActivePair(pair string)
	MarkTick(at time.Time)
	ReserveBalance(notional float64) bool
	ReleaseBalance(notional float64)
	ApplyTradeResult(result *position.TradeResult, notional float64)
	ResetDay()
}

// State is the single shared container behind both interfaces.
type State struct {
	mu sync.RWMutex

	enabled          bool
	feedConnected    bool
	portfolioValue   float64
	availableBalance float64
	startingBalance  float64
	sessionPnL       float64
	sessionFees      float64
	dailyTrades      int
	dailyPnL         float64
	dailyLoss        float64
	dailyWins        int
	dailyModes       map[string]int
	activePair       string
	lastTick         time.Time
}

// NewState starts a session with the full balance available.
func NewState(startingBalance float64) *State {
	return &State{
		portfolioValue:   startingBalance,
		availableBalance: startingBalance,
		startingBalance:  startingBalance,
		dailyModes:       make(map[string]int),
	}
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Enabled:          s.enabled,
		FeedConnected:    s.feedConnected,
		PortfolioValue:   s.portfolioValue,
		AvailableBalance: s.availableBalance,
		StartingBalance:  s.startingBalance,
		SessionPnL:       s.sessionPnL,
		SessionFees:      s.sessionFees,
		DailyTrades:      s.dailyTrades,
		DailyPnL:         s.dailyPnL,
		DailyLoss:        s.dailyLoss,
		DailyWins:        s.dailyWins,
		DominantMode:     s.dominantModeLocked(),
		ActivePair:       s.activePair,
		LastTick:         s.lastTick,
	}
}

func (s *State) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

func (s *State) SetFeedConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedConnected = connected
}

func (s *State) SetActivePair(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePair = pair
}

func (s *State) MarkTick(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = at
}

// ReserveBalance earmarks capital for a new position. Returns false
// when not enough is free, leaving the balance untouched.
func (s *State) ReserveBalance(notional float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if notional <= 0 || notional > s.availableBalance {
		return false
	}
	s.availableBalance -= notional
	return true
}

// ReleaseBalance returns an earmark after a failed order submission.
func (s *State) ReleaseBalance(notional float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if notional > 0 {
		s.availableBalance += notional
	}
}

// ApplyTradeResult settles a fully closed position: the reserved
// notional returns to the available balance along with the net PnL.
func (s *State) ApplyTradeResult(result *position.TradeResult, notional float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	net := result.PnL - result.Fees
	s.availableBalance += notional + net
	s.portfolioValue += net
	s.sessionPnL += result.PnL
	s.sessionFees += result.Fees
	s.dailyTrades++
	s.dailyPnL += result.PnL
	if result.PnL > 0 {
		s.dailyWins++
	}
	if result.PnL < 0 {
		s.dailyLoss += -result.PnL
	}
	if result.Mode != "" {
		s.dailyModes[result.Mode]++
	}
}

// ResetDay clears the daily counters at the session-day rollover.
// Session totals keep accumulating.
func (s *State) ResetDay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyTrades = 0
	s.dailyPnL = 0
	s.dailyLoss = 0
	s.dailyWins = 0
	s.dailyModes = make(map[string]int)
}

// dominantModeLocked returns the mode with the most closes today.
// Ties break alphabetically so the snapshot is stable.
func (s *State) dominantModeLocked() string {
	best, bestCount := "", 0
	for mode, count := range s.dailyModes {
		if count > bestCount || (count == bestCount && best != "" && mode < best) {
			best, bestCount = mode, count
		}
	}
	return best
}
