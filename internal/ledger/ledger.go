package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// maxEntries caps persisted daily history
	maxEntries = 30
	// statusWindow is how many recent days the threat evaluation inspects
	statusWindow = 10
	// defaultBenchmarkPct is the daily return counted as benchmark-met
	defaultBenchmarkPct = 0.15
)

// ThreatLevel classifies the secondary strategy's recent performance
type ThreatLevel string

const (
	ThreatDominant ThreatLevel = "DOMINANT" // outperforming, allocation boosted
	ThreatActive   ThreatLevel = "ACTIVE"   // normal operation
	ThreatWarning  ThreatLevel = "WARNING"  // underperforming, allocation cut
	ThreatCritical ThreatLevel = "CRITICAL" // bleeding, allocation minimal
)

// SizeMultiplier maps a threat level to the secondary strategy's
// position sizing multiplier.
func (t ThreatLevel) SizeMultiplier() float64 {
	switch t {
	case ThreatDominant:
		return 1.25
	case ThreatWarning:
		return 0.6
	case ThreatCritical:
		return 0.25
	default:
		return 1.0
	}
}

// Entry is one trading day's outcome, newest first in the ledger
type Entry struct {
	Date         string  `json:"date"` // YYYY-MM-DD
	PnL          float64 `json:"pnl"`
	PnLPct       float64 `json:"pnl_pct"`
	Trades       int     `json:"trades"`
	WinRate      float64 `json:"win_rate"`
	DominantMode string  `json:"dominant_mode"`
	MetBenchmark bool    `json:"met_benchmark"`
}

// DayResult is the raw input recorded at day close
type DayResult struct {
	Date         time.Time
	PnL          float64
	PnLPct       float64
	Trades       int
	WinRate      float64
	DominantMode string
}

// Ledger is the rolling daily-outcome log, persisted across sessions.
type Ledger struct {
	path         string
	benchmarkPct float64
	entries      []Entry
	mu           sync.RWMutex
}

// New creates a ledger persisting to path, loading existing history.
func New(path string, benchmarkPct float64) (*Ledger, error) {
	if benchmarkPct <= 0 {
		benchmarkPct = defaultBenchmarkPct
	}
	l := &Ledger{path: path, benchmarkPct: benchmarkPct}

	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// RecordDay prepends a day's outcome and saves synchronously.
func (l *Ledger) RecordDay(result DayResult) error {
	entry := Entry{
		Date:         result.Date.Format("2006-01-02"),
		PnL:          result.PnL,
		PnLPct:       result.PnLPct,
		Trades:       result.Trades,
		WinRate:      result.WinRate,
		DominantMode: result.DominantMode,
		MetBenchmark: result.PnLPct >= l.benchmarkPct,
	}

	l.mu.Lock()
	l.entries = append([]Entry{entry}, l.entries...)
	if len(l.entries) > maxEntries {
		l.entries = l.entries[:maxEntries]
	}
	l.mu.Unlock()

	return l.save()
}

// EvaluateStatus derives the threat level from the most recent window.
// CRITICAL is checked before DOMINANT so a volatile run with heavy
// loss days is never rewarded.
func (l *Ledger) EvaluateStatus() ThreatLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()

	window := l.entries
	if len(window) > statusWindow {
		window = window[:statusWindow]
	}

	lossDays := 0
	benchmarkDays := 0
	for _, e := range window {
		if e.PnL < 0 {
			lossDays++
		}
		if e.MetBenchmark {
			benchmarkDays++
		}
	}

	switch {
	case lossDays >= 4:
		return ThreatCritical
	case benchmarkDays >= 7:
		return ThreatDominant
	case lossDays >= 2 && benchmarkDays < 3:
		return ThreatWarning
	default:
		return ThreatActive
	}
}

// Entries returns a copy of the history, newest first.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) load() error {
	if l.path == "" {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read ledger %s: %w", l.path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.Unmarshal(data, &l.entries); err != nil {
		return fmt.Errorf("failed to parse ledger %s: %w", l.path, err)
	}
	if len(l.entries) > maxEntries {
		l.entries = l.entries[:maxEntries]
	}
	return nil
}

func (l *Ledger) save() error {
	if l.path == "" {
		return nil
	}

	l.mu.RLock()
	data, err := json.MarshalIndent(l.entries, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return os.Rename(tmp, l.path)
}
