package edge

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/events"
	"github.com/neelaypandya-ui/cerebro-crypto-sub001/internal/market"
)

// tieBreakMargin is the score distance within which the conservative
// mode wins over a higher raw score.
const tieBreakMargin = 8.0

// Indicator series the detector reads from snapshots.
const (
	indADX     = market.IndADX
	indATRPct  = market.IndATRPct
	indBBWidth = market.IndBBWidth
	indEMAFast = market.IndEMAFast
	indEMASlow = market.IndEMASlow
	indVolAvg  = market.IndVolSMA
)

// Scores holds one scoring pass over a pair
type Scores struct {
	Pair      string             `json:"pair"`
	ByMode    map[Mode]float64   `json:"by_mode"`
	RawWinner Mode               `json:"raw_winner"`
	Winner    Mode               `json:"winner"` // after tie-break and ratchet filter
	ScoredAt  time.Time          `json:"scored_at"`
}

// Detector periodically scores the secondary strategy's sub-modes per
// pair and selects the active one.
type Detector struct {
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.RWMutex
	lastRun  map[string]time.Time
	selected map[string]Mode
}

// NewDetector creates a detector running each pair at most once per interval.
func NewDetector(interval time.Duration, logger zerolog.Logger) *Detector {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Detector{
		interval: interval,
		logger:   logger.With().Str("component", "edge").Logger(),
		lastRun:  make(map[string]time.Time),
		selected: make(map[string]Mode),
	}
}

// Due reports whether the pair is due for a scoring pass.
func (d *Detector) Due(pair string, now time.Time) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	last, ok := d.lastRun[pair]
	return !ok || now.Sub(last) >= d.interval
}

// SelectedMode returns the last selected mode for a pair.
func (d *Detector) SelectedMode(pair string) Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selected[pair]
}

// Evict drops per-pair state when a pair leaves the watch-list.
func (d *Detector) Evict(pair string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastRun, pair)
	delete(d.selected, pair)
}

// Run scores all modes for a pair and stores the winner filtered by
// the ratchet's allowed set. entry is the fast timeframe snapshot,
// trend the higher timeframe one.
func (d *Detector) Run(entry, trend *market.Snapshot, allowed []Mode, now time.Time) Scores {
	scores := Scores{
		Pair:     entry.Pair,
		ByMode:   d.scoreModes(entry, trend, now),
		ScoredAt: now,
	}

	scores.RawWinner, scores.Winner = selectWinner(scores.ByMode, allowed)

	d.mu.Lock()
	d.lastRun[entry.Pair] = now
	prev := d.selected[entry.Pair]
	d.selected[entry.Pair] = scores.Winner
	d.mu.Unlock()

	if prev != scores.Winner {
		d.logger.Info().
			Str("pair", entry.Pair).
			Str("mode", string(scores.Winner)).
			Str("raw_winner", string(scores.RawWinner)).
			Float64("scalp", scores.ByMode[ModeScalp]).
			Float64("swing", scores.ByMode[ModeSwing]).
			Float64("position", scores.ByMode[ModePosition]).
			Msg("mode changed")
		events.BroadcastModeUpdate(map[string]interface{}{
			"pair": entry.Pair,
			"mode": string(scores.Winner),
		})
	}

	return scores
}

// selectWinner picks the top-scoring mode, applies the conservative
// tie-break, then falls back through the ratchet's allowed set.
func selectWinner(byMode map[Mode]float64, allowed []Mode) (raw Mode, winner Mode) {
	type scored struct {
		mode  Mode
		score float64
	}
	ranked := make([]scored, 0, len(byMode))
	for _, m := range AllModes() {
		ranked = append(ranked, scored{m, byMode[m]})
	}
	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].score > ranked[i].score {
				ranked[i], ranked[j] = ranked[j], ranked[i]
			}
		}
	}

	raw = ranked[0].mode
	winner = raw

	// Close call between the top two goes to the conservative mode.
	if len(ranked) > 1 && ranked[0].score-ranked[1].score <= tieBreakMargin {
		if ranked[0].mode == ConservativeMode || ranked[1].mode == ConservativeMode {
			winner = ConservativeMode
		}
	}

	if isAllowed(winner, allowed) {
		return raw, winner
	}
	for _, r := range ranked {
		if isAllowed(r.mode, allowed) {
			return raw, r.mode
		}
	}
	return raw, ModeNone
}

func isAllowed(mode Mode, allowed []Mode) bool {
	for _, m := range allowed {
		if m == mode {
			return true
		}
	}
	return false
}

// scoreModes runs the per-mode heuristics, each clamped to 0-100.
func (d *Detector) scoreModes(entry, trend *market.Snapshot, now time.Time) map[Mode]float64 {
	adx, _ := entry.Indicator(indADX)
	atrPct, _ := entry.Indicator(indATRPct)
	volRatio := volumeRatio(entry)
	squeeze := bandSqueeze(entry)
	alignEntry := emaAligned(entry)
	alignTrend := emaAligned(trend)
	trendADX, _ := trend.Indicator(indADX)

	scores := map[Mode]float64{
		ModeScalp:    scoreScalp(adx, atrPct, volRatio, squeeze, now),
		ModeSwing:    scoreSwing(adx, atrPct, volRatio, squeeze, alignEntry),
		ModePosition: scorePosition(trendADX, atrPct, alignEntry, alignTrend),
	}
	return scores
}

// scoreScalp favors liquid, choppy conditions: elevated volatility and
// volume without a directional trend.
func scoreScalp(adx, atrPct, volRatio, squeeze float64, now time.Time) float64 {
	score := 0.0

	// Ranging market: weak trend reads best for mean reversion.
	switch {
	case adx < 20:
		score += 30
	case adx < 25:
		score += 15
	}

	// Volatility band: enough movement to scalp, not a blowout.
	switch {
	case atrPct >= 0.3 && atrPct <= 1.2:
		score += 25
	case atrPct > 1.2 && atrPct <= 2.0:
		score += 10
	}

	// Volume versus average.
	switch {
	case volRatio >= 1.5:
		score += 20
	case volRatio >= 1.0:
		score += 10
	}

	// Band expansion after a squeeze signals fresh movement.
	if squeeze > 1.2 {
		score += 10
	}

	// Overlap of the US and EU sessions carries the depth scalping needs.
	hour := now.UTC().Hour()
	if hour >= 12 && hour <= 20 {
		score += 15
	}

	return clampScore(score)
}

// scoreSwing favors an establishing trend with expanding participation.
func scoreSwing(adx, atrPct, volRatio, squeeze, alignEntry float64) float64 {
	score := 0.0

	switch {
	case adx >= 20 && adx <= 40:
		score += 30
	case adx > 40:
		score += 15
	}

	if atrPct >= 0.5 && atrPct <= 2.5 {
		score += 15
	}

	switch {
	case volRatio >= 1.3:
		score += 20
	case volRatio >= 1.0:
		score += 10
	}

	if squeeze > 1.1 {
		score += 15
	}

	score += alignEntry * 20

	return clampScore(score)
}

// scorePosition favors a mature trend confirmed on both timeframes
// with contained volatility.
func scorePosition(trendADX, atrPct, alignEntry, alignTrend float64) float64 {
	score := 0.0

	switch {
	case trendADX >= 25 && trendADX <= 50:
		score += 35
	case trendADX > 50:
		score += 20
	case trendADX >= 20:
		score += 10
	}

	score += alignTrend * 30
	score += alignEntry * 15

	if atrPct > 0 && atrPct <= 1.5 {
		score += 20
	}

	return clampScore(score)
}

// volumeRatio compares the latest bar's volume to the moving average.
func volumeRatio(s *market.Snapshot) float64 {
	last := s.LastCandle()
	if last == nil {
		return 0
	}
	avg, ok := s.Indicator(indVolAvg)
	if !ok || avg <= 0 {
		return 0
	}
	return last.Volume / avg
}

// bandSqueeze compares current band width to the width 10 bars back;
// above 1 means expansion, below 1 contraction.
func bandSqueeze(s *market.Snapshot) float64 {
	now, ok := s.Indicator(indBBWidth)
	if !ok || now <= 0 {
		return 0
	}
	past, ok := s.IndicatorAt(indBBWidth, 10)
	if !ok || past <= 0 {
		return 0
	}
	return now / past
}

// emaAligned returns 1 when fast EMA sits above slow EMA and price sits
// above the fast EMA, 0.5 for partial alignment, 0 otherwise.
func emaAligned(s *market.Snapshot) float64 {
	fast, okF := s.Indicator(indEMAFast)
	slow, okS := s.Indicator(indEMASlow)
	last := s.LastCandle()
	if !okF || !okS || last == nil {
		return 0
	}

	switch {
	case fast > slow && last.Close > fast:
		return 1
	case fast > slow:
		return 0.5
	default:
		return 0
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
