package market

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// IndicatorWorker computes indicator series on a background worker
// pool. Scanner ticks never block on it: Request returns whatever is
// cached and queues a recompute, and fresh results are merged into the
// cache as they land.
type IndicatorWorker struct {
	requests chan indicatorJob
	logger   zerolog.Logger

	mu    sync.RWMutex
	cache map[string]map[string][]float64 // key: pair:timeframe

	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type indicatorJob struct {
	key     string
	candles []Candle
}

func NewIndicatorWorker(workers int, logger zerolog.Logger) *IndicatorWorker {
	if workers <= 0 {
		workers = 2
	}
	return &IndicatorWorker{
		requests: make(chan indicatorJob, 64),
		logger:   logger.With().Str("component", "indicators").Logger(),
		cache:    make(map[string]map[string][]float64),
		workers:  workers,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the worker pool.
func (w *IndicatorWorker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
}

// Stop drains the pool.
func (w *IndicatorWorker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

// Request returns the cached indicator map for a pair/timeframe and
// queues a recompute over the given candles. A full queue drops the
// job; the next tick re-requests anyway.
func (w *IndicatorWorker) Request(pair, timeframe string, candles []Candle) map[string][]float64 {
	key := fmt.Sprintf("%s:%s", pair, timeframe)

	if len(candles) > 0 {
		cp := make([]Candle, len(candles))
		copy(cp, candles)
		select {
		case w.requests <- indicatorJob{key: key, candles: cp}:
		default:
		}
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cache[key]
}

func (w *IndicatorWorker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case job := <-w.requests:
			result := Compute(job.candles)
			w.mu.Lock()
			w.cache[job.key] = result
			w.mu.Unlock()
		}
	}
}

// Compute derives the canonical indicator series from candles. Every
// series is aligned to the candle array.
func Compute(candles []Candle) map[string][]float64 {
	n := len(candles)
	if n == 0 {
		return map[string][]float64{}
	}

	closes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
	}

	return map[string][]float64{
		IndEMAFast: emaSeries(closes, 9),
		IndEMASlow: emaSeries(closes, 21),
		IndRSI:     rsiSeries(closes, 14),
		IndATRPct:  atrPctSeries(candles, 14),
		IndADX:     adxSeries(candles, 14),
		IndBBWidth: bbWidthSeries(closes, 20, 2.0),
		IndVolSMA:  volumeSMASeries(candles, 20),
	}
}

func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// rsiSeries uses Wilder smoothing; values before the first full period
// carry the neutral 50.
func rsiSeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) <= period {
		for i := range out {
			out[i] = 50
		}
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := 0; i <= period; i++ {
		out[i] = 50
	}
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func trueRanges(candles []Candle) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low,
			math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return tr
}

// atrPctSeries expresses Wilder ATR as a percentage of the close.
func atrPctSeries(candles []Candle, period int) []float64 {
	out := make([]float64, len(candles))
	tr := trueRanges(candles)
	if len(candles) == 0 {
		return out
	}

	atr := tr[0]
	for i := range candles {
		if i > 0 {
			atr = (atr*float64(period-1) + tr[i]) / float64(period)
		}
		if candles[i].Close > 0 {
			out[i] = atr / candles[i].Close * 100
		}
	}
	return out
}

func adxSeries(candles []Candle, period int) []float64 {
	n := len(candles)
	out := make([]float64, n)
	if n < 2 {
		return out
	}

	var smTR, smPlusDM, smMinusDM, adx float64
	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		prevClose := candles[i-1].Close
		tr := math.Max(candles[i].High-candles[i].Low,
			math.Max(math.Abs(candles[i].High-prevClose), math.Abs(candles[i].Low-prevClose)))

		if i == 1 {
			smTR, smPlusDM, smMinusDM = tr, plusDM, minusDM
		} else {
			smTR = smTR - smTR/float64(period) + tr
			smPlusDM = smPlusDM - smPlusDM/float64(period) + plusDM
			smMinusDM = smMinusDM - smMinusDM/float64(period) + minusDM
		}

		if smTR == 0 {
			out[i] = adx
			continue
		}
		plusDI := smPlusDM / smTR * 100
		minusDI := smMinusDM / smTR * 100
		dx := 0.0
		if plusDI+minusDI > 0 {
			dx = math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
		}
		if i <= period {
			adx = dx
		} else {
			adx = (adx*float64(period-1) + dx) / float64(period)
		}
		out[i] = adx
	}
	return out
}

// bbWidthSeries is (upper−lower)/middle for Bollinger bands over an
// SMA with stdDev standard deviations.
func bbWidthSeries(closes []float64, period int, stdDev float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		window := closes[start : i+1]

		var sum float64
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(len(window))

		var variance float64
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}
		sigma := math.Sqrt(variance / float64(len(window)))

		if mean > 0 {
			out[i] = (2 * stdDev * sigma) / mean
		}
	}
	return out
}

func volumeSMASeries(candles []Candle, period int) []float64 {
	out := make([]float64, len(candles))
	var sum float64
	for i, c := range candles {
		sum += c.Volume
		if i >= period {
			sum -= candles[i-period].Volume
			out[i] = sum / float64(period)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}
