// Package analytics computes pairs-trading statistics over aligned bar series.
// All functions are pure; failures are surfaced as typed errors rather than
// silently propagated NaN.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"livequant/internal/market"
)

// ErrInsufficientData reports that a statistic was requested on a series
// shorter than its minimum length.
var ErrInsufficientData = errors.New("insufficient data")

// HedgeRatio computes the ordinary-least-squares slope of y regressed on x
// with an intercept. Requires equal-length series of at least 2 points with
// non-constant x.
func HedgeRatio(y, x []float64) (float64, error) {
	if len(y) != len(x) {
		return 0, fmt.Errorf("series length mismatch: %d vs %d", len(y), len(x))
	}
	if len(y) < 2 {
		return 0, fmt.Errorf("hedge ratio needs at least 2 points, got %d: %w", len(y), ErrInsufficientData)
	}

	design := make([][]float64, len(x))
	for i, v := range x {
		design[i] = []float64{1, v}
	}
	coeffs, _, err := olsFit(design, y)
	if err != nil {
		return 0, err
	}
	return coeffs[1], nil
}

// Spread returns y[i] - ratio*x[i] elementwise.
func Spread(y, x []float64, ratio float64) []float64 {
	n := len(y)
	if len(x) < n {
		n = len(x)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = y[i] - ratio*x[i]
	}
	return out
}

// ZScore standardizes each value against its rolling mean and sample standard
// deviation. The first window-1 entries are NaN because the window is not yet
// full; a zero-deviation window also yields NaN.
func ZScore(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 2 || len(series) < window {
		return out
	}

	for i := window - 1; i < len(series); i++ {
		frame := series[i-window+1 : i+1]
		mean, err := stats.Mean(frame)
		if err != nil {
			continue
		}
		sd, err := stats.StdDevS(frame)
		if err != nil || sd == 0 {
			continue
		}
		out[i] = (series[i] - mean) / sd
	}
	return out
}

// RollingCorrelation computes the Pearson correlation of y and x over a
// trailing window. Warmup entries are NaN.
func RollingCorrelation(y, x []float64, window int) []float64 {
	n := len(y)
	if len(x) < n {
		n = len(x)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if window < 2 || n < window {
		return out
	}

	for i := window - 1; i < n; i++ {
		corr, err := stats.Correlation(y[i-window+1:i+1], x[i-window+1:i+1])
		if err != nil {
			continue
		}
		out[i] = corr
	}
	return out
}

// Signals derives a mean-reversion position series from a z-score series:
// +1 long, -1 short, 0 flat. Positions open when |z| crosses entry and close
// when |z| falls under exit. NaN warmup values leave the position unchanged.
func Signals(zscore []float64, entry, exit float64) []int {
	out := make([]int, len(zscore))
	position := 0
	for i, z := range zscore {
		switch {
		case position == 0 && z > entry:
			position = -1
		case position == 0 && z < -entry:
			position = 1
		case position != 0 && math.Abs(z) < exit:
			position = 0
		}
		out[i] = position
	}
	return out
}

// Pair aligns two bar series on common bucket timestamps and computes the full
// pairs snapshot: hedge ratio, spread, rolling z-score, and the stationarity
// test. The ADF fields are NaN when the aligned series is too short for the
// test; callers present that as an explicit unavailable state.
func Pair(barsY, barsX []market.Bar, window int) (market.PairSnapshot, error) {
	times, y, x := alignBars(barsY, barsX)
	if len(times) < 2 {
		return market.PairSnapshot{}, fmt.Errorf("pair has %d aligned bars: %w", len(times), ErrInsufficientData)
	}

	ratio, err := HedgeRatio(y, x)
	if err != nil {
		return market.PairSnapshot{}, err
	}
	spread := Spread(y, x, ratio)
	zscore := ZScore(spread, window)

	snap := market.PairSnapshot{
		HedgeRatio: ratio,
		Spread:     make([]market.Point, len(spread)),
		ZScore:     make([]market.Point, len(zscore)),
		ADFStat:    math.NaN(),
		ADFPValue:  math.NaN(),
	}
	if len(barsY) > 0 {
		snap.SymbolY = barsY[0].Symbol
	}
	if len(barsX) > 0 {
		snap.SymbolX = barsX[0].Symbol
	}
	for i := range spread {
		snap.Spread[i] = market.Point{Ts: times[i], Value: spread[i]}
		snap.ZScore[i] = market.Point{Ts: times[i], Value: zscore[i]}
	}

	if stat, pvalue, err := ADF(spread); err == nil {
		snap.ADFStat = stat
		snap.ADFPValue = pvalue
	} else if !errors.Is(err, ErrInsufficientData) {
		return market.PairSnapshot{}, err
	}
	return snap, nil
}

// alignBars intersects two bar series on bucket start time, returning the
// common timestamps with the close prices of each leg.
func alignBars(barsY, barsX []market.Bar) (times []time.Time, y, x []float64) {
	xByStart := make(map[int64]float64, len(barsX))
	for _, b := range barsX {
		xByStart[b.Start.UnixMilli()] = b.Close
	}
	for _, b := range barsY {
		if xClose, ok := xByStart[b.Start.UnixMilli()]; ok {
			times = append(times, b.Start)
			y = append(y, b.Close)
			x = append(x, xClose)
		}
	}
	return times, y, x
}
