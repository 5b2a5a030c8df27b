// Package resample derives OHLC bars from raw tick sequences.
package resample

import (
	"sort"
	"time"

	"livequant/internal/market"
)

// Option adjusts resampling behavior.
type Option func(*options)

type options struct {
	forwardFill bool
}

// WithForwardFill emits flat bars (open=high=low=close=previous close, zero
// volume) for interior buckets that contain no ticks. Without it empty buckets
// are omitted.
func WithForwardFill() Option {
	return func(o *options) { o.forwardFill = true }
}

// Resample converts ticks for a single symbol into OHLC bars at the given
// bucket width. Buckets are aligned to the Unix epoch: start = ts - ts mod
// granularity. Open and close follow input order within a bucket after a
// stable sort by timestamp, so out-of-order input is handled and ties keep
// their relative order. The input slice is never mutated and the result is a
// pure function of its arguments.
func Resample(ticks []market.Tick, granularity time.Duration, opts ...Option) []market.Bar {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(ticks) == 0 || granularity <= 0 {
		return nil
	}

	sorted := make([]market.Tick, len(ticks))
	copy(sorted, ticks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Ts.Before(sorted[j].Ts)
	})

	granMs := granularity.Milliseconds()
	var bars []market.Bar
	var current *market.Bar

	flush := func() {
		if current != nil {
			bars = append(bars, *current)
			current = nil
		}
	}

	for _, tk := range sorted {
		ms := tk.Ts.UnixMilli()
		start := time.UnixMilli(ms - mod(ms, granMs)).UTC()

		if current != nil && (!current.Start.Equal(start) || current.Symbol != tk.Symbol) {
			prevClose := current.Close
			prevStart := current.Start
			prevSymbol := current.Symbol
			flush()
			if o.forwardFill && prevSymbol == tk.Symbol {
				for s := prevStart.Add(granularity); s.Before(start); s = s.Add(granularity) {
					bars = append(bars, market.Bar{
						Symbol: prevSymbol,
						Start:  s,
						Open:   prevClose,
						High:   prevClose,
						Low:    prevClose,
						Close:  prevClose,
					})
				}
			}
		}

		if current == nil {
			current = &market.Bar{
				Symbol: tk.Symbol,
				Start:  start,
				Open:   tk.Price,
				High:   tk.Price,
				Low:    tk.Price,
				Close:  tk.Price,
				Volume: tk.Qty,
			}
			continue
		}

		if tk.Price > current.High {
			current.High = tk.Price
		}
		if tk.Price < current.Low {
			current.Low = tk.Price
		}
		current.Close = tk.Price
		current.Volume += tk.Qty
	}
	flush()

	return bars
}

// mod is a floor modulus, keeping pre-epoch timestamps aligned.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
