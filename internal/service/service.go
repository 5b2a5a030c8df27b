// Package service wires the ingestion pipeline together and exposes the
// pull-based query surface. All handles travel through the Pipeline struct;
// there is no ambient global state.
package service

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livequant/internal/alert"
	"livequant/internal/analytics"
	"livequant/internal/buffer"
	"livequant/internal/feed"
	"livequant/internal/market"
	"livequant/internal/metrics"
	"livequant/internal/resample"
	"livequant/internal/store"
)

// Pipeline owns the feed → buffer → store flow and serves queries over the
// stored ticks. The feed goroutine and the drain loop run until the Run
// context is canceled; queries are safe concurrently with ingestion.
type Pipeline struct {
	log     zerolog.Logger
	conn    *feed.Connector
	buf     *buffer.TickBuffer
	ticks   *store.TickStore
	alerts  *alert.Engine
	refresh time.Duration
	window  int

	mu       sync.RWMutex
	uploaded map[string][]market.Bar
}

// New constructs a pipeline. The connector may be nil for query-only use
// (e.g. the export CLI).
func New(conn *feed.Connector, buf *buffer.TickBuffer, ticks *store.TickStore, alerts *alert.Engine, refresh time.Duration, window int, log zerolog.Logger) *Pipeline {
	if refresh <= 0 {
		refresh = 2 * time.Second
	}
	return &Pipeline{
		log:      log,
		conn:     conn,
		buf:      buf,
		ticks:    ticks,
		alerts:   alerts,
		refresh:  refresh,
		window:   window,
		uploaded: make(map[string][]market.Bar),
	}
}

// Run starts the feed and drains the buffer into the store on the refresh
// cadence. A final drain runs on shutdown so buffered ticks are not lost.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.conn != nil {
		go func() {
			if err := p.conn.Run(ctx, p.buf); err != nil && ctx.Err() == nil {
				p.log.Error().Err(err).Msg("feed stopped")
			}
		}()
	}

	ticker := time.NewTicker(p.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.Flush(flushCtx); err != nil {
				p.log.Error().Err(err).Msg("final drain failed")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.log.Error().Err(err).Msg("drain failed")
			}
		}
	}
}

// Flush drains the buffer once and appends the batch to the store. Per-symbol
// arrival order is preserved end to end. Drained data also feeds the alert
// engine with the latest price and batch volume per symbol.
func (p *Pipeline) Flush(ctx context.Context) error {
	batch := p.buf.Drain()
	metrics.DrainBatchesTotal.Inc()
	if len(batch) == 0 {
		return nil
	}
	if err := p.ticks.Append(ctx, batch); err != nil {
		return err
	}
	p.log.Debug().Int("ticks", len(batch)).Msg("drained batch")

	if p.alerts != nil {
		p.checkBatchAlerts(batch)
	}
	return nil
}

// checkBatchAlerts evaluates price and volume alerts against the drained
// batch. Z-score alerts are fed from the pair query path, where the rolling
// statistic is actually computed.
func (p *Pipeline) checkBatchAlerts(batch []market.Tick) {
	type agg struct {
		last   float64
		volume float64
		ts     time.Time
	}
	bySymbol := make(map[string]*agg)
	for _, tk := range batch {
		a := bySymbol[tk.Symbol]
		if a == nil {
			a = &agg{}
			bySymbol[tk.Symbol] = a
		}
		a.last = tk.Price
		a.volume += tk.Qty
		a.ts = tk.Ts
	}
	for sym, a := range bySymbol {
		fired := p.alerts.Check(sym, alert.Input{Price: a.last, Volume: a.volume, ZScore: math.NaN()}, a.ts)
		for _, event := range fired {
			p.log.Info().Str("alert", event.Name).Str("symbol", event.Symbol).Str("kind", string(event.Kind)).Msg("alert triggered")
		}
	}
}

// Ticks returns stored ticks for a symbol in the inclusive range.
func (p *Pipeline) Ticks(ctx context.Context, symbol string, start, end time.Time) ([]market.Tick, error) {
	return p.ticks.Query(ctx, symbol, start, end)
}

// Bars resamples stored ticks into OHLC bars and merges any uploaded
// pre-aggregated bars for the symbol, sorted by bucket start.
func (p *Pipeline) Bars(ctx context.Context, symbol string, start, end time.Time, granularity time.Duration) ([]market.Bar, error) {
	ticks, err := p.ticks.Query(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	bars := resample.Resample(ticks, granularity)

	p.mu.RLock()
	for _, b := range p.uploaded[symbol] {
		if !b.Start.Before(start) && !b.Start.After(end) {
			bars = append(bars, b)
		}
	}
	p.mu.RUnlock()

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Start.Before(bars[j].Start) })
	return bars, nil
}

// Pair computes the pairs snapshot for two symbols over the range. The latest
// finite z-score is also offered to the alert engine for the dependent symbol.
func (p *Pipeline) Pair(ctx context.Context, symbolY, symbolX string, start, end time.Time, granularity time.Duration, window int) (market.PairSnapshot, error) {
	if window <= 0 {
		window = p.window
	}
	barsY, err := p.Bars(ctx, symbolY, start, end, granularity)
	if err != nil {
		return market.PairSnapshot{}, err
	}
	barsX, err := p.Bars(ctx, symbolX, start, end, granularity)
	if err != nil {
		return market.PairSnapshot{}, err
	}

	snap, err := analytics.Pair(barsY, barsX, window)
	if err != nil {
		return market.PairSnapshot{}, err
	}
	snap.SymbolY = symbolY
	snap.SymbolX = symbolX

	if p.alerts != nil {
		if z, price, ts, ok := latestFinite(snap, barsY); ok {
			p.alerts.Check(symbolY, alert.Input{Price: price, ZScore: z, Volume: math.NaN()}, ts)
		}
	}
	return snap, nil
}

func latestFinite(snap market.PairSnapshot, barsY []market.Bar) (z, price float64, ts time.Time, ok bool) {
	for i := len(snap.ZScore) - 1; i >= 0; i-- {
		if !math.IsNaN(snap.ZScore[i].Value) {
			z = snap.ZScore[i].Value
			ts = snap.ZScore[i].Ts
			if len(barsY) > 0 {
				price = barsY[len(barsY)-1].Close
			}
			return z, price, ts, true
		}
	}
	return 0, 0, time.Time{}, false
}

// UploadBars registers pre-aggregated bars that bypass the resampler.
func (p *Pipeline) UploadBars(bars []market.Bar) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range bars {
		p.uploaded[b.Symbol] = append(p.uploaded[b.Symbol], b)
	}
	for sym := range p.uploaded {
		sort.SliceStable(p.uploaded[sym], func(i, j int) bool {
			return p.uploaded[sym][i].Start.Before(p.uploaded[sym][j].Start)
		})
	}
	return len(bars)
}

// Alerts exposes the alert engine to the API layer.
func (p *Pipeline) Alerts() *alert.Engine { return p.alerts }
