// Package feed hosts connectors that stream market ticks from external sources
// into the tick buffer.
package feed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livequant/internal/market"
	"livequant/internal/metrics"
)

const (
	// ProviderStub emits deterministic synthetic ticks (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live trades from Binance public websockets.
	ProviderBinance = "binance"
	// ProviderPoll polls an HTTP ticker endpoint at a fixed cadence.
	ProviderPoll = "poll"
)

// Sink receives normalized ticks from a connector. Push must not block; the
// tick buffer's drop-oldest policy satisfies this.
type Sink interface {
	Push(market.Tick)
}

// Connector represents a pluggable market data stream implementation. It
// normalizes source messages into market.Tick values and pushes them into the
// sink, reconnecting with capped backoff on failure. Cancel the Run context to
// stop; shutdown latency is bounded by the read timeout.
type Connector struct {
	provider    string
	log         zerolog.Logger
	readTimeout time.Duration

	pollInterval time.Duration
	pollBaseURL  string
	wsBaseURL    string

	mu      sync.RWMutex
	symbols []string
}

// Option configures Connector construction parameters.
type Option func(*Connector)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultPollInterval = 2 * time.Second
	defaultWSBaseURL    = "wss://stream.binance.com:9443"
)

// WithReadTimeout overrides the websocket read deadline, which also bounds
// shutdown latency.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithPollInterval overrides the default polling cadence for the HTTP feed.
func WithPollInterval(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithPollBaseURL points the HTTP polling feed at a ticker endpoint.
func WithPollBaseURL(baseURL string) Option {
	return func(c *Connector) {
		if baseURL != "" {
			c.pollBaseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithWSBaseURL overrides the websocket endpoint (used by tests).
func WithWSBaseURL(baseURL string) Option {
	return func(c *Connector) {
		if baseURL != "" {
			c.wsBaseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// NewConnector constructs a connector backed by the requested provider.
func NewConnector(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Connector {
	if provider == "" {
		provider = ProviderStub
	}
	c := &Connector{
		provider:     strings.ToLower(provider),
		log:          log,
		readTimeout:  defaultReadTimeout,
		pollInterval: defaultPollInterval,
		wsBaseURL:    defaultWSBaseURL,
	}
	c.setSymbols(symbols)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the normalized provider name.
func (c *Connector) Provider() string { return c.provider }

// SetSymbols replaces the tracked symbol list (deduplicated, sorted for determinism).
func (c *Connector) SetSymbols(symbols []string) {
	c.setSymbols(symbols)
}

func (c *Connector) setSymbols(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	c.symbols = c.symbols[:0]
	for sym := range unique {
		c.symbols = append(c.symbols, sym)
	}
	sort.Strings(c.symbols)
}

func (c *Connector) snapshotSymbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// Run streams ticks into the sink until the context is canceled. Unknown
// providers are an error rather than a silent stub fallback, so a config typo
// cannot feed synthetic data into a live store.
func (c *Connector) Run(ctx context.Context, sink Sink) error {
	switch c.provider {
	case ProviderBinance:
		return c.runBinance(ctx, sink)
	case ProviderPoll:
		return c.runPoll(ctx, sink)
	case ProviderStub:
		return c.runStub(ctx, sink)
	default:
		return fmt.Errorf("unknown feed provider %q", c.provider)
	}
}

func (c *Connector) runStub(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	px := 100.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			px += 0.1
			for _, sym := range c.snapshotSymbols() {
				sink.Push(market.Tick{Symbol: sym, Ts: ts.UTC(), Price: px, Qty: 1})
				metrics.TicksTotal.WithLabelValues(sym).Inc()
			}
		}
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * 1.8)
	if next > max {
		return max
	}
	return next
}
