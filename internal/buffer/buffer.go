// Package buffer provides the bounded in-memory tick queue between the feed
// and the tick store.
package buffer

import (
	"sort"
	"sync"

	"livequant/internal/market"
	"livequant/internal/metrics"
)

// TickBuffer is a per-symbol bounded queue. Producers call Push from the feed
// goroutine while a single consumer calls Drain; both are safe concurrently.
//
// Overflow policy: drop-oldest. When a symbol's queue is at capacity the
// oldest buffered tick is evicted to make room, and the per-symbol drop
// counter is incremented. Push never blocks.
type TickBuffer struct {
	mu       sync.Mutex
	capacity int
	queues   map[string][]market.Tick
	dropped  map[string]uint64
}

const defaultCapacity = 10000

// New constructs a buffer bounded at capacity ticks per symbol.
func New(capacity int) *TickBuffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &TickBuffer{
		capacity: capacity,
		queues:   make(map[string][]market.Tick),
		dropped:  make(map[string]uint64),
	}
}

// Push appends a tick to its symbol queue, evicting the oldest entry when the
// queue is full.
func (b *TickBuffer) Push(tick market.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.queues[tick.Symbol]
	if len(queue) >= b.capacity {
		copy(queue, queue[1:])
		queue = queue[:len(queue)-1]
		b.dropped[tick.Symbol]++
		metrics.TicksDroppedTotal.WithLabelValues(tick.Symbol).Inc()
	}
	b.queues[tick.Symbol] = append(queue, tick)
}

// Drain atomically removes and returns every buffered tick. Arrival order is
// preserved within a symbol; symbols are emitted in sorted order so output is
// deterministic. An empty buffer yields an empty slice without blocking.
func (b *TickBuffer) Drain() []market.Tick {
	b.mu.Lock()
	defer b.mu.Unlock()

	symbols := make([]string, 0, len(b.queues))
	total := 0
	for sym, queue := range b.queues {
		if len(queue) == 0 {
			continue
		}
		symbols = append(symbols, sym)
		total += len(queue)
	}
	sort.Strings(symbols)

	out := make([]market.Tick, 0, total)
	for _, sym := range symbols {
		out = append(out, b.queues[sym]...)
		delete(b.queues, sym)
	}
	return out
}

// Len reports the number of ticks currently buffered for a symbol.
func (b *TickBuffer) Len(symbol string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[symbol])
}

// Dropped reports how many ticks have been evicted for a symbol since startup.
func (b *TickBuffer) Dropped(symbol string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped[symbol]
}

// Capacity returns the configured per-symbol bound.
func (b *TickBuffer) Capacity() int { return b.capacity }
