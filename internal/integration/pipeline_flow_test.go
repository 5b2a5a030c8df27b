package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"livequant/internal/alert"
	"livequant/internal/buffer"
	"livequant/internal/feed"
	"livequant/internal/service"
	"livequant/internal/store"
)

// Runs the full path end to end: stub feed, buffer, store, resample, alerts.
func TestStubFeedFlowsToStore(t *testing.T) {
	ticks, err := store.Open(filepath.Join(t.TempDir(), "ticks.db"))
	if err != nil {
		t.Fatalf("store.Open returned error: %v", err)
	}
	defer ticks.Close()

	alerts := alert.NewEngine(10, nil)
	if err := alerts.Add("px", "BTCUSDT", alert.Condition{Kind: alert.KindPriceAbove, Threshold: 100}, "over 100"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	conn := feed.NewConnector(feed.ProviderStub, []string{"BTCUSDT"}, zerolog.Nop())
	buf := buffer.New(1000)
	pipeline := service.New(conn, buf, ticks, alerts, 50*time.Millisecond, 5, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pipeline.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		n, err := ticks.Count(context.Background(), "BTCUSDT")
		if err != nil {
			t.Fatalf("Count returned error: %v", err)
		}
		if n >= 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for ticks to reach the store, have %d", n)
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil && err != context.Canceled {
		t.Fatalf("Run returned unexpected error: %v", err)
	}

	now := time.Now().UTC()
	rows, err := ticks.Query(context.Background(), "BTCUSDT", now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(rows) < 5 {
		t.Fatalf("expected at least 5 stored ticks, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Price <= rows[i-1].Price {
			t.Fatalf("stub prices should be strictly increasing, got %v then %v", rows[i-1].Price, rows[i].Price)
		}
	}

	bars, err := pipeline.Bars(context.Background(), "BTCUSDT", now.Add(-time.Minute), now.Add(time.Minute), time.Second)
	if err != nil {
		t.Fatalf("Bars returned error: %v", err)
	}
	if len(bars) == 0 {
		t.Fatalf("expected at least one bar from stored ticks")
	}
	if bars[0].Open != rows[0].Price {
		t.Fatalf("first bar open %v does not match first tick price %v", bars[0].Open, rows[0].Price)
	}

	events := alerts.Events(0)
	if len(events) != 1 || events[0].Name != "px" {
		t.Fatalf("expected one fired price alert, got %+v", events)
	}
}
