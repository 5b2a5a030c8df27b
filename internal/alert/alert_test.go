package alert

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConditionDispatch(t *testing.T) {
	in := Input{Price: 100, Volume: 50, ZScore: -2.5}
	cases := []struct {
		cond Condition
		want bool
	}{
		{Condition{KindPriceAbove, 99}, true},
		{Condition{KindPriceAbove, 100}, false},
		{Condition{KindPriceBelow, 101}, true},
		{Condition{KindPriceBelow, 100}, false},
		{Condition{KindZScoreAbsAbove, 2}, true},
		{Condition{KindZScoreAbsAbove, 3}, false},
		{Condition{KindVolumeAbove, 49}, true},
		{Condition{KindVolumeAbove, 50}, false},
		{Condition{Kind("bogus"), 1}, false},
	}
	for _, tc := range cases {
		if got := tc.cond.Evaluate(in); got != tc.want {
			t.Fatalf("%s threshold %.1f: got %v want %v", tc.cond.Kind, tc.cond.Threshold, got, tc.want)
		}
	}
}

func TestNaNZScoreNeverTriggers(t *testing.T) {
	cond := Condition{KindZScoreAbsAbove, 0}
	if cond.Evaluate(Input{ZScore: math.NaN()}) {
		t.Fatalf("NaN zscore must not trigger")
	}
}

func TestEngineOneShotTriggerAndReset(t *testing.T) {
	engine := NewEngine(10, nil)
	if err := engine.Add("btc-high", "BTCUSDT", Condition{KindPriceAbove, 100}, "btc over 100"); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	now := time.UnixMilli(1700000000000).UTC()
	fired := engine.Check("BTCUSDT", Input{Price: 101}, now)
	if len(fired) != 1 || fired[0].Name != "btc-high" {
		t.Fatalf("expected one fired event, got %+v", fired)
	}

	// one-shot: second check must not refire
	if fired := engine.Check("BTCUSDT", Input{Price: 102}, now); len(fired) != 0 {
		t.Fatalf("expected no refire, got %+v", fired)
	}

	engine.Reset("btc-high")
	if fired := engine.Check("BTCUSDT", Input{Price: 103}, now); len(fired) != 1 {
		t.Fatalf("expected refire after reset, got %+v", fired)
	}

	events := engine.Events(0)
	if len(events) != 2 {
		t.Fatalf("expected 2 events in history, got %d", len(events))
	}
}

func TestEngineSymbolScoping(t *testing.T) {
	engine := NewEngine(10, nil)
	_ = engine.Add("eth-low", "ETHUSDT", Condition{KindPriceBelow, 1000}, "")

	if fired := engine.Check("BTCUSDT", Input{Price: 1}, time.Now()); len(fired) != 0 {
		t.Fatalf("alert fired for wrong symbol: %+v", fired)
	}
	if fired := engine.Check("ETHUSDT", Input{Price: 900}, time.Now()); len(fired) != 1 {
		t.Fatalf("expected alert for own symbol, got %+v", fired)
	}
}

func TestEngineRejectsUnknownKind(t *testing.T) {
	engine := NewEngine(10, nil)
	if err := engine.Add("bad", "BTCUSDT", Condition{Kind("nope"), 1}, ""); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestEngineHistoryBounded(t *testing.T) {
	engine := NewEngine(3, nil)
	now := time.Now()
	for i := 0; i < 5; i++ {
		name := string(rune('a' + i))
		_ = engine.Add(name, "S", Condition{KindPriceAbove, 0}, "")
		engine.Check("S", Input{Price: 1}, now)
	}
	if got := len(engine.Events(0)); got != 3 {
		t.Fatalf("expected history capped at 3, got %d", got)
	}
}

func TestJSONLRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "alerts.jsonl")
	recorder, err := NewJSONLRecorder(path)
	if err != nil {
		t.Fatalf("NewJSONLRecorder returned error: %v", err)
	}

	engine := NewEngine(10, recorder)
	_ = engine.Add("vol", "BTCUSDT", Condition{KindVolumeAbove, 10}, "volume spike")
	engine.Check("BTCUSDT", Input{Volume: 11}, time.UnixMilli(1700000000000).UTC())
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open events file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		t.Fatalf("expected one recorded event")
	}
	var event Event
	if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Name != "vol" || event.Kind != KindVolumeAbove {
		t.Fatalf("unexpected event: %+v", event)
	}
}
