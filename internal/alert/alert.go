// Package alert evaluates typed alert conditions over freshly computed market
// data and keeps a bounded history of triggered events.
package alert

import (
	"fmt"
	"math"
	"sync"
	"time"

	"livequant/internal/metrics"
)

// Kind names a supported alert condition.
type Kind string

const (
	KindPriceAbove     Kind = "price-above"
	KindPriceBelow     Kind = "price-below"
	KindZScoreAbsAbove Kind = "zscore-abs-above"
	KindVolumeAbove    Kind = "volume-above"
)

// Condition is a tagged alert predicate with its typed parameter.
type Condition struct {
	Kind      Kind    `json:"kind"`
	Threshold float64 `json:"threshold"`
}

// Input carries the latest computed values an alert can react to. ZScore is
// NaN while the rolling window is warming up, which never triggers.
type Input struct {
	Price  float64
	Volume float64
	ZScore float64
}

// Evaluate is the single dispatcher over condition kinds.
func (c Condition) Evaluate(in Input) bool {
	switch c.Kind {
	case KindPriceAbove:
		return in.Price > c.Threshold
	case KindPriceBelow:
		return in.Price < c.Threshold
	case KindZScoreAbsAbove:
		return math.Abs(in.ZScore) > c.Threshold
	case KindVolumeAbove:
		return in.Volume > c.Threshold
	default:
		return false
	}
}

// Valid reports whether the condition kind is recognized.
func (c Condition) Valid() bool {
	switch c.Kind {
	case KindPriceAbove, KindPriceBelow, KindZScoreAbsAbove, KindVolumeAbove:
		return true
	}
	return false
}

// Alert binds a condition to a symbol. Alerts fire once and stay inactive
// until Reset.
type Alert struct {
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Condition Condition `json:"condition"`
	Message   string    `json:"message"`
	Active    bool      `json:"active"`
}

// Event records a fired alert.
type Event struct {
	Name    string    `json:"name"`
	Symbol  string    `json:"symbol"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Ts      time.Time `json:"ts"`
}

// EventRecorder captures triggered events for later analysis.
type EventRecorder interface {
	Record(Event)
}

// Engine is the alert registry and evaluator.
type Engine struct {
	mu         sync.Mutex
	alerts     map[string]*Alert
	events     []Event
	maxHistory int
	recorder   EventRecorder
}

// NewEngine builds an engine keeping at most maxHistory triggered events. The
// recorder may be nil.
func NewEngine(maxHistory int, recorder EventRecorder) *Engine {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	return &Engine{
		alerts:     make(map[string]*Alert),
		maxHistory: maxHistory,
		recorder:   recorder,
	}
}

// Add registers an alert under its name, replacing any previous definition.
func (e *Engine) Add(name, symbol string, cond Condition, message string) error {
	if name == "" {
		return fmt.Errorf("alert name must be set")
	}
	if !cond.Valid() {
		return fmt.Errorf("unknown alert kind %q", cond.Kind)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts[name] = &Alert{Name: name, Symbol: symbol, Condition: cond, Message: message, Active: true}
	return nil
}

// Remove deletes an alert by name.
func (e *Engine) Remove(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.alerts, name)
}

// Reset reactivates a fired alert.
func (e *Engine) Reset(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.alerts[name]; ok {
		a.Active = true
	}
}

// Alerts returns a copy of the registered alerts.
func (e *Engine) Alerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		out = append(out, *a)
	}
	return out
}

// Check evaluates every active alert registered for the symbol against the
// input, firing matches exactly once.
func (e *Engine) Check(symbol string, in Input, now time.Time) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []Event
	for _, a := range e.alerts {
		if !a.Active || a.Symbol != symbol {
			continue
		}
		if !a.Condition.Evaluate(in) {
			continue
		}
		a.Active = false
		event := Event{Name: a.Name, Symbol: a.Symbol, Kind: a.Condition.Kind, Message: a.Message, Ts: now}
		fired = append(fired, event)
		e.events = append(e.events, event)
		if len(e.events) > e.maxHistory {
			e.events = e.events[len(e.events)-e.maxHistory:]
		}
		metrics.AlertsTriggeredTotal.WithLabelValues(string(a.Condition.Kind)).Inc()
		if e.recorder != nil {
			e.recorder.Record(event)
		}
	}
	return fired
}

// Events returns up to limit recent triggered events, newest last.
func (e *Engine) Events(limit int) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.events) {
		limit = len(e.events)
	}
	out := make([]Event, limit)
	copy(out, e.events[len(e.events)-limit:])
	return out
}

// ClearEvents drops the triggered-event history.
func (e *Engine) ClearEvents() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = e.events[:0]
}
