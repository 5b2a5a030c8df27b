// Package market standardizes payloads shared between ingestion, storage, and analytics layers.
package market

import "time"

// Tick models a single trade event as normalized from a feed message.
// A Tick is immutable once constructed.
type Tick struct {
	Symbol string
	Ts     time.Time // UTC, millisecond precision
	Price  float64
	Qty    float64
}

// Bar aggregates ticks into open/high/low/close/volume over a fixed time bucket.
// Bars are always derived from ticks (or uploaded pre-aggregated); they are
// never persisted on their own.
type Bar struct {
	Symbol string
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Point is one element of an ordered time series.
type Point struct {
	Ts    time.Time
	Value float64
}

// PairSnapshot carries the pairs-trading statistics computed for one request
// window. It is transient and recomputed per request.
type PairSnapshot struct {
	SymbolY    string
	SymbolX    string
	HedgeRatio float64
	Spread     []Point
	ZScore     []Point
	ADFStat    float64
	ADFPValue  float64
}
