// Package export serializes ticks and bars to CSV and Parquet, and parses
// uploaded pre-aggregated bar CSVs.
package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/parquet-go/parquet-go"

	"livequant/internal/market"
)

// CSVTime marshals as RFC3339 and accepts either RFC3339 or epoch
// milliseconds on input.
type CSVTime struct {
	time.Time
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (t CSVTime) MarshalCSV() (string, error) {
	return t.UTC().Format(time.RFC3339), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (t *CSVTime) UnmarshalCSV(field string) error {
	if parsed, err := time.Parse(time.RFC3339, field); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	ms, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %q is neither RFC3339 nor epoch millis", field)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// BarRecord is the CSV row shape for bars, upload and export alike.
type BarRecord struct {
	Timestamp CSVTime `csv:"timestamp"`
	Symbol    string  `csv:"symbol"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// TickRecord is the CSV row shape for raw ticks.
type TickRecord struct {
	Timestamp CSVTime `csv:"timestamp"`
	Symbol    string  `csv:"symbol"`
	Price     float64 `csv:"price"`
	Qty       float64 `csv:"qty"`
}

// WriteBarsCSV streams bars as CSV with the canonical header.
func WriteBarsCSV(w io.Writer, bars []market.Bar) error {
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Timestamp: CSVTime{b.Start},
			Symbol:    b.Symbol,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return gocsv.Marshal(records, w)
}

// WriteTicksCSV streams raw ticks as CSV.
func WriteTicksCSV(w io.Writer, ticks []market.Tick) error {
	records := make([]TickRecord, len(ticks))
	for i, tk := range ticks {
		records[i] = TickRecord{Timestamp: CSVTime{tk.Ts}, Symbol: tk.Symbol, Price: tk.Price, Qty: tk.Qty}
	}
	return gocsv.Marshal(records, w)
}

// ReadBarsCSV parses an uploaded pre-aggregated bar CSV. Rows are validated;
// the first invalid row fails the upload with its line context.
func ReadBarsCSV(r io.Reader) ([]market.Bar, error) {
	var records []BarRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, fmt.Errorf("parse bar csv: %w", err)
	}

	bars := make([]market.Bar, 0, len(records))
	for i, rec := range records {
		if rec.Symbol == "" {
			return nil, fmt.Errorf("row %d: missing symbol", i+1)
		}
		if rec.Timestamp.IsZero() {
			return nil, fmt.Errorf("row %d: missing timestamp", i+1)
		}
		if rec.High < rec.Low {
			return nil, fmt.Errorf("row %d: high %.6f below low %.6f", i+1, rec.High, rec.Low)
		}
		if rec.Volume < 0 {
			return nil, fmt.Errorf("row %d: negative volume", i+1)
		}
		bars = append(bars, market.Bar{
			Symbol: rec.Symbol,
			Start:  rec.Timestamp.Time,
			Open:   rec.Open,
			High:   rec.High,
			Low:    rec.Low,
			Close:  rec.Close,
			Volume: rec.Volume,
		})
	}
	return bars, nil
}

// barParquet is the columnar DTO for bars; timestamps as epoch millis.
type barParquet struct {
	Timestamp int64   `parquet:"timestamp"`
	Symbol    string  `parquet:"symbol"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

type tickParquet struct {
	Timestamp int64   `parquet:"timestamp"`
	Symbol    string  `parquet:"symbol"`
	Price     float64 `parquet:"price"`
	Qty       float64 `parquet:"qty"`
}

// WriteBarsParquet streams bars in Parquet format.
func WriteBarsParquet(w io.Writer, bars []market.Bar) error {
	rows := make([]barParquet, len(bars))
	for i, b := range bars {
		rows[i] = barParquet{
			Timestamp: b.Start.UnixMilli(),
			Symbol:    b.Symbol,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	writer := parquet.NewGenericWriter[barParquet](w)
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		return fmt.Errorf("write parquet bars: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// WriteTicksParquet streams raw ticks in Parquet format.
func WriteTicksParquet(w io.Writer, ticks []market.Tick) error {
	rows := make([]tickParquet, len(ticks))
	for i, tk := range ticks {
		rows[i] = tickParquet{Timestamp: tk.Ts.UnixMilli(), Symbol: tk.Symbol, Price: tk.Price, Qty: tk.Qty}
	}
	writer := parquet.NewGenericWriter[tickParquet](w)
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		return fmt.Errorf("write parquet ticks: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
