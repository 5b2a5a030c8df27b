package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"livequant/internal/market"
)

func sampleBars() []market.Bar {
	base := time.UnixMilli(1700000000000).UTC()
	return []market.Bar{
		{Symbol: "BTCUSDT", Start: base, Open: 100, High: 105, Low: 99, Close: 104, Volume: 12.5},
		{Symbol: "BTCUSDT", Start: base.Add(time.Minute), Open: 104, High: 106, Low: 103, Close: 105, Volume: 8},
	}
}

func TestWriteBarsCSVHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBarsCSV(&buf, sampleBars()); err != nil {
		t.Fatalf("WriteBarsCSV returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "timestamp,symbol,open,high,low,close,volume" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "BTCUSDT") || !strings.Contains(lines[1], "105") {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}

func TestBarsCSVRoundTrip(t *testing.T) {
	in := sampleBars()
	var buf bytes.Buffer
	if err := WriteBarsCSV(&buf, in); err != nil {
		t.Fatalf("WriteBarsCSV returned error: %v", err)
	}

	out, err := ReadBarsCSV(&buf)
	if err != nil {
		t.Fatalf("ReadBarsCSV returned error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d bars, got %d", len(in), len(out))
	}
	for i := range in {
		if !out[i].Start.Equal(in[i].Start) || out[i].Close != in[i].Close || out[i].Volume != in[i].Volume {
			t.Fatalf("bar %d mismatch: want %+v got %+v", i, in[i], out[i])
		}
	}
}

func TestReadBarsCSVAcceptsEpochMillis(t *testing.T) {
	csv := "timestamp,symbol,open,high,low,close,volume\n1700000000000,ETHUSDT,10,12,9,11,3.5\n"
	bars, err := ReadBarsCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadBarsCSV returned error: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	if bars[0].Start.UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected timestamp: %s", bars[0].Start)
	}
}

func TestReadBarsCSVRejectsBadRows(t *testing.T) {
	cases := []string{
		"timestamp,symbol,open,high,low,close,volume\n2024-01-01T00:00:00Z,,10,12,9,11,1\n",
		"timestamp,symbol,open,high,low,close,volume\n2024-01-01T00:00:00Z,BTCUSDT,10,8,9,11,1\n",
		"timestamp,symbol,open,high,low,close,volume\n2024-01-01T00:00:00Z,BTCUSDT,10,12,9,11,-1\n",
		"timestamp,symbol,open,high,low,close,volume\nnot-a-time,BTCUSDT,10,12,9,11,1\n",
	}
	for _, csv := range cases {
		if _, err := ReadBarsCSV(strings.NewReader(csv)); err == nil {
			t.Fatalf("expected error for csv: %s", csv)
		}
	}
}

func TestTicksCSV(t *testing.T) {
	ticks := []market.Tick{
		{Symbol: "BTCUSDT", Ts: time.UnixMilli(1700000000000).UTC(), Price: 100.5, Qty: 0.25},
	}
	var buf bytes.Buffer
	if err := WriteTicksCSV(&buf, ticks); err != nil {
		t.Fatalf("WriteTicksCSV returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "timestamp,symbol,price,qty" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if len(lines) != 2 {
		t.Fatalf("expected 1 data row, got %d", len(lines)-1)
	}
}

func TestBarsParquetRoundTrip(t *testing.T) {
	in := sampleBars()
	var buf bytes.Buffer
	if err := WriteBarsParquet(&buf, in); err != nil {
		t.Fatalf("WriteBarsParquet returned error: %v", err)
	}

	rows, err := parquet.Read[barParquet](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("parquet read returned error: %v", err)
	}
	if len(rows) != len(in) {
		t.Fatalf("expected %d rows, got %d", len(in), len(rows))
	}
	if rows[0].Symbol != "BTCUSDT" || rows[0].Close != 104 {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[0].Timestamp != in[0].Start.UnixMilli() {
		t.Fatalf("unexpected timestamp: %d", rows[0].Timestamp)
	}
}

func TestTicksParquetRoundTrip(t *testing.T) {
	ticks := []market.Tick{
		{Symbol: "ETHUSDT", Ts: time.UnixMilli(1700000000000).UTC(), Price: 2000, Qty: 1.5},
	}
	var buf bytes.Buffer
	if err := WriteTicksParquet(&buf, ticks); err != nil {
		t.Fatalf("WriteTicksParquet returned error: %v", err)
	}
	rows, err := parquet.Read[tickParquet](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("parquet read returned error: %v", err)
	}
	if len(rows) != 1 || rows[0].Price != 2000 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
