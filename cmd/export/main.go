package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"livequant/internal/config"
	"livequant/internal/export"
	"livequant/internal/market"
	"livequant/internal/resample"
	"livequant/internal/store"
	"livequant/internal/util"
)

// Offline exporter. Reads the tick database directly so it can run while the
// pipeline is down or against a copied snapshot.
func main() {
	dbPath := flag.String("db", "data/ticks.db", "path to the tick database")
	symbol := flag.String("symbol", "", "symbol to export (required)")
	startArg := flag.String("start", "", "range start, RFC3339 or epoch ms (default: 24h ago)")
	endArg := flag.String("end", "", "range end, RFC3339 or epoch ms (default: now)")
	kind := flag.String("kind", "bars", "what to export: ticks or bars")
	format := flag.String("format", "csv", "output format: csv or parquet")
	granularity := flag.String("granularity", "1m", "bar granularity: 1s, 1m, or 5m")
	out := flag.String("out", "", "output file (default: stdout, csv only)")
	flag.Parse()

	log := util.NewLogger("info")

	if *symbol == "" {
		log.Fatal().Msg("-symbol is required")
	}

	now := time.Now().UTC()
	start, err := parseTimeArg(*startArg, now.Add(-24*time.Hour))
	if err != nil {
		log.Fatal().Err(err).Msg("parse -start")
	}
	end, err := parseTimeArg(*endArg, now)
	if err != nil {
		log.Fatal().Err(err).Msg("parse -end")
	}

	ticks, err := store.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("open tick store")
	}
	defer ticks.Close()

	rows, err := ticks.Query(context.Background(), *symbol, start, end)
	if err != nil {
		log.Fatal().Err(err).Msg("query ticks")
	}
	log.Info().Int("ticks", len(rows)).Str("symbol", *symbol).Msg("loaded range")

	var bars []market.Bar
	if *kind == "bars" {
		step, err := config.ParseGranularity(*granularity)
		if err != nil {
			log.Fatal().Err(err).Msg("parse -granularity")
		}
		bars = resample.Resample(rows, step)
	} else if *kind != "ticks" {
		log.Fatal().Str("kind", *kind).Msg("-kind must be ticks or bars")
	}

	dst := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatal().Err(err).Str("path", *out).Msg("create output file")
		}
		defer f.Close()
		dst = f
	} else if *format == "parquet" {
		log.Fatal().Msg("-out is required for parquet output")
	}

	switch {
	case *kind == "ticks" && *format == "csv":
		err = export.WriteTicksCSV(dst, rows)
	case *kind == "ticks" && *format == "parquet":
		err = export.WriteTicksParquet(dst, rows)
	case *kind == "bars" && *format == "csv":
		err = export.WriteBarsCSV(dst, bars)
	case *kind == "bars" && *format == "parquet":
		err = export.WriteBarsParquet(dst, bars)
	default:
		log.Fatal().Str("format", *format).Msg("-format must be csv or parquet")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("write export")
	}

	if *out != "" {
		log.Info().Str("path", *out).Str("kind", *kind).Str("format", *format).Msg("export written")
	}
}

func parseTimeArg(arg string, fallback time.Time) (time.Time, error) {
	if arg == "" {
		return fallback, nil
	}
	if ts, err := time.Parse(time.RFC3339, arg); err == nil {
		return ts.UTC(), nil
	}
	ms, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or epoch milliseconds, got %q", arg)
	}
	return time.UnixMilli(ms).UTC(), nil
}
