package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"livequant/internal/alert"
	"livequant/internal/api"
	"livequant/internal/buffer"
	"livequant/internal/config"
	"livequant/internal/feed"
	"livequant/internal/metrics"
	"livequant/internal/service"
	"livequant/internal/store"
	"livequant/internal/util"
)

func main() {
	_ = godotenv.Load() // best-effort

	cfgPath := flag.String("config", "internal/config/config.yaml", "path to YAML config")
	flag.Parse()
	if env := os.Getenv("LIVEQUANT_CONFIG"); env != "" {
		*cfgPath = env
	}

	log := util.NewLogger("info")
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticks, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("open tick store")
	}
	defer ticks.Close()

	var recorder alert.EventRecorder
	if cfg.Alerts.EventsPath != "" {
		rec, err := alert.NewJSONLRecorder(cfg.Alerts.EventsPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Alerts.EventsPath).Msg("open alert recorder")
		}
		defer rec.Close()
		recorder = rec
	}
	alerts := alert.NewEngine(cfg.Alerts.MaxHistory, recorder)

	var opts []feed.Option
	if cfg.Feed.ReadTimeoutMs > 0 {
		opts = append(opts, feed.WithReadTimeout(time.Duration(cfg.Feed.ReadTimeoutMs)*time.Millisecond))
	}
	if cfg.Feed.PollIntervalMs > 0 {
		opts = append(opts, feed.WithPollInterval(time.Duration(cfg.Feed.PollIntervalMs)*time.Millisecond))
	}
	if cfg.Feed.BaseURL != "" {
		opts = append(opts, feed.WithPollBaseURL(cfg.Feed.BaseURL))
	}
	conn := feed.NewConnector(cfg.Feed.Provider, cfg.Feed.Symbols, util.Component(log, "feed"), opts...)

	granularity, err := config.ParseGranularity(cfg.Analytics.Granularity)
	if err != nil {
		log.Fatal().Err(err).Msg("parse granularity")
	}

	buf := buffer.New(cfg.Buffer.CapacityPerSymbol)
	pipeline := service.New(conn, buf, ticks, alerts, cfg.RefreshInterval(), cfg.Analytics.RollingWindow, util.Component(log, "pipeline"))

	handler := api.New(pipeline, granularity, cfg.Analytics.RollingWindow, util.Component(log, "api"))
	srv := handler.Serve(cfg.App.APIAddr)
	log.Info().Str("addr", cfg.App.APIAddr).Msg("api up")

	log.Info().
		Str("provider", cfg.Feed.Provider).
		Strs("symbols", cfg.Feed.Symbols).
		Str("granularity", cfg.Analytics.Granularity).
		Msg("pipeline started")

	if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("pipeline stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
