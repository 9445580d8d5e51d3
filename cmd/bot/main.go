package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"keyword_bot/internal/bot"
	"keyword_bot/internal/config"
	"keyword_bot/internal/feed"
	"keyword_bot/internal/metrics"
	"keyword_bot/internal/monitor"
	"keyword_bot/internal/notify"
	"keyword_bot/internal/scheduler"
	"keyword_bot/internal/server"
	"keyword_bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("create bot api", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	var parser feed.Parser = feed.LenientParser{}
	if cfg.FeedParser == config.ParserStrict {
		parser = feed.NewStrictParser()
	}

	mon := monitor.New(
		store,
		feed.NewFetcher(http.DefaultClient, cfg.FeedURL),
		parser,
		notify.New(api, cfg.PostBaseURL, log),
		collector,
		cfg.UnpushedLimit,
		log,
	)

	b := bot.New(api, store, cfg, log)
	sched := scheduler.New(mon, cfg.CheckInterval, log)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(mon, reg, cfg.FeedURL, log).Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting", "feed", cfg.FeedURL, "interval", cfg.CheckInterval, "http", cfg.HTTPAddr)

	go sched.Run(ctx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
		}
	}()

	b.Run(ctx)

	_ = srv.Shutdown(context.Background())
	log.Info("stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
