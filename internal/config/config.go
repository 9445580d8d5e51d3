// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Parser mode names accepted in FEED_PARSER.
const (
	ParserLenient = "lenient"
	ParserStrict  = "strict"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	FeedURL          string
	PostBaseURL      string
	LogLevel         string
	CheckInterval    time.Duration
	HTTPAddr         string
	UnpushedLimit    int
	FeedParser       string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	cfg := &Config{
		TelegramBotToken: token,
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/bot.db"),
		FeedURL:          envOrDefault("FEED_URL", "https://rss.nodeseek.com/"),
		PostBaseURL:      envOrDefault("POST_BASE_URL", "https://www.nodeseek.com"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		CheckInterval:    time.Minute,
		HTTPAddr:         envOrDefault("HTTP_ADDR", ":8080"),
		UnpushedLimit:    50,
		FeedParser:       envOrDefault("FEED_PARSER", ParserLenient),
	}

	if raw := os.Getenv("CHECK_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CHECK_INTERVAL %q: %w", raw, err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("CHECK_INTERVAL must be at least 1s, got %s", d)
		}
		cfg.CheckInterval = d
	}

	if raw := os.Getenv("UNPUSHED_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid UNPUSHED_LIMIT %q", raw)
		}
		cfg.UnpushedLimit = n
	}

	if cfg.FeedParser != ParserLenient && cfg.FeedParser != ParserStrict {
		return nil, fmt.Errorf("invalid FEED_PARSER %q, use: lenient, strict", cfg.FeedParser)
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
