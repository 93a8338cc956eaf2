// Package config provides configuration loading for Tickflow feeds.
// Each feed resolves a typed config from the environment (after an
// optional .env bootstrap in main); LoadFile additionally supports YAML
// files with ${ENV_VAR} substitution for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default endpoint and tuning values, overridable via environment.
const (
	DefaultAlpacaWSURL     = "wss://stream.data.alpaca.markets/v2/iex"
	DefaultChannelCapacity = 1000
	DefaultRequestDelay    = time.Second
)

// Postgres holds the storage connection settings shared by every feed.
type Postgres struct {
	// URL is a libpq-style connection string.
	URL string `yaml:"url"`
}

// Validate reports missing required fields.
func (p Postgres) Validate() error {
	if p.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	return nil
}

// Alpaca configures the Alpaca websocket feed.
type Alpaca struct {
	WSURL     string   `yaml:"ws_url"`
	APIKey    string   `yaml:"api_key"`
	APISecret string   `yaml:"api_secret"`
	Bars      []string `yaml:"bars"`
	Quotes    []string `yaml:"quotes"`
	Trades    []string `yaml:"trades"`
}

// Validate reports missing required fields.
func (a Alpaca) Validate() error {
	if a.APIKey == "" {
		return fmt.Errorf("APCA_API_KEY_ID must be set")
	}
	if a.APISecret == "" {
		return fmt.Errorf("APCA_API_SECRET_KEY must be set")
	}
	if len(a.Bars)+len(a.Quotes)+len(a.Trades) == 0 {
		return fmt.Errorf("at least one bar, quote or trade subscription is required")
	}
	return nil
}

// Polymarket configures the Polymarket CLOB and Gamma feeds.
type Polymarket struct {
	// APIKey authenticates CLOB requests; the Gamma API needs none.
	APIKey string `yaml:"api_key"`
	// EndDateMin filters Gamma markets to those ending on or after this
	// ISO date, e.g. "2025-12-13".
	EndDateMin string `yaml:"end_date_min"`
	// RequestDelay is the pause between paginated requests.
	RequestDelay time.Duration `yaml:"request_delay"`
}

// Yahoo configures the Yahoo fundamentals feed.
type Yahoo struct {
	// SymbolsPath points at a CSV whose first column lists ticker symbols.
	SymbolsPath string `yaml:"symbols_path"`
	// RequestDelay is the pause between per-symbol requests.
	RequestDelay time.Duration `yaml:"request_delay"`
}

// Validate reports missing required fields.
func (y Yahoo) Validate() error {
	if y.SymbolsPath == "" {
		return fmt.Errorf("SYMBOLS_PATH must be set")
	}
	return nil
}

// App aggregates everything the tickflow binary needs to run any feed.
type App struct {
	Postgres        Postgres   `yaml:"postgres"`
	Alpaca          Alpaca     `yaml:"alpaca"`
	Polymarket      Polymarket `yaml:"polymarket"`
	Yahoo           Yahoo      `yaml:"yahoo"`
	ChannelCapacity int        `yaml:"channel_capacity"`
}

// FromEnv builds an App from environment variables, applying defaults
// where reasonable. Per-feed required fields are checked by the feed
// commands, not here, so running one feed does not demand the secrets of
// another.
func FromEnv() *App {
	return &App{
		Postgres: Postgres{
			URL: os.Getenv("DATABASE_URL"),
		},
		Alpaca: Alpaca{
			WSURL:     envOr("APCA_WS_URL", DefaultAlpacaWSURL),
			APIKey:    os.Getenv("APCA_API_KEY_ID"),
			APISecret: os.Getenv("APCA_API_SECRET_KEY"),
			Bars:      splitList(os.Getenv("APCA_BARS")),
			Quotes:    splitList(os.Getenv("APCA_QUOTES")),
			Trades:    splitList(os.Getenv("APCA_TRADES")),
		},
		Polymarket: Polymarket{
			APIKey:       os.Getenv("POLY_API_KEY"),
			EndDateMin:   os.Getenv("POLY_END_DATE_MIN"),
			RequestDelay: envDurationOr("POLY_REQUEST_DELAY", DefaultRequestDelay),
		},
		Yahoo: Yahoo{
			SymbolsPath:  os.Getenv("SYMBOLS_PATH"),
			RequestDelay: envDurationOr("YAHOO_REQUEST_DELAY", DefaultRequestDelay),
		},
		ChannelCapacity: envIntOr("DATAFEED_CHANNEL_SIZE", DefaultChannelCapacity),
	}
}

// splitList parses a comma-separated symbol list, trimming whitespace
// and dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
