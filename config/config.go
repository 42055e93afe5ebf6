// Package config loads settings for the CLI and the development server from
// the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Client configures the API client and the persisted session.
type Client struct {
	APIBaseURL  string        `env:"LIBRARY_API_BASE_URL" envDefault:"http://localhost:8080/api"`
	SessionDB   string        `env:"LIBRARY_SESSION_DB" envDefault:"session.db"`
	HTTPTimeout time.Duration `env:"LIBRARY_HTTP_TIMEOUT" envDefault:"15s"`
	LogLevel    string        `env:"LIBRARY_LOG_LEVEL" envDefault:"info"`
}

// DevServer configures the reference API server.
type DevServer struct {
	Addr     string  `env:"LIBRARY_DEV_ADDR" envDefault:":8080"`
	DB       string  `env:"LIBRARY_DEV_DB" envDefault:"library.db"`
	Prefix   string  `env:"LIBRARY_DEV_PREFIX" envDefault:"/api"`
	Rate     float64 `env:"LIBRARY_DEV_RATE" envDefault:"20"`
	Burst    int     `env:"LIBRARY_DEV_BURST" envDefault:"40"`
	Admin    string  `env:"LIBRARY_DEV_ADMIN" envDefault:"admin"`
	AdminPwd string  `env:"LIBRARY_DEV_ADMIN_PASSWORD"`
}

// Parse loads environment values into target.
func Parse(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadClient returns the client configuration.
func LoadClient() (Client, error) {
	var cfg Client
	err := Parse(&cfg)
	return cfg, err
}

// LoadDevServer returns the development server configuration.
func LoadDevServer() (DevServer, error) {
	var cfg DevServer
	err := Parse(&cfg)
	return cfg, err
}

// Level maps a level name to slog. Unknown names fall back to info.
func Level(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
