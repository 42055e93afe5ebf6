package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8080/api" {
		t.Fatalf("base url = %q", cfg.APIBaseURL)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Fatalf("timeout = %v", cfg.HTTPTimeout)
	}
	if cfg.SessionDB != "session.db" {
		t.Fatalf("session db = %q", cfg.SessionDB)
	}
}

func TestLoadClientFromEnv(t *testing.T) {
	t.Setenv("LIBRARY_API_BASE_URL", "https://books.example.org/api")
	t.Setenv("LIBRARY_HTTP_TIMEOUT", "3s")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "https://books.example.org/api" || cfg.HTTPTimeout != 3*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadDevServerError(t *testing.T) {
	t.Setenv("LIBRARY_DEV_BURST", "lots")

	_, err := LoadDevServer()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := Level(in); got != want {
			t.Fatalf("Level(%q) = %v, want %v", in, got, want)
		}
	}
}
