package app_test

import (
	"testing"

	"github.com/sophialabs/expectmock/internal/app"
)

func TestDefaultConfig_HasSensibleValues(t *testing.T) {
	cfg := app.DefaultConfig()

	if cfg.Port == 0 {
		t.Error("Port should not be zero")
	}
	if cfg.TraceSize == 0 {
		t.Error("TraceSize should not be zero")
	}
	if cfg.LogLevel == "" {
		t.Error("LogLevel should not be empty")
	}
	if cfg.RateLimiterTTL == 0 {
		t.Error("RateLimiterTTL should not be zero")
	}
	if cfg.WatcherDebounce == 0 {
		t.Error("WatcherDebounce should not be zero")
	}
	if cfg.ReadTimeout == 0 {
		t.Error("ReadTimeout should not be zero")
	}
	if cfg.WriteTimeout == 0 {
		t.Error("WriteTimeout should not be zero")
	}
	if cfg.IdleTimeout == 0 {
		t.Error("IdleTimeout should not be zero")
	}
	if cfg.ShutdownTimeout == 0 {
		t.Error("ShutdownTimeout should not be zero")
	}
	if cfg.ActionTimeout == 0 {
		t.Error("ActionTimeout should not be zero")
	}
	if cfg.MaxDelay == 0 || cfg.MaxDelay >= cfg.WriteTimeout {
		t.Errorf("MaxDelay should be set and below WriteTimeout, got %v", cfg.MaxDelay)
	}
	if cfg.DefaultJSONMatchType != "ONLY_MATCHING_FIELDS" {
		t.Errorf("unexpected DefaultJSONMatchType: %q", cfg.DefaultJSONMatchType)
	}
	if cfg.CallbackPath == "" {
		t.Error("CallbackPath should not be empty")
	}
}

func TestNew_WithAllLogLevels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "error", "unknown"}

	for _, level := range levels {
		t.Run(level, func(t *testing.T) {
			dir := t.TempDir()
			writeTestExpectations(t, dir)

			cfg := app.DefaultConfig()
			cfg.InitializerPath = dir
			cfg.LogLevel = level

			a, err := app.New(cfg)
			if err != nil {
				t.Fatalf("New failed for log level %q: %v", level, err)
			}
			if a == nil {
				t.Fatalf("expected non-nil App for log level %q", level)
			}
			a.Container().Close()
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*app.Config)
	}{
		{"json match type", func(c *app.Config) { c.DefaultJSONMatchType = "LOOSE" }},
		{"initializer glob", func(c *app.Config) { c.InitializerPath = "mocks/[*.yaml" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := app.DefaultConfig()
			tc.mutate(&cfg)

			if _, err := app.New(cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
