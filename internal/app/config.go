package app

import "time"

// Config holds all configurable parameters for the application.
type Config struct {
	Port            int
	InitializerPath string // file, directory or doublestar glob; "" = none
	Watch           bool
	TraceSize       int
	LogLevel        string

	RateLimiterTTL  time.Duration
	WatcherDebounce time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	ActionTimeout    time.Duration
	MaxDelay         time.Duration
	ForwardRateLimit float64 // requests per second per upstream host; 0 = unlimited
	ForwardBurst     int

	PurgeExhausted       bool
	DefaultJSONMatchType string // STRICT or ONLY_MATCHING_FIELDS
	CallbackPath         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Port:      1080,
		Watch:     true,
		TraceSize: 200,
		LogLevel:  "info",

		RateLimiterTTL:  10 * time.Minute,
		WatcherDebounce: 500 * time.Millisecond,

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    2 * time.Minute,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,

		ActionTimeout: 20 * time.Second,
		MaxDelay:      time.Minute,
		ForwardBurst:  10,

		DefaultJSONMatchType: "ONLY_MATCHING_FIELDS",
		CallbackPath:         "/mockserver/callback",
	}
}
