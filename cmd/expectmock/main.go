package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sophialabs/expectmock/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := app.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "expectmock",
		Short:         "HTTP mock server driven by request expectations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			return a.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	f.StringVar(&cfg.InitializerPath, "initializer", cfg.InitializerPath, "expectation file, directory or glob (e.g. 'mocks/**/*.yaml')")
	f.BoolVar(&cfg.Watch, "watch", cfg.Watch, "reload expectation files when they change")
	f.IntVar(&cfg.TraceSize, "trace-size", cfg.TraceSize, "number of trace entries to keep")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.DurationVar(&cfg.RateLimiterTTL, "rate-limiter-ttl", cfg.RateLimiterTTL, "idle time before a forward rate limit bucket is evicted")
	f.DurationVar(&cfg.WatcherDebounce, "watch-debounce", cfg.WatcherDebounce, "delay between a file change and the reload")
	f.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "HTTP server read timeout")
	f.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "HTTP server write timeout")
	f.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "HTTP server idle timeout")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	f.DurationVar(&cfg.ActionTimeout, "action-timeout", cfg.ActionTimeout, "timeout for forwards and callbacks")
	f.DurationVar(&cfg.MaxDelay, "max-delay", cfg.MaxDelay, "largest accepted action delay")
	f.Float64Var(&cfg.ForwardRateLimit, "forward-rate", cfg.ForwardRateLimit, "forwarded requests per second per upstream host (0 = unlimited)")
	f.IntVar(&cfg.ForwardBurst, "forward-burst", cfg.ForwardBurst, "burst size for forward rate limiting")
	f.BoolVar(&cfg.PurgeExhausted, "purge-exhausted", cfg.PurgeExhausted, "remove expectations once their remaining times are spent")
	f.StringVar(&cfg.DefaultJSONMatchType, "json-match-type", cfg.DefaultJSONMatchType, "match type for JSON bodies that declare none (STRICT, ONLY_MATCHING_FIELDS)")
	f.StringVar(&cfg.CallbackPath, "callback-path", cfg.CallbackPath, "websocket path for object callback clients")

	cmd.AddCommand(newHealthCmd())
	return cmd
}
