package wiring

import (
	"fmt"
	"sync"
	"time"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
	"github.com/sophialabs/expectmock/internal/domain/trace"
	inboundhttp "github.com/sophialabs/expectmock/internal/infrastructure/inbound/http"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/callback"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/forward"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/openapi"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/template"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
	"github.com/sophialabs/expectmock/internal/infrastructure/services"
	"github.com/sophialabs/expectmock/internal/infrastructure/usecases"
)

// Params holds the subset of configuration needed to construct infrastructure components.
type Params struct {
	InitializerPath      string // "" = no expectation files
	TraceSize            int
	RateLimiterTTL       time.Duration
	ActionTimeout        time.Duration
	MaxDelay             time.Duration
	ForwardRateLimit     float64
	ForwardBurst         int
	PurgeExhausted       bool
	DefaultJSONMatchType string // "" = ONLY_MATCHING_FIELDS
	CallbackPath         string
	Logger               ports.Logger
}

// Container owns the construction and lifecycle of all infrastructure components.
type Container struct {
	logger           ports.Logger
	server           *inboundhttp.Server
	repo             *filesystem.Repository
	loadUC           *usecases.LoadExpectationsUseCase
	upsertUC         *usecases.UpsertExpectationsUseCase
	callbacks        *callback.Registry
	hub              *callback.Hub
	rateLimiterStore *ratelimit.Store
	traceBuf         *trace.RingBuffer
	closeOnce        sync.Once
}

// New constructs all infrastructure components. Fallible operations (repository,
// configuration checks) run before goroutine-starting operations (rate limiter
// store) to avoid goroutine leaks on early failure.
func New(p Params) (*Container, error) {
	matchType, err := parseJSONMatchType(p.DefaultJSONMatchType)
	if err != nil {
		return nil, err
	}

	var repo *filesystem.Repository
	if p.InitializerPath != "" {
		if repo, err = filesystem.NewRepository(p.InitializerPath); err != nil {
			return nil, fmt.Errorf("failed to create repository: %w", err)
		}
	}

	clk := clock.New()
	templates := template.NewRegistry(clk)
	resolver := openapi.NewResolver(p.Logger)
	compiler := services.NewCompiler(
		services.WithTemplates(templates),
		services.WithOpenAPI(resolver),
		services.WithDefaultJSONMatchType(matchType),
	)

	// Start background goroutine only after all fallible ops succeed.
	rateLimiterStore := ratelimit.NewStore(p.RateLimiterTTL)

	callbacks := callback.NewRegistry()
	hub := callback.NewHub(p.Logger)
	dispatcher := services.NewDispatcher(services.DispatcherDeps{
		Clock:           clk,
		Logger:          p.Logger,
		Forwarder:       forward.New(),
		RateLimiter:     rateLimiterStore,
		Templates:       templates,
		ClassCallbacks:  callbacks,
		ObjectCallbacks: hub,
	}, services.DispatcherConfig{
		ActionTimeout:    p.ActionTimeout,
		MaxDelay:         p.MaxDelay,
		ForwardRateLimit: p.ForwardRateLimit,
		ForwardBurst:     p.ForwardBurst,
	})

	registry := services.NewRegistry()
	traceBuf := trace.NewRingBuffer(p.TraceSize)
	evaluator := match.NewEvaluator()

	handleReqUC := usecases.NewHandleRequestUseCase(evaluator, registry, dispatcher, clk, p.Logger, traceBuf)
	handleReqUC.SetPurgeExhausted(p.PurgeExhausted)
	upsertUC := usecases.NewUpsertExpectationsUseCase(compiler, registry, clk, p.Logger)

	var loadUC *usecases.LoadExpectationsUseCase
	if repo != nil {
		loadUC = usecases.NewLoadExpectationsUseCase(repo, compiler, registry, clk, p.Logger)
	}

	server := inboundhttp.NewServer(inboundhttp.ServerDeps{
		HandleRequest: handleReqUC,
		Upsert:        upsertUC,
		OpenAPI:       usecases.NewOpenAPIExpectationUseCase(resolver, upsertUC),
		Clear:         usecases.NewClearUseCase(registry, compiler, evaluator, traceBuf, p.Logger, rateLimiterStore),
		Retrieve:      usecases.NewRetrieveUseCase(registry, compiler, evaluator, traceBuf, clk),
		Load:          loadUC,
		Callbacks:     hub,
		CallbackPath:  p.CallbackPath,
		Clock:         clk,
		Logger:        p.Logger,
	})

	return &Container{
		logger:           p.Logger,
		server:           server,
		repo:             repo,
		loadUC:           loadUC,
		upsertUC:         upsertUC,
		callbacks:        callbacks,
		hub:              hub,
		rateLimiterStore: rateLimiterStore,
		traceBuf:         traceBuf,
	}, nil
}

func parseJSONMatchType(s string) (expectation.JSONMatchType, error) {
	switch mt := expectation.JSONMatchType(s); mt {
	case "":
		return expectation.MatchOnlyMatchingFields, nil
	case expectation.MatchStrict, expectation.MatchOnlyMatchingFields:
		return mt, nil
	}
	return "", fmt.Errorf("invalid default JSON match type %q (want STRICT or ONLY_MATCHING_FIELDS)", s)
}

// Close releases resources held by the container. It is idempotent.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		c.rateLimiterStore.Stop()
		c.hub.Close()
	})
}

// Logger returns the logger passed at construction time.
func (c *Container) Logger() ports.Logger {
	return c.logger
}

// Server returns the HTTP front-end.
func (c *Container) Server() *inboundhttp.Server {
	return c.server
}

// Repository returns the expectation file source, or nil when no initializer
// path was configured.
func (c *Container) Repository() *filesystem.Repository {
	return c.repo
}

// LoadExpectationsUseCase returns the initializer use case, or nil when no
// initializer path was configured.
func (c *Container) LoadExpectationsUseCase() *usecases.LoadExpectationsUseCase {
	return c.loadUC
}

// UpsertExpectationsUseCase returns the use case registering expectations.
func (c *Container) UpsertExpectationsUseCase() *usecases.UpsertExpectationsUseCase {
	return c.upsertUC
}

// Callbacks returns the registry for named (class) callbacks.
func (c *Container) Callbacks() *callback.Registry {
	return c.callbacks
}

// RateLimiterStore returns the token bucket store for forward rate limiting.
func (c *Container) RateLimiterStore() *ratelimit.Store {
	return c.rateLimiterStore
}

// TraceBuf returns the trace ring buffer.
func (c *Container) TraceBuf() *trace.RingBuffer {
	return c.traceBuf
}
