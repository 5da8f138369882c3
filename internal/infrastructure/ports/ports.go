package ports

import (
	"context"
	"errors"
	"time"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

var (
	// ErrUnknownCallback indicates no class callback is registered under a name.
	ErrUnknownCallback = errors.New("unknown callback class")
	// ErrUnknownClient indicates no object callback client is connected under an id.
	ErrUnknownClient = errors.New("unknown callback client")
)

// Clock provides the current time (for testing).
type Clock interface {
	Now() time.Time
	// SleepContext blocks for d or until ctx is cancelled. Returns ctx.Err() if cancelled.
	SleepContext(ctx context.Context, d time.Duration) error
}

// Logger provides structured logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// RateLimiter checks whether a request is allowed under rate limits.
type RateLimiter interface {
	// Allow checks if a request identified by key is within the rate limit.
	// rate is tokens per second, burst is the max burst size.
	Allow(ctx context.Context, key string, rate float64, burst int) bool
}

// Forwarder sends a request to the upstream named by its SocketAddress (or Host
// header) and returns the upstream response.
type Forwarder interface {
	Forward(ctx context.Context, req *expectation.Request) (*expectation.Response, error)
}

// ResponseCallback produces a response for a matched request.
type ResponseCallback func(ctx context.Context, req *expectation.Request) (*expectation.Response, error)

// ForwardCallback produces the request to forward for a matched request.
type ForwardCallback func(ctx context.Context, req *expectation.Request) (*expectation.Request, error)

// ClassCallbacks resolves in-process callbacks registered by name.
type ClassCallbacks interface {
	// ResponseCallback returns ErrUnknownCallback when name is not registered.
	ResponseCallback(name string) (ResponseCallback, error)
	// ForwardCallback returns ErrUnknownCallback when name is not registered.
	ForwardCallback(name string) (ForwardCallback, error)
}

// ObjectCallbacks round-trips requests through connected callback clients.
// Every method returns ErrUnknownClient when clientID is not connected.
type ObjectCallbacks interface {
	RequestToResponse(ctx context.Context, clientID string, req *expectation.Request) (*expectation.Response, error)
	RequestToForward(ctx context.Context, clientID string, req *expectation.Request) (*expectation.Request, error)
	ForwardedResponse(ctx context.Context, clientID string, req *expectation.Request, resp *expectation.Response) (*expectation.Response, error)
}

// Template is a compiled template producing JSON for a request.
type Template interface {
	Render(ctx context.Context, req *expectation.Request) ([]byte, error)
}

// TemplateRenderer compiles templates for a named engine.
type TemplateRenderer interface {
	Compile(engine expectation.TemplateEngine, source string) (Template, error)
}

// OpenAPIResolver turns OpenAPI documents into request matchers and expectations.
type OpenAPIResolver interface {
	// Resolve returns one request matcher per operation selected by def.
	Resolve(ctx context.Context, def *expectation.OpenAPIDefinition) ([]*expectation.RequestMatcher, error)
	// Expand returns one expectation per operation selected by oe.
	Expand(ctx context.Context, oe *expectation.OpenAPIExpectation) ([]*expectation.Expectation, error)
}
