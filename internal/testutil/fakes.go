package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)  {}
func (l *NoopLogger) Warn(string, ...any)  {}
func (l *NoopLogger) Error(string, ...any) {}
func (l *NoopLogger) Debug(string, ...any) {}

var _ ports.Clock = (*FixedClock)(nil)

// FixedClock returns a fixed time and never sleeps. Requested sleeps are recorded.
type FixedClock struct {
	T time.Time

	mu    sync.Mutex
	slept []time.Duration
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) SleepContext(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return ctx.Err()
}

// Slept returns the durations passed to SleepContext.
func (c *FixedClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

var _ ports.RateLimiter = (*StubRateLimiter)(nil)

// StubRateLimiter returns a configurable Allow result and records the keys asked for.
type StubRateLimiter struct {
	AllowAll bool

	mu   sync.Mutex
	keys []string
}

func (r *StubRateLimiter) Allow(_ context.Context, key string, _ float64, _ int) bool {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	return r.AllowAll
}

// Keys returns the keys passed to Allow.
func (r *StubRateLimiter) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

var _ ports.Forwarder = (*StubForwarder)(nil)

// StubForwarder records forwarded requests and returns a configurable result.
type StubForwarder struct {
	Response *expectation.Response
	Err      error
	// Block makes Forward wait for ctx cancellation.
	Block bool

	mu       sync.Mutex
	received []*expectation.Request
}

func (f *StubForwarder) Forward(ctx context.Context, req *expectation.Request) (*expectation.Response, error) {
	f.mu.Lock()
	f.received = append(f.received, req.Clone())
	f.mu.Unlock()

	if f.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Response.Clone(), nil
}

// Received returns the requests passed to Forward.
func (f *StubForwarder) Received() []*expectation.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*expectation.Request(nil), f.received...)
}

var _ ports.TemplateRenderer = (*StubTemplates)(nil)

// StubTemplates compiles every source into a template returning Result.
type StubTemplates struct {
	Result     []byte
	RenderErr  error
	CompileErr error
}

func (s *StubTemplates) Compile(expectation.TemplateEngine, string) (ports.Template, error) {
	if s.CompileErr != nil {
		return nil, s.CompileErr
	}
	return stubTemplate{result: s.Result, err: s.RenderErr}, nil
}

type stubTemplate struct {
	result []byte
	err    error
}

func (t stubTemplate) Render(context.Context, *expectation.Request) ([]byte, error) {
	return t.result, t.err
}

var _ ports.ClassCallbacks = (*StubClassCallbacks)(nil)

// StubClassCallbacks resolves callbacks from maps.
type StubClassCallbacks struct {
	Responses map[string]ports.ResponseCallback
	Forwards  map[string]ports.ForwardCallback
}

func (s *StubClassCallbacks) ResponseCallback(name string) (ports.ResponseCallback, error) {
	cb, ok := s.Responses[name]
	if !ok {
		return nil, ports.ErrUnknownCallback
	}
	return cb, nil
}

func (s *StubClassCallbacks) ForwardCallback(name string) (ports.ForwardCallback, error) {
	cb, ok := s.Forwards[name]
	if !ok {
		return nil, ports.ErrUnknownCallback
	}
	return cb, nil
}

var _ ports.ObjectCallbacks = (*StubObjectCallbacks)(nil)

// StubObjectCallbacks answers for a single connected client id.
type StubObjectCallbacks struct {
	ClientID  string
	Response  *expectation.Response
	Forward   *expectation.Request
	Forwarded func(*expectation.Response) *expectation.Response
}

func (s *StubObjectCallbacks) RequestToResponse(_ context.Context, clientID string, _ *expectation.Request) (*expectation.Response, error) {
	if clientID != s.ClientID {
		return nil, ports.ErrUnknownClient
	}
	return s.Response.Clone(), nil
}

func (s *StubObjectCallbacks) RequestToForward(_ context.Context, clientID string, _ *expectation.Request) (*expectation.Request, error) {
	if clientID != s.ClientID {
		return nil, ports.ErrUnknownClient
	}
	return s.Forward.Clone(), nil
}

func (s *StubObjectCallbacks) ForwardedResponse(_ context.Context, clientID string, _ *expectation.Request, resp *expectation.Response) (*expectation.Response, error) {
	if clientID != s.ClientID {
		return nil, ports.ErrUnknownClient
	}
	if s.Forwarded == nil {
		return resp, nil
	}
	return s.Forwarded(resp), nil
}
