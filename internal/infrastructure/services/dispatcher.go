package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
	"github.com/sophialabs/expectmock/internal/infrastructure/codec"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
)

var (
	// ErrDelayTooLong indicates an action delay above the configured maximum.
	ErrDelayTooLong = errors.New("delay exceeds maximum")
	// ErrForwardRateLimited indicates the upstream host exceeded its forward budget.
	ErrForwardRateLimited = errors.New("forward rate limit exceeded")
	// ErrUnsupportedAction indicates no collaborator is wired for an action.
	ErrUnsupportedAction = errors.New("action not supported")
)

// OutcomeKind tags how the front-end completes an exchange.
type OutcomeKind int

const (
	// OutcomeRespond writes Response.
	OutcomeRespond OutcomeKind = iota
	// OutcomeDrop closes the connection without writing anything.
	OutcomeDrop
	// OutcomeRaw writes Raw verbatim onto the connection.
	OutcomeRaw
	// OutcomeFailure writes a bodiless Response carrying the failure status.
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRespond:
		return "respond"
	case OutcomeDrop:
		return "drop"
	case OutcomeRaw:
		return "raw"
	case OutcomeFailure:
		return "failure"
	}
	return "unknown"
}

// Outcome is the result of executing an action.
type Outcome struct {
	Kind     OutcomeKind
	Response *expectation.Response
	Raw      []byte
	// Close drops the connection after Raw is written.
	Close bool
	Err   error
}

// DispatchError reports an action that failed after its expectation was selected.
type DispatchError struct {
	ExpectationID string
	Action        string
	StatusCode    int
	Err           error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("expectation %q: %s failed: %v", e.ExpectationID, e.Action, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// DispatcherConfig bounds action execution.
type DispatcherConfig struct {
	ActionTimeout    time.Duration
	MaxDelay         time.Duration
	ForwardRateLimit float64
	ForwardBurst     int
}

// DispatcherDeps are the collaborators actions delegate to. Nil collaborators
// make the corresponding actions fail.
type DispatcherDeps struct {
	Clock           ports.Clock
	Logger          ports.Logger
	Forwarder       ports.Forwarder
	RateLimiter     ports.RateLimiter
	Templates       ports.TemplateRenderer
	ClassCallbacks  ports.ClassCallbacks
	ObjectCallbacks ports.ObjectCallbacks
	Modifier        *Modifier
}

// Dispatcher executes the action of a selected expectation.
type Dispatcher struct {
	deps DispatcherDeps
	cfg  DispatcherConfig
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(deps DispatcherDeps, cfg DispatcherConfig) *Dispatcher {
	if deps.Modifier == nil {
		deps.Modifier = NewModifier(nil)
	}
	return &Dispatcher{deps: deps, cfg: cfg}
}

// Execute applies the action delay and runs the action of ce for the request in
// subject. It never panics on collaborator failures; they become Failure outcomes.
func (d *Dispatcher) Execute(ctx context.Context, ce *match.CompiledExpectation, subject *match.Subject) Outcome {
	action := ce.Action
	req := subject.Request.Clone()
	req.PathParameters = subject.PathParams.Clone()

	fail := func(status int, err error) Outcome {
		derr := &DispatchError{ExpectationID: ce.ID, Action: action.Kind(), StatusCode: status, Err: err}
		d.deps.Logger.Warn("action failed", "expectation", ce.ID, "action", action.Kind(), "status", status, "error", err)
		return Outcome{Kind: OutcomeFailure, Response: &expectation.Response{StatusCode: status}, Err: derr}
	}

	if delay := action.ActionDelay().Duration(); delay > 0 {
		if d.cfg.MaxDelay > 0 && delay > d.cfg.MaxDelay {
			return fail(http.StatusGatewayTimeout, fmt.Errorf("%w: %s > %s", ErrDelayTooLong, delay, d.cfg.MaxDelay))
		}
		if err := d.deps.Clock.SleepContext(ctx, delay); err != nil {
			return fail(http.StatusGatewayTimeout, fmt.Errorf("delay interrupted: %w", err))
		}
	}

	switch act := action.(type) {
	case *expectation.ResponseAction:
		return Outcome{Kind: OutcomeRespond, Response: act.Response.Clone()}

	case *expectation.TemplateAction:
		return d.template(ctx, act, subject.Request, req, fail)

	case *expectation.ClassCallbackAction:
		return d.classCallback(ctx, act, subject.Request, req, fail)

	case *expectation.ObjectCallbackAction:
		return d.objectCallback(ctx, act, subject.Request, req, fail)

	case *expectation.ForwardAction:
		out := req.Clone()
		out.SocketAddress = &expectation.SocketAddress{Host: act.Host, Port: act.Port, Scheme: act.Scheme}
		resp, err := d.forward(ctx, out)
		if err != nil {
			return fail(forwardStatus(err), err)
		}
		return Outcome{Kind: OutcomeRespond, Response: resp}

	case *expectation.OverrideForwardAction:
		out := OverrideRequest(req, act.RequestOverride)
		out = d.deps.Modifier.ModifyRequest(act.RequestModifier, out)
		out = Retarget(subject.Request, out)
		resp, err := d.forward(ctx, out)
		if err != nil {
			return fail(forwardStatus(err), err)
		}
		resp = OverrideResponse(resp, act.ResponseOverride)
		resp = d.deps.Modifier.ModifyResponse(act.ResponseModifier, resp)
		return Outcome{Kind: OutcomeRespond, Response: resp}

	case *expectation.ErrorAction:
		if len(act.ResponseBytes) > 0 {
			return Outcome{Kind: OutcomeRaw, Raw: act.ResponseBytes, Close: act.DropConnection}
		}
		return Outcome{Kind: OutcomeDrop}
	}

	return fail(http.StatusInternalServerError, fmt.Errorf("%w: %T", ErrUnsupportedAction, action))
}

type failFunc func(status int, err error) Outcome

func (d *Dispatcher) template(ctx context.Context, act *expectation.TemplateAction, origin, req *expectation.Request, fail failFunc) Outcome {
	if d.deps.Templates == nil {
		return fail(http.StatusInternalServerError, ErrUnsupportedAction)
	}
	tmpl, err := d.deps.Templates.Compile(act.Engine, act.Template)
	if err != nil {
		return fail(http.StatusInternalServerError, fmt.Errorf("failed to compile template: %w", err))
	}
	rendered, err := tmpl.Render(ctx, req)
	if err != nil {
		return fail(http.StatusInternalServerError, fmt.Errorf("failed to render template: %w", err))
	}

	if act.Target == expectation.TargetForward {
		out, err := codec.DecodeRequest(rendered)
		if err != nil {
			return fail(http.StatusInternalServerError, fmt.Errorf("template produced an invalid request: %w", err))
		}
		return d.respondForwarded(ctx, origin, out, fail)
	}

	resp, err := codec.DecodeResponse(rendered)
	if err != nil {
		return fail(http.StatusInternalServerError, fmt.Errorf("template produced an invalid response: %w", err))
	}
	return Outcome{Kind: OutcomeRespond, Response: resp}
}

func (d *Dispatcher) classCallback(ctx context.Context, act *expectation.ClassCallbackAction, origin, req *expectation.Request, fail failFunc) Outcome {
	if d.deps.ClassCallbacks == nil {
		return fail(http.StatusInternalServerError, ErrUnsupportedAction)
	}

	cctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if act.Target == expectation.TargetForward {
		cb, err := d.deps.ClassCallbacks.ForwardCallback(act.CallbackClass)
		if err != nil {
			return fail(http.StatusInternalServerError, err)
		}
		out, err := cb(cctx, req)
		if err != nil {
			return fail(callbackStatus(err), fmt.Errorf("callback %q: %w", act.CallbackClass, err))
		}
		if out == nil {
			return fail(http.StatusInternalServerError, fmt.Errorf("callback %q returned no request", act.CallbackClass))
		}
		return d.respondForwarded(ctx, origin, out, fail)
	}

	cb, err := d.deps.ClassCallbacks.ResponseCallback(act.CallbackClass)
	if err != nil {
		return fail(http.StatusInternalServerError, err)
	}
	resp, err := cb(cctx, req)
	if err != nil {
		return fail(callbackStatus(err), fmt.Errorf("callback %q: %w", act.CallbackClass, err))
	}
	if resp == nil {
		return fail(http.StatusInternalServerError, fmt.Errorf("callback %q returned no response", act.CallbackClass))
	}
	return Outcome{Kind: OutcomeRespond, Response: resp}
}

func (d *Dispatcher) objectCallback(ctx context.Context, act *expectation.ObjectCallbackAction, origin, req *expectation.Request, fail failFunc) Outcome {
	if d.deps.ObjectCallbacks == nil {
		return fail(http.StatusInternalServerError, ErrUnsupportedAction)
	}

	if act.Target != expectation.TargetForward {
		cctx, cancel := d.withTimeout(ctx)
		defer cancel()

		resp, err := d.deps.ObjectCallbacks.RequestToResponse(cctx, act.ClientID, req)
		if err != nil {
			return fail(callbackStatus(err), err)
		}
		return Outcome{Kind: OutcomeRespond, Response: resp}
	}

	cctx, cancel := d.withTimeout(ctx)
	out, err := d.deps.ObjectCallbacks.RequestToForward(cctx, act.ClientID, req)
	cancel()
	if err != nil {
		return fail(callbackStatus(err), err)
	}
	out = Retarget(origin, out)

	resp, err := d.forward(ctx, out)
	if err != nil {
		return fail(forwardStatus(err), err)
	}
	if !act.ResponseCallback {
		return Outcome{Kind: OutcomeRespond, Response: resp}
	}

	cctx, cancel = d.withTimeout(ctx)
	defer cancel()
	modified, err := d.deps.ObjectCallbacks.ForwardedResponse(cctx, act.ClientID, out, resp)
	if err != nil {
		return fail(callbackStatus(err), err)
	}
	return Outcome{Kind: OutcomeRespond, Response: modified}
}

func (d *Dispatcher) respondForwarded(ctx context.Context, origin, req *expectation.Request, fail failFunc) Outcome {
	resp, err := d.forward(ctx, Retarget(origin, req))
	if err != nil {
		return fail(forwardStatus(err), err)
	}
	return Outcome{Kind: OutcomeRespond, Response: resp}
}

// forward sends req upstream, honouring the per-host rate limit and the action timeout.
func (d *Dispatcher) forward(ctx context.Context, req *expectation.Request) (*expectation.Response, error) {
	if d.deps.Forwarder == nil {
		return nil, ErrUnsupportedAction
	}

	if d.cfg.ForwardRateLimit > 0 && d.deps.RateLimiter != nil {
		key := "forward:" + upstreamHost(req)
		if !d.deps.RateLimiter.Allow(ctx, key, d.cfg.ForwardRateLimit, d.cfg.ForwardBurst) {
			return nil, fmt.Errorf("%w for %s", ErrForwardRateLimited, upstreamHost(req))
		}
	}

	fctx, cancel := d.withTimeout(ctx)
	defer cancel()

	resp, err := d.deps.Forwarder.Forward(fctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to forward request: %w", err)
	}
	return resp, nil
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.ActionTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.cfg.ActionTimeout)
}

func upstreamHost(req *expectation.Request) string {
	if req.SocketAddress != nil && req.SocketAddress.Host != "" {
		return req.SocketAddress.Host
	}
	return req.Headers.First("Host", true)
}

func forwardStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrForwardRateLimited):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func callbackStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
