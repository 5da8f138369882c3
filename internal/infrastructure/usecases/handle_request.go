package usecases

import (
	"context"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
	"github.com/sophialabs/expectmock/internal/domain/trace"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
	"github.com/sophialabs/expectmock/internal/infrastructure/services"
)

// HandleRequestResult is the outcome of processing a mock request.
type HandleRequestResult struct {
	Matched    bool
	Outcome    services.Outcome
	TraceEntry trace.Entry
}

// HandleRequestUseCase selects the expectation for an incoming request and
// executes its action.
type HandleRequestUseCase struct {
	evaluator      *match.Evaluator
	registry       *services.Registry
	dispatcher     *services.Dispatcher
	clock          ports.Clock
	logger         ports.Logger
	traceBuf       *trace.RingBuffer
	purgeExhausted bool
}

// NewHandleRequestUseCase creates a new use case.
func NewHandleRequestUseCase(
	evaluator *match.Evaluator,
	registry *services.Registry,
	dispatcher *services.Dispatcher,
	clock ports.Clock,
	logger ports.Logger,
	traceBuf *trace.RingBuffer,
) *HandleRequestUseCase {
	return &HandleRequestUseCase{
		evaluator:  evaluator,
		registry:   registry,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
		traceBuf:   traceBuf,
	}
}

// SetPurgeExhausted makes the registry drop an expectation as soon as its last
// use is claimed. Otherwise spent expectations stay registered but ineligible.
func (uc *HandleRequestUseCase) SetPurgeExhausted(purge bool) {
	uc.purgeExhausted = purge
}

// Execute evaluates req against the current registry snapshot and runs the
// action of the winning expectation.
func (uc *HandleRequestUseCase) Execute(ctx context.Context, req *expectation.Request) HandleRequestResult {
	now := uc.clock.Now()
	evalResult := uc.evaluator.Evaluate(req, uc.registry.Snapshot().Candidates(), now)

	entry := trace.Entry{
		Timestamp:  now,
		Method:     req.Method,
		Path:       req.Path,
		Candidates: evalResult.Candidates,
	}

	if evalResult.Matched == nil {
		if c, ok := trace.Closest(evalResult.Candidates); ok {
			entry.ClosestID = c.ExpectationID
			entry.FailedField = c.FailedField
		}
		uc.logger.Debug("no match found", "method", req.Method, "path", req.Path, "closest", entry.ClosestID, "failed_field", entry.FailedField)
		uc.traceBuf.Add(entry)
		return HandleRequestResult{TraceEntry: entry}
	}

	matched := evalResult.Matched
	entry.MatchedID = matched.ID
	entry.Priority = matched.Priority
	entry.Action = matched.Action.Kind()
	entry.Exhausted = evalResult.Exhausted

	if evalResult.Exhausted && uc.purgeExhausted {
		uc.registry.RemoveExhausted(matched)
	}

	outcome := uc.dispatcher.Execute(ctx, matched, evalResult.Subject)
	entry.Outcome = outcome.Kind.String()
	if outcome.Err != nil {
		entry.Error = outcome.Err.Error()
	}

	if outcome.Response != nil {
		entry.StatusCode = outcome.Response.StatusCode
		if entry.StatusCode == 0 {
			entry.StatusCode = 200
		}
	}
	if outcome.Kind == services.OutcomeRespond && outcome.Response != nil {
		resp := outcome.Response
		if resp.ContentType == "" && !resp.Headers.Has("Content-Type", true) {
			resp.ContentType = services.InferContentType("", resp.Body)
		}
	}

	uc.logger.Debug("request matched", "expectation", matched.ID, "action", entry.Action, "outcome", entry.Outcome, "status", entry.StatusCode)
	uc.traceBuf.Add(entry)

	return HandleRequestResult{Matched: true, Outcome: outcome, TraceEntry: entry}
}
