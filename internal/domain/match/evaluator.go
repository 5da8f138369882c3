package match

import (
	"fmt"
	"time"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/trace"
)

// EvalResult holds the outcome of evaluating candidates against a request.
type EvalResult struct {
	Matched *CompiledExpectation
	// Subject carries the path parameters extracted for the matched candidate.
	Subject *Subject
	// Exhausted is true when selecting Matched consumed its last use.
	Exhausted  bool
	Candidates []trace.CandidateResult
}

// NotEvaluated is the trace reason of candidates ranked below the winner.
const NotEvaluated = "not evaluated (lower precedence)"

// Evaluator evaluates incoming requests against compiled expectations.
type Evaluator struct{}

// NewEvaluator creates a new Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate selects the first eligible candidate matching req and claims one of
// its uses. Candidates are assumed to be pre-sorted by priority descending, then
// registration order (as done by services.Registry). A candidate whose last use
// is taken concurrently is skipped in favour of the next one. Checks stop at the
// winner; the candidates after it are traced as not evaluated.
func (e *Evaluator) Evaluate(req *expectation.Request, candidates []*CompiledExpectation, now time.Time) EvalResult {
	result := EvalResult{
		Candidates: make([]trace.CandidateResult, 0, len(candidates)),
	}

	for _, ce := range candidates {
		cr := trace.CandidateResult{ExpectationID: ce.ID, Priority: ce.Priority}

		switch {
		case result.Matched != nil:
			cr.FailedReason = NotEvaluated
		case ce.Expired(now):
			cr.FailedReason = "expired"
		case !ce.Uses.Available():
			cr.FailedReason = "no remaining uses"
		default:
			subject := NewSubject(req)
			cr = e.evaluate(subject, ce)
			if !cr.Matched {
				break
			}
			ok, last := ce.Uses.Claim()
			if !ok {
				cr.Matched = false
				cr.FailedReason = "remaining uses claimed concurrently"
				break
			}
			result.Matched = ce
			result.Subject = subject
			result.Exhausted = last
		}

		result.Candidates = append(result.Candidates, cr)
	}

	return result
}

// Matches reports whether req satisfies the checks of ce, without consulting or
// consuming its lifetime.
func (e *Evaluator) Matches(req *expectation.Request, ce *CompiledExpectation) bool {
	return e.evaluate(NewSubject(req), ce).Matched
}

// evaluate runs the field checks of ce in order. A panicking check counts as a
// failure of that field.
func (e *Evaluator) evaluate(subject *Subject, ce *CompiledExpectation) (cr trace.CandidateResult) {
	cr = trace.CandidateResult{ExpectationID: ce.ID, Priority: ce.Priority, Matched: true}

	var field string
	defer func() {
		if r := recover(); r != nil {
			cr.Matched = false
			cr.FailedField = field
			cr.FailedReason = fmt.Sprintf("matcher panic: %v", r)
		}
	}()

	for _, fc := range ce.Checks {
		field = fc.Field
		if !fc.Check(subject) {
			cr.Matched = false
			cr.FailedField = fc.Field
			cr.FailedReason = fc.Field + " did not match"
			return cr
		}
	}
	return cr
}
