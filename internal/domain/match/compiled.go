package match

import (
	"sync/atomic"
	"time"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

// Counter tracks the remaining uses of an expectation. A negative count is unlimited.
type Counter struct {
	remaining atomic.Int64
}

// NewCounter creates a counter from t. Exactly(0) yields a spent counter.
func NewCounter(t expectation.Times) *Counter {
	c := &Counter{}
	switch {
	case t.Unlimited:
		c.remaining.Store(-1)
	case t.RemainingTimes > 0:
		c.remaining.Store(int64(t.RemainingTimes))
	}
	return c
}

// Remaining returns the remaining uses, or -1 when unlimited.
func (c *Counter) Remaining() int64 {
	return c.remaining.Load()
}

// Available reports whether at least one use is left.
func (c *Counter) Available() bool {
	return c.remaining.Load() != 0
}

// Claim consumes one use. last is true when the claim took the final use.
func (c *Counter) Claim() (ok, last bool) {
	for {
		n := c.remaining.Load()
		if n < 0 {
			return true, false
		}
		if n == 0 {
			return false, false
		}
		if c.remaining.CompareAndSwap(n, n-1) {
			return true, n == 1
		}
	}
}

// CompiledExpectation is an expectation with its request matcher compiled into
// ordered field checks. Several compiled expectations may share one Counter when
// an OpenAPI definition expands into more than one operation.
type CompiledExpectation struct {
	ID       string
	Priority int
	Seq      uint64
	Source   *expectation.Expectation
	Action   expectation.Action
	Checks   []FieldCheck
	Uses     *Counter

	deadline time.Time
	expires  bool
}

// NewCompiledExpectation binds checks and a use counter to exp. A nil counter
// is created from exp.Times.
func NewCompiledExpectation(exp *expectation.Expectation, checks []FieldCheck, uses *Counter) *CompiledExpectation {
	if uses == nil {
		uses = NewCounter(exp.Times)
	}
	ce := &CompiledExpectation{
		ID:       exp.ID,
		Priority: exp.Priority,
		Source:   exp,
		Action:   exp.Action,
		Checks:   checks,
		Uses:     uses,
	}
	ce.deadline, ce.expires = exp.TimeToLive.Deadline(exp.Created)
	return ce
}

// Expired reports whether the time-to-live has elapsed at now.
func (c *CompiledExpectation) Expired(now time.Time) bool {
	return c.expires && !now.Before(c.deadline)
}

// Eligible reports whether c may be selected at now, ignoring its matcher.
func (c *CompiledExpectation) Eligible(now time.Time) bool {
	return !c.Expired(now) && c.Uses.Available()
}
