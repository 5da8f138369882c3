package usecases

import (
	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
	"github.com/sophialabs/expectmock/internal/domain/trace"
	"github.com/sophialabs/expectmock/internal/infrastructure/codec"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
	"github.com/sophialabs/expectmock/internal/infrastructure/services"
)

// RetrieveUseCase reads the active expectations and the match trace.
type RetrieveUseCase struct {
	registry  *services.Registry
	compiler  *services.Compiler
	evaluator *match.Evaluator
	traceBuf  *trace.RingBuffer
	clock     ports.Clock
}

// NewRetrieveUseCase creates a new use case.
func NewRetrieveUseCase(
	registry *services.Registry,
	compiler *services.Compiler,
	evaluator *match.Evaluator,
	traceBuf *trace.RingBuffer,
	clock ports.Clock,
) *RetrieveUseCase {
	return &RetrieveUseCase{
		registry:  registry,
		compiler:  compiler,
		evaluator: evaluator,
		traceBuf:  traceBuf,
		clock:     clock,
	}
}

// ActiveExpectations returns the eligible expectations in selection order,
// optionally narrowed to those satisfying rm.
func (uc *RetrieveUseCase) ActiveExpectations(rm *expectation.RequestMatcher) ([]codec.Registered, error) {
	filter, err := newMatcherFilter(uc.compiler, uc.evaluator, rm)
	if err != nil {
		return nil, err
	}

	active := uc.registry.Active(uc.clock.Now())
	out := make([]codec.Registered, 0, len(active))
	for _, ce := range active {
		if filter(ce) {
			out = append(out, codec.Registered{Expectation: ce.Source, Remaining: ce.Uses.Remaining()})
		}
	}
	return out, nil
}

// Trace returns the last n trace entries passing f, oldest first.
func (uc *RetrieveUseCase) Trace(n int, f trace.Filter) []trace.Entry {
	return uc.traceBuf.Select(n, f)
}

// Status summarizes the engine state.
type Status struct {
	Expectations int `json:"expectations"`
	Active       int `json:"active"`
	TraceEntries int `json:"traceEntries"`
}

// Status reports registry and trace sizes.
func (uc *RetrieveUseCase) Status() Status {
	return Status{
		Expectations: uc.registry.Snapshot().Len(),
		Active:       len(uc.registry.Active(uc.clock.Now())),
		TraceEntries: uc.traceBuf.Count(),
	}
}

// ByID returns the registered expectations with the given ids, skipping unknown ones.
func (uc *RetrieveUseCase) ByID(ids ...string) []codec.Registered {
	idx := uc.registry.Snapshot()
	out := make([]codec.Registered, 0, len(ids))
	for _, id := range ids {
		if ces := idx.Lookup(id); len(ces) > 0 {
			out = append(out, codec.Registered{Expectation: ces[0].Source, Remaining: ces[0].Uses.Remaining()})
		}
	}
	return out
}
