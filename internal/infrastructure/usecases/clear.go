package usecases

import (
	"net/url"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
	"github.com/sophialabs/expectmock/internal/domain/trace"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
	"github.com/sophialabs/expectmock/internal/infrastructure/services"
)

// Resetter is state that is wiped on reset, such as rate limiter buckets.
type Resetter interface {
	Reset()
}

// ClearUseCase removes expectations by id or by request matcher and resets
// the engine state.
type ClearUseCase struct {
	registry  *services.Registry
	compiler  *services.Compiler
	evaluator *match.Evaluator
	traceBuf  *trace.RingBuffer
	resetters []Resetter
	logger    ports.Logger
}

// NewClearUseCase creates a new use case. resetters are wiped by Reset.
func NewClearUseCase(
	registry *services.Registry,
	compiler *services.Compiler,
	evaluator *match.Evaluator,
	traceBuf *trace.RingBuffer,
	logger ports.Logger,
	resetters ...Resetter,
) *ClearUseCase {
	return &ClearUseCase{
		registry:  registry,
		compiler:  compiler,
		evaluator: evaluator,
		traceBuf:  traceBuf,
		resetters: resetters,
		logger:    logger,
	}
}

// ByID removes the expectations with the given ids.
func (uc *ClearUseCase) ByID(ids ...string) int {
	n := uc.registry.Remove(ids...)
	uc.logger.Info("expectations cleared", "ids", ids, "removed", n)
	return n
}

// Matching removes every expectation whose request matcher, read as an example
// request, satisfies rm. A nil rm removes everything.
func (uc *ClearUseCase) Matching(rm *expectation.RequestMatcher) (int, error) {
	filter, err := newMatcherFilter(uc.compiler, uc.evaluator, rm)
	if err != nil {
		return 0, err
	}
	n := uc.registry.RemoveIf(filter)
	uc.logger.Info("expectations cleared by matcher", "removed", n)
	return n, nil
}

// Reset removes all expectations, the match trace and every resetter's state.
func (uc *ClearUseCase) Reset() {
	uc.registry.Clear()
	uc.traceBuf.Clear()
	for _, r := range uc.resetters {
		r.Reset()
	}
	uc.logger.Info("engine reset")
}

// newMatcherFilter compiles rm into a predicate over registered expectations.
func newMatcherFilter(compiler *services.Compiler, evaluator *match.Evaluator, rm *expectation.RequestMatcher) (func(*match.CompiledExpectation) bool, error) {
	if rm == nil {
		return func(*match.CompiledExpectation) bool { return true }, nil
	}
	checks, err := compiler.CompileMatcher(rm)
	if err != nil {
		return nil, err
	}
	probe := match.NewCompiledExpectation(&expectation.Expectation{
		ID:         "filter",
		Times:      expectation.UnlimitedTimes(),
		TimeToLive: expectation.UnlimitedTTL(),
	}, checks, nil)

	return func(ce *match.CompiledExpectation) bool {
		return evaluator.Matches(exampleRequest(ce.Source.Request), probe)
	}, nil
}

// exampleRequest renders the literal parts of a request matcher as a request.
// Negated values contribute nothing.
func exampleRequest(def expectation.RequestDefinition) *expectation.Request {
	req := &expectation.Request{}
	rm, ok := def.(*expectation.RequestMatcher)
	if !ok || rm == nil {
		return req
	}

	if rm.Method != nil && !rm.Method.Not {
		req.Method = rm.Method.Value
	}
	if rm.Path != nil && !rm.Path.Not {
		req.Path = rm.Path.Value
	}
	req.PathParameters = exampleFields(rm.PathParameters)
	req.QueryStringParameters = exampleFields(rm.QueryStringParameters)
	req.Headers = exampleFields(rm.Headers)
	req.Cookies = exampleFields(rm.Cookies)
	req.Secure = rm.Secure
	req.KeepAlive = rm.KeepAlive
	if rm.SocketAddress != nil {
		sa := *rm.SocketAddress
		req.SocketAddress = &sa
	}
	if rm.Body != nil && !rm.Body.Not {
		req.Body = exampleBody(rm.Body)
	}
	return req
}

func exampleFields(mv expectation.MultiValues) expectation.Fields {
	var out expectation.Fields
	for _, km := range mv {
		if km.Name.Not {
			continue
		}
		f := expectation.Field{Name: km.Name.Value}
		for _, v := range km.Values {
			if !v.Not && v.Schema == nil {
				f.Values = append(f.Values, v.Value)
			}
		}
		out = append(out, f)
	}
	return out
}

func exampleBody(b *expectation.Body) []byte {
	switch b.Type {
	case expectation.BodyBinary:
		return b.Bytes
	case expectation.BodyJSON:
		return []byte(b.JSON)
	case expectation.BodyString:
		return []byte(b.String)
	case expectation.BodyXML:
		return []byte(b.XML)
	case expectation.BodyParameters:
		form := url.Values{}
		for _, f := range exampleFields(b.Parameters) {
			form[f.Name] = append(form[f.Name], f.Values...)
		}
		return []byte(form.Encode())
	}
	return nil
}
