package usecases_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/services"
	"github.com/sophialabs/expectmock/internal/infrastructure/usecases"
)

func TestUpsertExpectations_AssignsIDsAndCreated(t *testing.T) {
	e := newEngine(t)
	anon := respondWith("", 0, nil, 200)
	named := respondWith("named", 0, nil, 200)

	ids := e.register(t, anon, named)

	if len(ids) != 2 || ids[1] != "named" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if ids[0] == "" || anon.ID != ids[0] {
		t.Errorf("expected a generated id, got %q", ids[0])
	}
	if !anon.Created.Equal(e.clock.T) {
		t.Errorf("expected created %v, got %v", e.clock.T, anon.Created)
	}
}

func TestUpsertExpectations_ReplaceKeepsPosition(t *testing.T) {
	e := newEngine(t)
	rm := &expectation.RequestMatcher{Path: expectation.String("/p")}
	e.register(t, respondWith("a", 0, rm, 200), respondWith("b", 0, rm, 201))
	e.register(t, respondWith("a", 0, rm, 299))

	result := e.handle.Execute(context.Background(), &expectation.Request{Method: "GET", Path: "/p"})
	if got := status(t, result); got != 299 {
		t.Errorf("expected the replaced expectation to win, got %d", got)
	}
}

func TestUpsertExpectations_BatchIsAtomic(t *testing.T) {
	e := newEngine(t)
	bad := respondWith("bad", 0, &expectation.RequestMatcher{Path: &expectation.StringMatcher{Value: "/x"}, Body: &expectation.Body{Type: expectation.BodyRegex, Regex: "("}}, 200)

	_, err := e.upsert.Execute(context.Background(), []*expectation.Expectation{respondWith("good", 0, nil, 200), bad})

	var ce *services.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if ce.ExpectationID != "bad" {
		t.Errorf("expected the failing id, got %q", ce.ExpectationID)
	}
	if e.registry.Snapshot().Len() != 0 {
		t.Error("expected nothing registered")
	}
}

func TestUpsertExpectations_DuplicateIDs(t *testing.T) {
	e := newEngine(t)
	_, err := e.upsert.Execute(context.Background(), []*expectation.Expectation{
		respondWith("dup", 0, nil, 200),
		respondWith("dup", 0, nil, 201),
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate id error, got %v", err)
	}
}

type expandingResolver struct {
	exps []*expectation.Expectation
	err  error
}

func (r *expandingResolver) Resolve(context.Context, *expectation.OpenAPIDefinition) ([]*expectation.RequestMatcher, error) {
	return nil, errors.New("not used")
}

func (r *expandingResolver) Expand(context.Context, *expectation.OpenAPIExpectation) ([]*expectation.Expectation, error) {
	return r.exps, r.err
}

func TestOpenAPIExpectation_Execute(t *testing.T) {
	e := newEngine(t)
	resolver := &expandingResolver{exps: []*expectation.Expectation{
		respondWith("", 0, &expectation.RequestMatcher{Method: expectation.String("GET"), Path: expectation.String("/pets")}, 200),
	}}
	uc := usecases.NewOpenAPIExpectationUseCase(resolver, e.upsert)

	ids, err := uc.Execute(context.Background(), &expectation.OpenAPIExpectation{SpecURLOrPayload: "spec.yaml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected one id, got %v", ids)
	}
	if got := status(t, e.handle.Execute(context.Background(), &expectation.Request{Method: "GET", Path: "/pets"})); got != 200 {
		t.Errorf("expected 200, got %d", got)
	}

	resolver.err = errors.New("no such file")
	if _, err := uc.Execute(context.Background(), &expectation.OpenAPIExpectation{SpecURLOrPayload: "missing.yaml"}); err == nil {
		t.Error("expected the resolver error")
	}
}
