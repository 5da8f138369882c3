package usecases_test

import (
	"context"
	"testing"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
	"github.com/sophialabs/expectmock/internal/domain/trace"
	"github.com/sophialabs/expectmock/internal/infrastructure/usecases"
	"github.com/sophialabs/expectmock/internal/testutil"
)

type countingResetter struct{ n int }

func (r *countingResetter) Reset() { r.n++ }

func newClearWith(e *engine, resetters ...usecases.Resetter) *usecases.ClearUseCase {
	return usecases.NewClearUseCase(e.registry, e.compiler, match.NewEvaluator(), e.traceBuf, &testutil.NoopLogger{}, resetters...)
}

func seed(t *testing.T, e *engine) {
	t.Helper()
	e.register(t,
		respondWith("get-a", 0, &expectation.RequestMatcher{Method: expectation.String("GET"), Path: expectation.String("/a")}, 200),
		respondWith("post-a", 0, &expectation.RequestMatcher{Method: expectation.String("POST"), Path: expectation.String("/a")}, 201),
		respondWith("get-b", 0, &expectation.RequestMatcher{
			Method:  expectation.String("GET"),
			Path:    expectation.String("/b"),
			Headers: expectation.MultiValues{expectation.Key("X-Tenant", "acme")},
		}, 200),
		respondWith("catch-all", -1, nil, 404),
	)
}

func TestClear_ByID(t *testing.T) {
	e := newEngine(t)
	seed(t, e)

	if n := e.clear.ByID("get-a", "missing"); n != 1 {
		t.Errorf("expected one removal, got %d", n)
	}
	if e.registry.Snapshot().Len() != 3 {
		t.Errorf("expected 3 left, got %d", e.registry.Snapshot().Len())
	}
}

func TestClear_Matching(t *testing.T) {
	tests := []struct {
		name    string
		matcher *expectation.RequestMatcher
		removed int
		left    []string
	}{
		{"by path", &expectation.RequestMatcher{Path: expectation.String("/a")}, 2, []string{"get-b", "catch-all"}},
		{"by method and path", &expectation.RequestMatcher{Method: expectation.String("POST"), Path: expectation.String("/a")}, 1, []string{"get-a", "get-b", "catch-all"}},
		{"by header", &expectation.RequestMatcher{Headers: expectation.MultiValues{expectation.Key("x-tenant", "acme")}}, 1, []string{"get-a", "post-a", "catch-all"}},
		{"by path regex", &expectation.RequestMatcher{Path: expectation.String("/[ab]")}, 3, []string{"catch-all"}},
		{"nil clears all", nil, 4, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(t)
			seed(t, e)

			n, err := e.clear.Matching(tc.matcher)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n != tc.removed {
				t.Errorf("expected %d removed, got %d", tc.removed, n)
			}
			left := e.registry.Snapshot().IDs()
			if len(left) != len(tc.left) {
				t.Fatalf("expected %v left, got %v", tc.left, left)
			}
			for i := range left {
				if left[i] != tc.left[i] {
					t.Errorf("expected %v left, got %v", tc.left, left)
					break
				}
			}
		})
	}
}

func TestClear_MatchingInvalidMatcher(t *testing.T) {
	e := newEngine(t)
	seed(t, e)

	_, err := e.clear.Matching(&expectation.RequestMatcher{Body: &expectation.Body{Type: expectation.BodyRegex, Regex: "("}})
	if err == nil {
		t.Error("expected a compile error")
	}
	if e.registry.Snapshot().Len() != 4 {
		t.Error("expected nothing removed")
	}
}

func TestClear_Reset(t *testing.T) {
	e := newEngine(t)
	seed(t, e)
	e.handle.Execute(context.Background(), &expectation.Request{Method: "GET", Path: "/a"})

	resetter := &countingResetter{}
	e.clear = newClearWith(e, resetter)
	e.clear.Reset()

	if e.registry.Snapshot().Len() != 0 {
		t.Error("expected an empty registry")
	}
	if e.traceBuf.Count() != 0 {
		t.Error("expected an empty trace")
	}
	if resetter.n != 1 {
		t.Errorf("expected resetter called once, got %d", resetter.n)
	}
}

func TestRetrieve_ActiveExpectations(t *testing.T) {
	e := newEngine(t)
	seed(t, e)
	once := respondWith("once", 0, nil, 200)
	once.Times = expectation.Exactly(1)
	e.register(t, once)

	e.handle.Execute(context.Background(), &expectation.Request{Method: "DELETE", Path: "/zzz"})

	all, err := e.retrieve.ActiveExpectations(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 active (once is spent), got %d", len(all))
	}
	if all[0].Remaining != -1 {
		t.Errorf("expected unlimited remaining, got %d", all[0].Remaining)
	}

	filtered, err := e.retrieve.ActiveExpectations(&expectation.RequestMatcher{Path: expectation.String("/b")})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Expectation.ID != "get-b" {
		t.Errorf("unexpected filtered result: %+v", filtered)
	}

	if entries := e.retrieve.Trace(10, trace.Filter{}); len(entries) != 1 || entries[0].MatchedID != "once" {
		t.Errorf("unexpected trace: %+v", entries)
	}

	st := e.retrieve.Status()
	if st.Expectations != 5 || st.Active != 4 || st.TraceEntries != 1 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestRetrieve_ByID(t *testing.T) {
	e := newEngine(t)
	seed(t, e)
	twice := respondWith("twice", 0, &expectation.RequestMatcher{Path: expectation.String("/twice")}, 200)
	twice.Times = expectation.Exactly(2)
	e.register(t, twice)

	e.handle.Execute(context.Background(), &expectation.Request{Method: "GET", Path: "/twice"})

	got := e.retrieve.ByID("twice", "missing", "get-a")
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Expectation.ID != "twice" || got[0].Remaining != 1 {
		t.Errorf("unexpected first result: id=%s remaining=%d", got[0].Expectation.ID, got[0].Remaining)
	}
	if got[1].Expectation.ID != "get-a" || got[1].Remaining != -1 {
		t.Errorf("unexpected second result: id=%s remaining=%d", got[1].Expectation.ID, got[1].Remaining)
	}
}
