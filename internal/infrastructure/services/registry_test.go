package services_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
	"github.com/sophialabs/expectmock/internal/infrastructure/services"
)

func registered(id string, priority int, times expectation.Times) []*match.CompiledExpectation {
	exp := &expectation.Expectation{
		ID:         id,
		Priority:   priority,
		Action:     respond(200),
		Times:      times,
		TimeToLive: expectation.UnlimitedTTL(),
	}
	return []*match.CompiledExpectation{match.NewCompiledExpectation(exp, nil, nil)}
}

func ids(ces []*match.CompiledExpectation) []string {
	out := make([]string, 0, len(ces))
	for _, ce := range ces {
		out = append(out, ce.ID)
	}
	return out
}

func TestRegistry_SelectionOrder(t *testing.T) {
	r := services.NewRegistry()
	r.Upsert(registered("low", 0, expectation.UnlimitedTimes()))
	r.Upsert(registered("high", 10, expectation.UnlimitedTimes()))
	r.Upsert(registered("low-later", 0, expectation.UnlimitedTimes()))
	r.Upsert(registered("negative", -5, expectation.UnlimitedTimes()))

	assert.Equal(t, []string{"high", "low", "low-later", "negative"}, ids(r.Snapshot().Candidates()))
	assert.Equal(t, 4, r.Snapshot().Len())
}

func TestRegistry_UpsertKeepsPosition(t *testing.T) {
	r := services.NewRegistry()
	r.Upsert(registered("a", 0, expectation.UnlimitedTimes()))
	r.Upsert(registered("b", 0, expectation.UnlimitedTimes()))

	replacement := registered("a", 0, expectation.Exactly(1))
	r.Upsert(replacement)

	candidates := r.Snapshot().Candidates()
	assert.Equal(t, []string{"a", "b"}, ids(candidates))
	assert.Same(t, replacement[0], candidates[0])
	assert.Len(t, r.Snapshot().Lookup("a"), 1)
}

func TestRegistry_SnapshotIsImmutable(t *testing.T) {
	r := services.NewRegistry()
	r.Upsert(registered("a", 0, expectation.UnlimitedTimes()))

	before := r.Snapshot()
	r.Upsert(registered("b", 0, expectation.UnlimitedTimes()))
	r.Remove("a")

	assert.Equal(t, []string{"a"}, ids(before.Candidates()))
	assert.Equal(t, []string{"b"}, ids(r.Snapshot().Candidates()))
}

func TestRegistry_Remove(t *testing.T) {
	r := services.NewRegistry()
	r.Upsert(registered("a", 0, expectation.UnlimitedTimes()))
	r.Upsert(registered("b", 0, expectation.UnlimitedTimes()))
	r.Upsert(registered("c", 0, expectation.UnlimitedTimes()))

	assert.Equal(t, 2, r.Remove("a", "c", "missing"))
	assert.Equal(t, []string{"b"}, r.Snapshot().IDs())

	assert.Equal(t, 0, r.RemoveIf(func(ce *match.CompiledExpectation) bool { return ce.Priority > 0 }))

	r.Clear()
	assert.Equal(t, 0, r.Snapshot().Len())
}

func TestRegistry_RemoveExhausted(t *testing.T) {
	r := services.NewRegistry()
	first := registered("a", 0, expectation.Exactly(1))
	r.Upsert(first)

	replacement := registered("a", 0, expectation.Exactly(1))
	r.Upsert(replacement)
	assert.False(t, r.RemoveExhausted(first[0]), "a replaced expectation is left alone")
	assert.Equal(t, 1, r.Snapshot().Len())

	assert.True(t, r.RemoveExhausted(replacement[0]))
	assert.Equal(t, 0, r.Snapshot().Len())
	assert.False(t, r.RemoveExhausted(replacement[0]))
}

func TestRegistry_Active(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	r := services.NewRegistry()
	r.Upsert(registered("live", 0, expectation.UnlimitedTimes()))
	r.Upsert(registered("spent", 0, expectation.Exactly(0)))

	expiring := &expectation.Expectation{
		ID:         "expired",
		Action:     respond(200),
		Times:      expectation.UnlimitedTimes(),
		TimeToLive: expectation.TimeToLive{TimeUnit: expectation.Seconds, TimeToLive: 10},
		Created:    now.Add(-time.Minute),
	}
	r.Upsert([]*match.CompiledExpectation{match.NewCompiledExpectation(expiring, nil, nil)})

	assert.Equal(t, []string{"live"}, ids(r.Active(now)))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := services.NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Upsert(registered(string(rune('a'+i)), j%3, expectation.UnlimitedTimes()))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				idx := r.Snapshot()
				assert.LessOrEqual(t, len(idx.Candidates()), 8)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, r.Snapshot().Len())
}
