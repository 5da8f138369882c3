package services

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sophialabs/expectmock/internal/domain/match"
)

type registryEntry struct {
	id       string
	seq      uint64
	compiled []*match.CompiledExpectation
}

// Registry holds the registered expectations. Writers are serialized and
// publish a new sorted snapshot; readers take one snapshot per request.
type Registry struct {
	mu      sync.Mutex
	entries []registryEntry
	nextSeq uint64

	snapshot atomic.Pointer[ExpectationIndex]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snapshot.Store(NewExpectationIndex())
	return r
}

// Snapshot returns the current immutable index.
func (r *Registry) Snapshot() *ExpectationIndex {
	return r.snapshot.Load()
}

// Upsert registers the compiled forms of one expectation. An existing
// expectation with the same id is replaced and keeps its registration position.
func (r *Registry) Upsert(compiled []*match.CompiledExpectation) {
	if len(compiled) == 0 {
		return
	}
	id := compiled[0].ID

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(id)
	if i < 0 {
		r.nextSeq++
		r.entries = append(r.entries, registryEntry{id: id, seq: r.nextSeq})
		i = len(r.entries) - 1
	}
	for _, ce := range compiled {
		ce.Seq = r.entries[i].seq
	}
	r.entries[i].compiled = compiled
	r.publish()
}

// Remove deletes the expectations with the given ids and returns how many were removed.
func (r *Registry) Remove(ids ...string) int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	return r.RemoveIf(func(ce *match.CompiledExpectation) bool { return drop[ce.ID] })
}

// RemoveIf deletes every expectation for which any compiled form satisfies pred.
func (r *Registry) RemoveIf(pred func(*match.CompiledExpectation) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.entries)
	r.entries = slices.DeleteFunc(r.entries, func(e registryEntry) bool {
		return slices.ContainsFunc(e.compiled, pred)
	})
	removed := before - len(r.entries)
	if removed > 0 {
		r.publish()
	}
	return removed
}

// RemoveExhausted deletes ce's expectation if it has not been replaced since
// ce was selected.
func (r *Registry) RemoveExhausted(ce *match.CompiledExpectation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.find(ce.ID)
	if i < 0 || len(r.entries[i].compiled) == 0 || r.entries[i].compiled[0].Uses != ce.Uses {
		return false
	}
	r.entries = slices.Delete(r.entries, i, i+1)
	r.publish()
	return true
}

// Clear removes every expectation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
	r.publish()
}

// Active returns one compiled form per expectation still eligible at now, in
// selection order.
func (r *Registry) Active(now time.Time) []*match.CompiledExpectation {
	idx := r.Snapshot()
	out := make([]*match.CompiledExpectation, 0, idx.Len())
	for _, id := range idx.IDs() {
		compiled := idx.Lookup(id)
		if len(compiled) > 0 && compiled[0].Eligible(now) {
			out = append(out, compiled[0])
		}
	}
	return out
}

func (r *Registry) find(id string) int {
	return slices.IndexFunc(r.entries, func(e registryEntry) bool { return e.id == id })
}

// publish must be called with mu held.
func (r *Registry) publish() {
	idx := NewExpectationIndex()
	for _, e := range r.entries {
		for _, ce := range e.compiled {
			idx.Add(ce)
		}
	}
	idx.Build()
	r.snapshot.Store(idx)
}
