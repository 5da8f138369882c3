package services

import (
	"sort"

	"github.com/sophialabs/expectmock/internal/domain/match"
)

// ExpectationIndex is a snapshot of compiled expectations in selection order.
// It is read-only once built.
type ExpectationIndex struct {
	ordered []*match.CompiledExpectation
	byID    map[string][]*match.CompiledExpectation
	ids     []string
}

// NewExpectationIndex creates an empty index.
func NewExpectationIndex() *ExpectationIndex {
	return &ExpectationIndex{
		byID: make(map[string][]*match.CompiledExpectation),
	}
}

// Add inserts a compiled expectation into the index.
func (idx *ExpectationIndex) Add(ce *match.CompiledExpectation) {
	idx.ordered = append(idx.ordered, ce)
	if _, ok := idx.byID[ce.ID]; !ok {
		idx.ids = append(idx.ids, ce.ID)
	}
	idx.byID[ce.ID] = append(idx.byID[ce.ID], ce)
}

// Build sorts entries by priority desc then registration sequence asc.
func (idx *ExpectationIndex) Build() {
	sort.SliceStable(idx.ordered, func(i, j int) bool {
		a, b := idx.ordered[i], idx.ordered[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Seq < b.Seq
	})

	idx.ids = idx.ids[:0]
	seen := make(map[string]bool, len(idx.byID))
	for _, ce := range idx.ordered {
		if !seen[ce.ID] {
			seen[ce.ID] = true
			idx.ids = append(idx.ids, ce.ID)
		}
	}
}

// Candidates returns every compiled expectation in selection order.
func (idx *ExpectationIndex) Candidates() []*match.CompiledExpectation {
	return idx.ordered
}

// Lookup returns the compiled expectations registered under id.
func (idx *ExpectationIndex) Lookup(id string) []*match.CompiledExpectation {
	return idx.byID[id]
}

// IDs returns the distinct expectation ids in selection order.
func (idx *ExpectationIndex) IDs() []string {
	return idx.ids
}

// Len returns the number of distinct expectations.
func (idx *ExpectationIndex) Len() int {
	return len(idx.byID)
}
