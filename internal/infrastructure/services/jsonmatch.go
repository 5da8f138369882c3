package services

import (
	"encoding/json"
	"math/big"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

// jsonMatches compares an actual JSON value with the expected one.
// STRICT requires deep equality with ordered arrays. ONLY_MATCHING_FIELDS checks
// only the expected object fields and lets each expected array element match a
// distinct actual element in any order.
func jsonMatches(expected, actual any, mt expectation.JSONMatchType) bool {
	strict := mt == expectation.MatchStrict

	switch e := expected.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		if strict && len(a) != len(e) {
			return false
		}
		for k, ev := range e {
			av, ok := a[k]
			if !ok || !jsonMatches(ev, av, mt) {
				return false
			}
		}
		return true

	case []any:
		a, ok := actual.([]any)
		if !ok {
			return false
		}
		if strict {
			if len(a) != len(e) {
				return false
			}
			for i := range e {
				if !jsonMatches(e[i], a[i], mt) {
					return false
				}
			}
			return true
		}
		return unorderedSubset(e, a, mt)

	case json.Number:
		a, ok := actual.(json.Number)
		return ok && numbersEqual(e, a)

	default:
		// strings, booleans and null
		return expected == actual
	}
}

// unorderedSubset reports whether every expected element can be paired with a
// distinct actual element. It runs augmenting-path bipartite matching.
func unorderedSubset(expected, actual []any, mt expectation.JSONMatchType) bool {
	if len(expected) > len(actual) {
		return false
	}
	compatible := make([][]bool, len(expected))
	for i, e := range expected {
		compatible[i] = make([]bool, len(actual))
		for j, a := range actual {
			compatible[i][j] = jsonMatches(e, a, mt)
		}
	}

	owner := make([]int, len(actual))
	for j := range owner {
		owner[j] = -1
	}
	var assign func(i int, seen []bool) bool
	assign = func(i int, seen []bool) bool {
		for j := range actual {
			if !compatible[i][j] || seen[j] {
				continue
			}
			seen[j] = true
			if owner[j] < 0 || assign(owner[j], seen) {
				owner[j] = i
				return true
			}
		}
		return false
	}
	for i := range expected {
		if !assign(i, make([]bool, len(actual))) {
			return false
		}
	}
	return true
}

func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	ra, ok := new(big.Rat).SetString(string(a))
	if !ok {
		return false
	}
	rb, ok := new(big.Rat).SetString(string(b))
	if !ok {
		return false
	}
	return ra.Cmp(rb) == 0
}

// jsonBodyPredicate compiles an expected JSON document into a body predicate.
func jsonBodyPredicate(doc string, mt expectation.JSONMatchType) (func([]byte) bool, error) {
	expected, err := decodeJSONValue([]byte(doc))
	if err != nil {
		return nil, err
	}
	return func(body []byte) bool {
		actual, err := decodeJSONValue(body)
		if err != nil {
			return false
		}
		return jsonMatches(expected, actual, mt)
	}, nil
}
