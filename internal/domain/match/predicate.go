package match

import (
	"regexp"
	"strings"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

// Predicate tests a string value and returns true if it matches.
type Predicate func(string) bool

// Equal matches s exactly, or case-insensitively when fold is set.
func Equal(expected string, fold bool) Predicate {
	if fold {
		return func(s string) bool { return strings.EqualFold(s, expected) }
	}
	return func(s string) bool { return s == expected }
}

// Pattern matches when re matches s. A nil re never matches.
func Pattern(re *regexp.Regexp) Predicate {
	if re == nil {
		return func(string) bool { return false }
	}
	return re.MatchString
}

// Either matches when at least one predicate matches.
func Either(predicates ...Predicate) Predicate {
	return func(s string) bool {
		for _, p := range predicates {
			if p(s) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(s string) bool {
		return !p(s)
	}
}

// Subject is the request under evaluation for one candidate. PathParams is
// filled by a path template check and read by the path parameter check.
type Subject struct {
	Request    *expectation.Request
	PathParams expectation.Fields
}

// NewSubject returns a Subject for req seeded with its explicit path parameters.
func NewSubject(req *expectation.Request) *Subject {
	return &Subject{Request: req, PathParams: req.PathParameters}
}

// Check tests one field of a request.
type Check func(*Subject) bool

// FieldCheck binds a named request field to its compiled check.
type FieldCheck struct {
	Field string
	Check Check
}
