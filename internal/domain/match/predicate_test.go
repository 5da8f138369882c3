package match_test

import (
	"regexp"
	"testing"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		expected string
		fold     bool
		actual   string
		want     bool
	}{
		{"GET", false, "GET", true},
		{"GET", false, "get", false},
		{"GET", true, "get", true},
		{"", false, "", true},
		{"", false, "x", false},
	}

	for _, tc := range tests {
		if got := match.Equal(tc.expected, tc.fold)(tc.actual); got != tc.want {
			t.Errorf("Equal(%q, %v)(%q) = %v, want %v", tc.expected, tc.fold, tc.actual, got, tc.want)
		}
	}
}

func TestPattern(t *testing.T) {
	p := match.Pattern(regexp.MustCompile(`^/users/[0-9]+$`))
	if !p("/users/42") {
		t.Error("expected match for '/users/42'")
	}
	if p("/users/me") {
		t.Error("expected no match for '/users/me'")
	}

	if match.Pattern(nil)("") {
		t.Error("a nil pattern should match nothing")
	}
}

func TestEither(t *testing.T) {
	p := match.Either(match.Equal("a.b", false), match.Pattern(regexp.MustCompile(`^x+$`)))

	for _, s := range []string{"a.b", "xxx"} {
		if !p(s) {
			t.Errorf("expected match for %q", s)
		}
	}
	if p("aXb") {
		t.Error("expected no match for 'aXb'")
	}

	if match.Either()("anything") {
		t.Error("Either with no predicates should not match")
	}
}

func TestNot(t *testing.T) {
	p := match.Not(match.Equal("no", false))

	if !p("yes") {
		t.Error("expected match for 'yes'")
	}
	if p("no") {
		t.Error("expected no match for 'no'")
	}
}

func TestNewSubject_SeedsPathParams(t *testing.T) {
	req := &expectation.Request{PathParameters: expectation.Fields{{Name: "id", Values: []string{"7"}}}}
	s := match.NewSubject(req)

	if s.Request != req {
		t.Error("expected the subject to carry the request")
	}
	if len(s.PathParams) != 1 || s.PathParams[0].Values[0] != "7" {
		t.Errorf("unexpected path params: %v", s.PathParams)
	}
}
