package services

import (
	"regexp"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
)

const regexCacheSize = 2048

// RegexCache is a bounded cache of compiled regular expressions. Values that do
// not compile are cached as misses so literal values are only parsed once.
type RegexCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewRegexCache creates a cache holding up to size patterns.
func NewRegexCache(size int) *RegexCache {
	if size <= 0 {
		size = regexCacheSize
	}
	return &RegexCache{cache: lru.New(size)}
}

type regexEntry struct {
	re  *regexp.Regexp
	err error
}

// Compile returns the compiled form of pattern.
func (c *RegexCache) Compile(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.cache.Get(pattern); ok {
		e := v.(regexEntry)
		return e.re, e.err
	}
	re, err := regexp.Compile(pattern)
	c.cache.Add(pattern, regexEntry{re: re, err: err})
	return re, err
}

// Len returns the number of cached patterns.
func (c *RegexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// valueMatcher is a compiled StringMatcher with its flags kept apart so that
// multi-value matching can apply negation per key.
type valueMatcher struct {
	positive match.Predicate
	not      bool
	optional bool
}

func (v valueMatcher) matches(s string) bool {
	return v.positive(s) != v.not
}

// compileValue compiles m. A literal matches by equality or, when it is also a
// valid pattern, by a regex matching the whole value. fold compares case-insensitively.
func (c *Compiler) compileValue(m *expectation.StringMatcher, fold bool) (valueMatcher, error) {
	vm := valueMatcher{not: m.Not, optional: m.Optional}
	if len(m.Schema) > 0 {
		sch, err := compileSchema(m.Schema)
		if err != nil {
			return vm, err
		}
		vm.positive = scalarSchemaPredicate(sch)
		return vm, nil
	}
	vm.positive = c.literalOrRegex(m.Value, fold)
	return vm, nil
}

// compileString compiles m into a single-value predicate with negation applied.
func (c *Compiler) compileString(m *expectation.StringMatcher, fold bool) (match.Predicate, error) {
	vm, err := c.compileValue(m, fold)
	if err != nil {
		return nil, err
	}
	if vm.not {
		return match.Not(vm.positive), nil
	}
	return vm.positive, nil
}

func (c *Compiler) literalOrRegex(expected string, fold bool) match.Predicate {
	if expected == "" {
		return match.Equal("", false)
	}
	pattern := "^(?:" + expected + ")$"
	if fold {
		pattern = "(?i)" + pattern
	}
	re, _ := c.regexes.Compile(pattern)
	return match.Either(match.Equal(expected, fold), match.Pattern(re))
}
