package services

import (
	"fmt"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

type keyCheck struct {
	name     valueMatcher
	values   []valueMatcher
	style    expectation.ParameterStyle
	required bool // false for optional keys and when every expected value is optional
}

// compileMultiValues compiles keyed matchers into a predicate over a multi-map.
// Keys are ANDed, expected values of one key are ORed. fold makes key names
// case-insensitive.
func (c *Compiler) compileMultiValues(mv expectation.MultiValues, fold bool) (func(expectation.Fields) bool, error) {
	checks := make([]keyCheck, 0, len(mv))
	for _, km := range mv {
		name, err := c.compileValue(&km.Name, fold)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", km.Name.Value, err)
		}
		kc := keyCheck{name: name, style: km.Style, required: len(km.Values) == 0 && !km.Name.Optional}
		if kc.style == "" {
			kc.style = km.Name.ParameterStyle
		}
		for i := range km.Values {
			v, err := c.compileValue(&km.Values[i], false)
			if err != nil {
				return nil, fmt.Errorf("key %q value %q: %w", km.Name.Value, km.Values[i].Value, err)
			}
			if !v.optional && !km.Name.Optional {
				kc.required = true
			}
			kc.values = append(kc.values, v)
		}
		checks = append(checks, kc)
	}

	return func(actual expectation.Fields) bool {
		for i := range checks {
			if !checks[i].matches(actual) {
				return false
			}
		}
		return true
	}, nil
}

func (kc *keyCheck) matches(actual expectation.Fields) bool {
	values, present := kc.collect(actual)

	if kc.name.not {
		return !present
	}
	if !present {
		return !kc.required
	}
	if len(kc.values) == 0 {
		return true
	}
	for _, expected := range kc.values {
		if satisfied(expected, values) {
			return true
		}
	}
	return false
}

// collect returns the logical values of every actual key matched by the key
// name, decoded through the parameter style.
func (kc *keyCheck) collect(actual expectation.Fields) (values []string, present bool) {
	for _, f := range actual {
		if kc.style == expectation.StyleDeepObject {
			name, sub, ok := deepObjectKey(f.Name)
			if !ok || !kc.name.positive(name) {
				continue
			}
			present = true
			for _, v := range f.Values {
				values = append(values, sub+"="+v)
			}
			continue
		}
		if !kc.name.positive(f.Name) {
			continue
		}
		present = true
		for _, raw := range f.Values {
			values = append(values, splitStyled(f.Name, raw, kc.style)...)
		}
	}
	return values, present
}

// satisfied reports whether one expected value holds for the actual values. A
// negated value holds when no actual value matches it.
func satisfied(expected valueMatcher, actual []string) bool {
	for _, a := range actual {
		if expected.positive(a) {
			return !expected.not
		}
	}
	return expected.not
}
