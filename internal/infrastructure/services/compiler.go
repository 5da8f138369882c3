package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
)

// Field names reported in traces and compile errors.
const (
	FieldSecure                = "secure"
	FieldKeepAlive             = "keepAlive"
	FieldSocketAddress         = "socketAddress"
	FieldMethod                = "method"
	FieldPath                  = "path"
	FieldPathParameters        = "pathParameters"
	FieldQueryStringParameters = "queryStringParameters"
	FieldHeaders               = "headers"
	FieldCookies               = "cookies"
	FieldBody                  = "body"
	FieldAction                = "action"
	FieldRequest               = "httpRequest"
)

// CompileError reports an expectation that cannot be registered.
type CompileError struct {
	ExpectationID string
	Field         string
	Err           error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("expectation %q: invalid %s: %v", e.ExpectationID, e.Field, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithTemplates enables template actions, validated at compile time.
func WithTemplates(r ports.TemplateRenderer) CompilerOption {
	return func(c *Compiler) { c.templates = r }
}

// WithOpenAPI enables OpenAPI request definitions.
func WithOpenAPI(r ports.OpenAPIResolver) CompilerOption {
	return func(c *Compiler) { c.openapi = r }
}

// WithDefaultJSONMatchType sets the match type of JSON bodies that declare none.
func WithDefaultJSONMatchType(mt expectation.JSONMatchType) CompilerOption {
	return func(c *Compiler) {
		if mt != "" {
			c.defaultJSONMatchType = mt
		}
	}
}

// WithRegexCache shares a compiled pattern cache.
func WithRegexCache(rc *RegexCache) CompilerOption {
	return func(c *Compiler) { c.regexes = rc }
}

// Compiler transforms expectations into compiled expectations with field checks.
type Compiler struct {
	regexes              *RegexCache
	templates            ports.TemplateRenderer // nil disables template actions
	openapi              ports.OpenAPIResolver  // nil disables OpenAPI definitions
	defaultJSONMatchType expectation.JSONMatchType
}

// NewCompiler creates a new Compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{defaultJSONMatchType: expectation.MatchOnlyMatchingFields}
	for _, opt := range opts {
		opt(c)
	}
	if c.regexes == nil {
		c.regexes = NewRegexCache(regexCacheSize)
	}
	return c
}

// Compile turns an expectation into one compiled expectation per concrete
// request matcher. OpenAPI definitions may expand into several; they share one
// use counter.
func (c *Compiler) Compile(ctx context.Context, exp *expectation.Expectation) ([]*match.CompiledExpectation, error) {
	if exp.Action == nil {
		return nil, &CompileError{ExpectationID: exp.ID, Field: FieldAction, Err: expectation.ErrNoAction}
	}
	if err := c.checkAction(exp.Action); err != nil {
		return nil, &CompileError{ExpectationID: exp.ID, Field: FieldAction, Err: err}
	}

	var matchers []*expectation.RequestMatcher
	switch def := exp.Request.(type) {
	case nil:
		matchers = []*expectation.RequestMatcher{{}}
	case *expectation.RequestMatcher:
		matchers = []*expectation.RequestMatcher{def}
	case *expectation.OpenAPIDefinition:
		if c.openapi == nil {
			return nil, &CompileError{ExpectationID: exp.ID, Field: FieldRequest, Err: errors.New("openapi definitions are not supported")}
		}
		resolved, err := c.openapi.Resolve(ctx, def)
		if err != nil {
			return nil, &CompileError{ExpectationID: exp.ID, Field: FieldRequest, Err: err}
		}
		matchers = resolved
	default:
		return nil, &CompileError{ExpectationID: exp.ID, Field: FieldRequest, Err: fmt.Errorf("unsupported request definition %T", def)}
	}

	uses := match.NewCounter(exp.Times)
	out := make([]*match.CompiledExpectation, 0, len(matchers))
	for _, rm := range matchers {
		checks, err := c.CompileMatcher(rm)
		if err != nil {
			var ce *CompileError
			if errors.As(err, &ce) {
				ce.ExpectationID = exp.ID
				return nil, ce
			}
			return nil, &CompileError{ExpectationID: exp.ID, Field: FieldRequest, Err: err}
		}
		out = append(out, match.NewCompiledExpectation(exp, checks, uses))
	}
	return out, nil
}

func (c *Compiler) checkAction(a expectation.Action) error {
	if d := a.ActionDelay(); d != nil && !d.TimeUnit.Valid() {
		return fmt.Errorf("unknown time unit %q", d.TimeUnit)
	}

	switch act := a.(type) {
	case *expectation.TemplateAction:
		if c.templates == nil {
			return errors.New("template actions are not supported")
		}
		if _, err := c.templates.Compile(act.Engine, act.Template); err != nil {
			return err
		}
	case *expectation.ForwardAction:
		if act.Host == "" {
			return errors.New("forward host is required")
		}
	case *expectation.ClassCallbackAction:
		if act.CallbackClass == "" {
			return errors.New("callback class is required")
		}
	case *expectation.ObjectCallbackAction:
		if act.ClientID == "" {
			return errors.New("callback client id is required")
		}
	case *expectation.OverrideForwardAction:
		if act.RequestModifier != nil && act.RequestModifier.Path != nil {
			if _, err := c.regexes.Compile(act.RequestModifier.Path.Regex); err != nil {
				return fmt.Errorf("path modifier: %w", err)
			}
		}
	case *expectation.ErrorAction:
		if !act.DropConnection && len(act.ResponseBytes) == 0 {
			return errors.New("error action needs dropConnection or responseBytes")
		}
	}
	return nil
}

// CompileMatcher compiles a request matcher into field checks, cheapest first.
func (c *Compiler) CompileMatcher(rm *expectation.RequestMatcher) ([]match.FieldCheck, error) {
	var checks []match.FieldCheck
	fail := func(field string, err error) ([]match.FieldCheck, error) {
		return nil, &CompileError{Field: field, Err: err}
	}

	if rm.Secure != nil {
		want := *rm.Secure
		checks = append(checks, match.FieldCheck{Field: FieldSecure, Check: func(s *match.Subject) bool {
			return boolValue(s.Request.Secure) == want
		}})
	}

	if rm.KeepAlive != nil {
		want := *rm.KeepAlive
		checks = append(checks, match.FieldCheck{Field: FieldKeepAlive, Check: func(s *match.Subject) bool {
			return boolValue(s.Request.KeepAlive) == want
		}})
	}

	if rm.SocketAddress != nil {
		checks = append(checks, match.FieldCheck{Field: FieldSocketAddress, Check: socketAddressCheck(*rm.SocketAddress)})
	}

	if rm.Method != nil {
		p, err := c.compileString(rm.Method, true)
		if err != nil {
			return fail(FieldMethod, err)
		}
		checks = append(checks, match.FieldCheck{Field: FieldMethod, Check: func(s *match.Subject) bool {
			return p(s.Request.Method)
		}})
	}

	if rm.Path != nil {
		check, err := c.compilePath(rm.Path)
		if err != nil {
			return fail(FieldPath, err)
		}
		checks = append(checks, match.FieldCheck{Field: FieldPath, Check: check})
	}

	if len(rm.PathParameters) > 0 {
		p, err := c.compileMultiValues(rm.PathParameters, false)
		if err != nil {
			return fail(FieldPathParameters, err)
		}
		checks = append(checks, match.FieldCheck{Field: FieldPathParameters, Check: func(s *match.Subject) bool {
			return p(s.PathParams)
		}})
	}

	if len(rm.QueryStringParameters) > 0 {
		p, err := c.compileMultiValues(rm.QueryStringParameters, false)
		if err != nil {
			return fail(FieldQueryStringParameters, err)
		}
		checks = append(checks, match.FieldCheck{Field: FieldQueryStringParameters, Check: func(s *match.Subject) bool {
			return p(s.Request.QueryStringParameters)
		}})
	}

	if len(rm.Headers) > 0 {
		p, err := c.compileMultiValues(rm.Headers, true)
		if err != nil {
			return fail(FieldHeaders, err)
		}
		checks = append(checks, match.FieldCheck{Field: FieldHeaders, Check: func(s *match.Subject) bool {
			return p(s.Request.Headers)
		}})
	}

	if len(rm.Cookies) > 0 {
		p, err := c.compileMultiValues(rm.Cookies, false)
		if err != nil {
			return fail(FieldCookies, err)
		}
		checks = append(checks, match.FieldCheck{Field: FieldCookies, Check: func(s *match.Subject) bool {
			return p(s.Request.Cookies)
		}})
	}

	if rm.Body != nil {
		check, err := c.compileBody(rm.Body)
		if err != nil {
			return fail(FieldBody, err)
		}
		checks = append(checks, match.FieldCheck{Field: FieldBody, Check: check})
	}

	return checks, nil
}

var pathVariable = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// compilePath compiles a path matcher. Paths containing {name} segments are
// templates: each variable captures one segment and is exposed as a path parameter.
func (c *Compiler) compilePath(m *expectation.StringMatcher) (match.Check, error) {
	if len(m.Schema) > 0 || !pathVariable.MatchString(m.Value) {
		p, err := c.compileString(m, false)
		if err != nil {
			return nil, err
		}
		return func(s *match.Subject) bool { return p(s.Request.Path) }, nil
	}

	var names []string
	pattern := pathVariable.ReplaceAllStringFunc(m.Value, func(v string) string {
		names = append(names, v[1:len(v)-1])
		return "([^/]*)"
	})
	re, err := c.regexes.Compile("^" + pattern + "$")
	if err != nil {
		return nil, fmt.Errorf("invalid path template %q: %w", m.Value, err)
	}

	not := m.Not
	return func(s *match.Subject) bool {
		groups := re.FindStringSubmatch(s.Request.Path)
		if groups == nil {
			return not
		}
		if not {
			return false
		}
		params := make(expectation.Fields, 0, len(names))
		for i, name := range names {
			params = append(params, expectation.Field{Name: name, Values: []string{groups[i+1]}})
		}
		s.PathParams = params
		return true
	}, nil
}

func socketAddressCheck(want expectation.SocketAddress) match.Check {
	return func(s *match.Subject) bool {
		got := s.Request.SocketAddress
		if got == nil {
			return false
		}
		if want.Host != "" && !strings.EqualFold(want.Host, got.Host) {
			return false
		}
		if want.Port != 0 && want.Port != got.Port {
			return false
		}
		if want.Scheme != "" && !strings.EqualFold(string(want.Scheme), string(got.Scheme)) {
			return false
		}
		return true
	}
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
