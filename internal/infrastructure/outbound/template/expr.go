package template

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprEngine renders templates whose ${ } segments are Expr expressions.
type exprEngine struct{}

func (exprEngine) compile(source string) (renderer, error) {
	segments, err := parseExprSegments(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expr template: %w", err)
	}
	return exprRenderer{segments: segments}, nil
}

type exprSegment struct {
	static  string
	program *vm.Program
}

func parseExprSegments(source string) ([]exprSegment, error) {
	var segments []exprSegment
	remaining := source

	for {
		idx := strings.Index(remaining, "${")
		if idx < 0 {
			if remaining != "" {
				segments = append(segments, exprSegment{static: remaining})
			}
			return segments, nil
		}
		if idx > 0 {
			segments = append(segments, exprSegment{static: remaining[:idx]})
		}

		rest := remaining[idx+2:]
		closeIdx := findClosingBrace(rest)
		if closeIdx < 0 {
			return nil, fmt.Errorf("unclosed ${ at offset %d", len(source)-len(remaining)+idx)
		}

		expression := rest[:closeIdx]
		program, err := expr.Compile(expression, expr.Env(exprEnv{}))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}
		segments = append(segments, exprSegment{program: program})
		remaining = rest[closeIdx+1:]
	}
}

// findClosingBrace finds the } closing an expression, skipping nested braces
// and quoted strings.
func findClosingBrace(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' && i+1 < len(s) {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// exprEnv defines the environment available to Expr expressions.
type exprEnv struct {
	Method     string               `expr:"method"`
	Path       string               `expr:"path"`
	Request    map[string]any       `expr:"request"`
	PathParam  func(string) string  `expr:"pathParam"`
	QueryParam func(string) string  `expr:"queryParam"`
	Header     func(string) string  `expr:"header"`
	Cookie     func(string) string  `expr:"cookie"`
	Body       func() string        `expr:"body"`
	Now        func() string        `expr:"now"`
	NowFormat  func(string) string  `expr:"nowFormat"`
	UUID       func() string        `expr:"uuid"`
	RandomInt  func(int, int) int   `expr:"randomInt"`
	Seq        func(int, int) []int `expr:"seq"`
	ToJSON     func(any) string     `expr:"toJSON"`
	JSONPath   func(string) string  `expr:"jsonPath"`
}

func newExprEnv(rc renderContext) exprEnv {
	return exprEnv{
		Method:     rc.req.Method,
		Path:       rc.req.Path,
		Request:    rc.requestView(),
		PathParam:  rc.pathParam,
		QueryParam: rc.queryParam,
		Header:     rc.header,
		Cookie:     rc.cookie,
		Body:       rc.body,
		Now:        rc.nowRFC3339,
		NowFormat:  rc.nowFormat,
		UUID:       newUUID,
		RandomInt:  randomInt,
		Seq:        seqInts,
		ToJSON:     toJSONString,
		JSONPath:   rc.jsonPath,
	}
}

type exprRenderer struct {
	segments []exprSegment
}

func (r exprRenderer) render(ctx context.Context, rc renderContext) ([]byte, error) {
	env := newExprEnv(rc)

	var buf strings.Builder
	for _, seg := range r.segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seg.program == nil {
			buf.WriteString(seg.static)
			continue
		}
		result, err := expr.Run(seg.program, env)
		if err != nil {
			return nil, fmt.Errorf("expression evaluation failed: %w", err)
		}
		fmt.Fprintf(&buf, "%v", result)
	}
	return []byte(buf.String()), nil
}
