package template

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

// renderContext is the view of a request that templates see.
type renderContext struct {
	req *expectation.Request
	now time.Time
}

func (c renderContext) pathParam(name string) string  { return c.req.PathParameters.First(name, false) }
func (c renderContext) queryParam(name string) string { return c.req.QueryStringParameters.First(name, false) }
func (c renderContext) header(name string) string     { return c.req.Headers.First(name, true) }
func (c renderContext) cookie(name string) string     { return c.req.Cookies.First(name, false) }
func (c renderContext) body() string                  { return string(c.req.Body) }
func (c renderContext) nowRFC3339() string            { return c.now.Format(time.RFC3339) }
func (c renderContext) nowFormat(layout string) string {
	return c.now.Format(layout)
}

func (c renderContext) jsonPath(expression string) string {
	return extractJSONPath(c.req.Body, expression)
}

// requestView exposes the request as plain data, keyed as on the wire.
func (c renderContext) requestView() map[string]any {
	return map[string]any{
		"method":                c.req.Method,
		"path":                  c.req.Path,
		"pathParameters":        fieldsView(c.req.PathParameters),
		"queryStringParameters": fieldsView(c.req.QueryStringParameters),
		"headers":               fieldsView(c.req.Headers),
		"cookies":               c.req.Cookies.Map(),
		"body":                  string(c.req.Body),
		"secure":                c.req.Secure != nil && *c.req.Secure,
		"keepAlive":             c.req.KeepAlive != nil && *c.req.KeepAlive,
		"remoteAddress":         c.req.RemoteAddr,
	}
}

func fieldsView(f expectation.Fields) map[string][]string {
	out := make(map[string][]string, len(f))
	for _, field := range f {
		out[field.Name] = append(out[field.Name], field.Values...)
	}
	return out
}

func seqInts(start, end int) []int {
	if end < start {
		return nil
	}
	s := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		s = append(s, i)
	}
	return s
}

func randomInt(min, max int) int {
	if min >= max {
		return min
	}
	return min + rand.IntN(max-min+1)
}

func toJSONString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func extractJSONPath(body []byte, expression string) string {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return ""
	}
	result, err := jsonpath.Get(expression, data)
	if err != nil {
		return ""
	}
	if s, ok := result.(string); ok {
		return s
	}
	return toJSONString(result)
}

func newUUID() string { return uuid.NewString() }
