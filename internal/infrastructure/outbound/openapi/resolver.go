package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
)

var _ ports.OpenAPIResolver = (*Resolver)(nil)

// ErrOperationNotFound indicates an operationId absent from the document.
var ErrOperationNotFound = errors.New("operation not found")

// Resolver loads OpenAPI documents with kin-openapi and derives request
// matchers and example responses from their operations.
type Resolver struct {
	logger ports.Logger
}

// NewResolver creates a Resolver.
func NewResolver(logger ports.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// operation is one method of one path, in document order of discovery.
type operation struct {
	method string
	path   string
	op     *openapi3.Operation
	item   *openapi3.PathItem
}

func (r *Resolver) Resolve(ctx context.Context, def *expectation.OpenAPIDefinition) ([]*expectation.RequestMatcher, error) {
	doc, err := Load(ctx, def.SpecURLOrPayload)
	if err != nil {
		return nil, err
	}
	ops, err := selectOperations(doc, def.OperationID)
	if err != nil {
		return nil, err
	}

	basePath := serverBasePath(doc)
	matchers := make([]*expectation.RequestMatcher, 0, len(ops))
	for _, o := range ops {
		rm, err := requestMatcher(basePath, o)
		if err != nil {
			return nil, fmt.Errorf("operation %s %s: %w", o.method, o.path, err)
		}
		matchers = append(matchers, rm)
	}
	return matchers, nil
}

func (r *Resolver) Expand(ctx context.Context, oe *expectation.OpenAPIExpectation) ([]*expectation.Expectation, error) {
	doc, err := Load(ctx, oe.SpecURLOrPayload)
	if err != nil {
		return nil, err
	}

	var ops []operation
	if len(oe.OperationsAndResponses) == 0 {
		ops = operations(doc)
	} else {
		ids := make([]string, 0, len(oe.OperationsAndResponses))
		for id := range oe.OperationsAndResponses {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			selected, err := selectOperations(doc, id)
			if err != nil {
				return nil, err
			}
			ops = append(ops, selected...)
		}
	}

	basePath := serverBasePath(doc)
	exps := make([]*expectation.Expectation, 0, len(ops))
	for _, o := range ops {
		rm, err := requestMatcher(basePath, o)
		if err != nil {
			return nil, fmt.Errorf("operation %s %s: %w", o.method, o.path, err)
		}
		resp, err := exampleResponse(o.op, oe.OperationsAndResponses[o.op.OperationID])
		if err != nil {
			return nil, fmt.Errorf("operation %s %s: %w", o.method, o.path, err)
		}
		exps = append(exps, &expectation.Expectation{
			Request:    rm,
			Action:     &expectation.ResponseAction{Response: *resp},
			Times:      expectation.UnlimitedTimes(),
			TimeToLive: expectation.UnlimitedTTL(),
		})
	}
	r.logger.Debug("openapi expanded", "operations", len(exps))
	return exps, nil
}

// Load reads an OpenAPI document given inline (JSON or YAML), by URL or by file path.
func Load(ctx context.Context, specURLOrPayload string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.Context = ctx

	var doc *openapi3.T
	var err error
	switch src := strings.TrimSpace(specURLOrPayload); {
	case src == "":
		return nil, errors.New("empty openapi document")
	case isInline(src):
		doc, err = loader.LoadFromData([]byte(src))
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "file:"):
		u, perr := url.Parse(src)
		if perr != nil {
			return nil, fmt.Errorf("invalid openapi url: %w", perr)
		}
		doc, err = loader.LoadFromURI(u)
	default:
		doc, err = loader.LoadFromFile(src)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}
	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

func isInline(src string) bool {
	if strings.HasPrefix(src, "{") {
		return true
	}
	return strings.Contains(src, "\n") && (strings.Contains(src, "openapi:") || strings.Contains(src, "swagger:"))
}

// operations lists every operation sorted by path then method.
func operations(doc *openapi3.T) []operation {
	if doc.Paths == nil {
		return nil
	}
	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	var out []operation
	for _, p := range keys {
		item := paths[p]
		methodOps := item.Operations()
		methods := make([]string, 0, len(methodOps))
		for m := range methodOps {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		for _, m := range methods {
			out = append(out, operation{method: m, path: p, op: methodOps[m], item: item})
		}
	}
	return out
}

func selectOperations(doc *openapi3.T, operationID string) ([]operation, error) {
	all := operations(doc)
	if operationID == "" {
		return all, nil
	}
	i := slices.IndexFunc(all, func(o operation) bool { return o.op.OperationID == operationID })
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrOperationNotFound, operationID)
	}
	return all[i : i+1], nil
}

// serverBasePath returns the path of the first server URL, without a trailing slash.
func serverBasePath(doc *openapi3.T) string {
	if len(doc.Servers) == 0 || doc.Servers[0] == nil {
		return ""
	}
	raw := doc.Servers[0].URL
	if strings.Contains(raw, "{") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(u.Path, "/")
}

func requestMatcher(basePath string, o operation) (*expectation.RequestMatcher, error) {
	rm := &expectation.RequestMatcher{
		Method: expectation.String(o.method),
		Path:   expectation.String(basePath + o.path),
	}

	for _, p := range mergedParameters(o) {
		km, err := keyMatcher(p)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		switch p.In {
		case openapi3.ParameterInPath:
			rm.PathParameters = append(rm.PathParameters, km)
		case openapi3.ParameterInQuery:
			rm.QueryStringParameters = append(rm.QueryStringParameters, km)
		case openapi3.ParameterInHeader:
			rm.Headers = append(rm.Headers, km)
		case openapi3.ParameterInCookie:
			rm.Cookies = append(rm.Cookies, km)
		}
	}

	if rb := o.op.RequestBody; rb != nil && rb.Value != nil && rb.Value.Required {
		if mt, _ := jsonMediaType(rb.Value.Content); mt != nil && mt.Schema != nil && mt.Schema.Value != nil {
			schema, err := json.Marshal(mt.Schema.Value)
			if err != nil {
				return nil, fmt.Errorf("request body schema: %w", err)
			}
			rm.Body = &expectation.Body{Type: expectation.BodyJSONSchema, JSONSchema: string(schema)}
		}
	}
	return rm, nil
}

// mergedParameters returns path-item parameters overridden by operation ones.
func mergedParameters(o operation) []*openapi3.Parameter {
	var out []*openapi3.Parameter
	add := func(refs openapi3.Parameters) {
		for _, ref := range refs {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			i := slices.IndexFunc(out, func(q *openapi3.Parameter) bool { return q.Name == p.Name && q.In == p.In })
			if i >= 0 {
				out[i] = p
				continue
			}
			out = append(out, p)
		}
	}
	add(o.item.Parameters)
	add(o.op.Parameters)
	return out
}

func keyMatcher(p *openapi3.Parameter) (expectation.KeyMatcher, error) {
	value := expectation.StringMatcher{Optional: !p.Required && p.In != openapi3.ParameterInPath}
	if p.Schema != nil && p.Schema.Value != nil {
		schema, err := json.Marshal(p.Schema.Value)
		if err != nil {
			return expectation.KeyMatcher{}, err
		}
		value.Schema = schema
	} else {
		value.Value = ".*"
	}
	return expectation.KeyMatcher{
		Name:   expectation.StringMatcher{Value: p.Name},
		Values: []expectation.StringMatcher{value},
		Style:  parameterStyle(p),
	}, nil
}

// parameterStyle maps an OpenAPI style/explode pair onto a parameter style.
// Collections whose style is the location default decode as plain values.
func parameterStyle(p *openapi3.Parameter) expectation.ParameterStyle {
	explode := p.In == openapi3.ParameterInQuery || p.In == openapi3.ParameterInCookie
	if p.Explode != nil {
		explode = *p.Explode
	}
	suffix := func(s expectation.ParameterStyle) expectation.ParameterStyle {
		if explode {
			return s + "_EXPLODED"
		}
		return s
	}

	switch p.Style {
	case openapi3.SerializationLabel:
		return suffix(expectation.StyleLabel)
	case openapi3.SerializationMatrix:
		return suffix(expectation.StyleMatrix)
	case openapi3.SerializationSpaceDelimited:
		return suffix(expectation.StyleSpaceDelimited)
	case openapi3.SerializationPipeDelimited:
		return suffix(expectation.StylePipeDelimited)
	case openapi3.SerializationDeepObject:
		return expectation.StyleDeepObject
	case openapi3.SerializationForm:
		if !explode {
			return expectation.StyleForm
		}
	case openapi3.SerializationSimple:
		if explode {
			return expectation.StyleSimpleExploded
		}
	}
	return ""
}

// jsonMediaType picks application/json, any +json type, or the first type.
func jsonMediaType(content openapi3.Content) (*openapi3.MediaType, string) {
	if len(content) == 0 {
		return nil, ""
	}
	types := make([]string, 0, len(content))
	for ct := range content {
		types = append(types, ct)
	}
	sort.Strings(types)
	for _, ct := range types {
		if ct == "application/json" || strings.HasSuffix(ct, "+json") {
			return content[ct], ct
		}
	}
	return content[types[0]], types[0]
}

// exampleResponse builds the response for statusCode ("" selects the lowest
// documented status, falling back to default).
func exampleResponse(op *openapi3.Operation, statusCode string) (*expectation.Response, error) {
	if op.Responses == nil || op.Responses.Len() == 0 {
		return &expectation.Response{StatusCode: http.StatusOK}, nil
	}
	responses := op.Responses.Map()

	key := statusCode
	if key == "" {
		key = lowestStatus(responses)
	}
	ref, ok := responses[key]
	if !ok {
		return nil, fmt.Errorf("no response documented for status %q", statusCode)
	}

	code, err := strconv.Atoi(key)
	if err != nil {
		code = http.StatusOK
	}
	resp := &expectation.Response{StatusCode: code}
	if ref == nil || ref.Value == nil {
		return resp, nil
	}

	mt, contentType := jsonMediaType(ref.Value.Content)
	if mt == nil {
		return resp, nil
	}
	example, ok := mediaTypeExample(mt)
	if !ok {
		return resp, nil
	}

	var body []byte
	if s, isString := example.(string); isString && !strings.Contains(contentType, "json") {
		body = []byte(s)
	} else if body, err = json.Marshal(example); err != nil {
		return nil, fmt.Errorf("example for status %s: %w", key, err)
	}
	resp.Body = body
	resp.Headers = expectation.Fields{{Name: "Content-Type", Values: []string{contentType}}}
	return resp, nil
}

func lowestStatus(responses map[string]*openapi3.ResponseRef) string {
	keys := make([]string, 0, len(responses))
	for k := range responses {
		if k != "default" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "default"
	}
	sort.Strings(keys)
	return keys[0]
}

func mediaTypeExample(mt *openapi3.MediaType) (any, bool) {
	if mt.Example != nil {
		return mt.Example, true
	}
	if len(mt.Examples) > 0 {
		names := make([]string, 0, len(mt.Examples))
		for name := range mt.Examples {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if ex := mt.Examples[name]; ex != nil && ex.Value != nil && ex.Value.Value != nil {
				return ex.Value.Value, true
			}
		}
	}
	if mt.Schema != nil && mt.Schema.Value != nil && mt.Schema.Value.Example != nil {
		return mt.Schema.Value.Example, true
	}
	return nil, false
}
