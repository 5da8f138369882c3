package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

// DecodeExpectations decodes one expectation object or an array of them.
func DecodeExpectations(data []byte) ([]*expectation.Expectation, error) {
	raws, err := splitArray(data)
	if err != nil {
		return nil, err
	}
	out := make([]*expectation.Expectation, 0, len(raws))
	for i, raw := range raws {
		exp, err := DecodeExpectation(raw)
		if err != nil {
			if len(raws) > 1 {
				return nil, fmt.Errorf("expectation %d: %w", i, err)
			}
			return nil, err
		}
		out = append(out, exp)
	}
	return out, nil
}

// DecodeExpectation decodes a single expectation. Exactly one action is required.
func DecodeExpectation(data []byte) (*expectation.Expectation, error) {
	var w wireExpectation
	if err := strictUnmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("invalid expectation: %w", err)
	}

	exp := &expectation.Expectation{
		ID:         w.ID,
		Priority:   w.Priority,
		Times:      decodeTimes(w.Times),
		TimeToLive: decodeTimeToLive(w.TimeToLive),
	}
	if w.TimeToLive != nil && !expectation.TimeUnit(w.TimeToLive.TimeUnit).Valid() {
		return nil, fmt.Errorf("invalid timeToLive: unknown time unit %q", w.TimeToLive.TimeUnit)
	}

	if !isNull(w.HTTPRequest) {
		def, err := decodeRequestDefinition(w.HTTPRequest)
		if err != nil {
			return nil, fmt.Errorf("invalid httpRequest: %w", err)
		}
		exp.Request = def
	}

	action, err := decodeAction(&w)
	if err != nil {
		return nil, err
	}
	exp.Action = action
	return exp, nil
}

func decodeAction(w *wireExpectation) (expectation.Action, error) {
	var actions []expectation.Action
	var errs []error
	add := func(a expectation.Action, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		actions = append(actions, a)
	}

	if !isNull(w.HTTPResponse) {
		add(func() (expectation.Action, error) {
			resp, err := decodeResponse(w.HTTPResponse)
			if err != nil {
				return nil, fmt.Errorf("invalid httpResponse: %w", err)
			}
			return &expectation.ResponseAction{Response: *resp}, nil
		}())
	}
	if t := w.HTTPResponseTemplate; t != nil {
		add(decodeTemplate(t, expectation.TargetResponse))
	}
	if t := w.HTTPForwardTemplate; t != nil {
		add(decodeTemplate(t, expectation.TargetForward))
	}
	if cb := w.HTTPResponseClassCallback; cb != nil {
		add(&expectation.ClassCallbackAction{Target: expectation.TargetResponse, CallbackClass: cb.CallbackClass, Delay: decodeDelay(cb.Delay)}, nil)
	}
	if cb := w.HTTPForwardClassCallback; cb != nil {
		add(&expectation.ClassCallbackAction{Target: expectation.TargetForward, CallbackClass: cb.CallbackClass, Delay: decodeDelay(cb.Delay)}, nil)
	}
	if cb := w.HTTPResponseObjectCallback; cb != nil {
		add(&expectation.ObjectCallbackAction{Target: expectation.TargetResponse, ClientID: cb.ClientID, Delay: decodeDelay(cb.Delay)}, nil)
	}
	if cb := w.HTTPForwardObjectCallback; cb != nil {
		add(&expectation.ObjectCallbackAction{
			Target:           expectation.TargetForward,
			ClientID:         cb.ClientID,
			ResponseCallback: cb.ResponseCallback,
			Delay:            decodeDelay(cb.Delay),
		}, nil)
	}
	if f := w.HTTPForward; f != nil {
		add(&expectation.ForwardAction{
			Host:   f.Host,
			Port:   f.Port,
			Scheme: expectation.Scheme(strings.ToUpper(f.Scheme)),
			Delay:  decodeDelay(f.Delay),
		}, nil)
	}
	if o := w.HTTPOverrideForwardedRequest; o != nil {
		add(decodeOverrideForward(o))
	}
	if e := w.HTTPError; e != nil {
		add(func() (expectation.Action, error) {
			raw, err := base64.StdEncoding.DecodeString(e.ResponseBytes)
			if err != nil {
				return nil, fmt.Errorf("invalid httpError responseBytes: %w", err)
			}
			return &expectation.ErrorAction{DropConnection: e.DropConnection, ResponseBytes: raw, Delay: decodeDelay(e.Delay)}, nil
		}())
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	switch len(actions) {
	case 0:
		return nil, expectation.ErrNoAction
	case 1:
		return actions[0], nil
	default:
		return nil, expectation.ErrMultipleActions
	}
}

func decodeTemplate(t *wireTemplate, target expectation.Target) (expectation.Action, error) {
	engine := expectation.TemplateEngine(t.TemplateType)
	if engine == "" {
		engine = expectation.EngineJavaScript
	}
	return &expectation.TemplateAction{
		Target:   target,
		Engine:   engine,
		Template: t.Template,
		Delay:    decodeDelay(t.Delay),
	}, nil
}

func decodeOverrideForward(o *wireOverrideForward) (expectation.Action, error) {
	act := &expectation.OverrideForwardAction{Delay: decodeDelay(o.Delay)}

	reqRaw := o.RequestOverride
	if isNull(reqRaw) {
		reqRaw = o.HTTPRequest
	}
	if !isNull(reqRaw) {
		req, err := decodeRequest(reqRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid requestOverride: %w", err)
		}
		act.RequestOverride = req
	}

	respRaw := o.ResponseOverride
	if isNull(respRaw) {
		respRaw = o.HTTPResponse
	}
	if !isNull(respRaw) {
		resp, err := decodeResponse(respRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid responseOverride: %w", err)
		}
		act.ResponseOverride = resp
	}

	if m := o.RequestModifier; m != nil {
		rm := &expectation.RequestModifier{}
		if m.Path != nil {
			rm.Path = &expectation.PathModifier{Regex: m.Path.Regex, Substitution: m.Path.Substitution}
		}
		var err error
		if rm.QueryStringParameters, err = decodeFieldsModifier(m.QueryStringParameters); err != nil {
			return nil, fmt.Errorf("invalid requestModifier queryStringParameters: %w", err)
		}
		if rm.Headers, err = decodeFieldsModifier(m.Headers); err != nil {
			return nil, fmt.Errorf("invalid requestModifier headers: %w", err)
		}
		if rm.Cookies, err = decodeFieldsModifier(m.Cookies); err != nil {
			return nil, fmt.Errorf("invalid requestModifier cookies: %w", err)
		}
		act.RequestModifier = rm
	}

	if m := o.ResponseModifier; m != nil {
		rm := &expectation.ResponseModifier{}
		var err error
		if rm.Headers, err = decodeFieldsModifier(m.Headers); err != nil {
			return nil, fmt.Errorf("invalid responseModifier headers: %w", err)
		}
		if rm.Cookies, err = decodeFieldsModifier(m.Cookies); err != nil {
			return nil, fmt.Errorf("invalid responseModifier cookies: %w", err)
		}
		act.ResponseModifier = rm
	}
	return act, nil
}

func decodeFieldsModifier(w *wireFieldsModifier) (*expectation.FieldsModifier, error) {
	if w == nil {
		return nil, nil
	}
	add, err := decodeFields(w.Add)
	if err != nil {
		return nil, err
	}
	replace, err := decodeFields(w.Replace)
	if err != nil {
		return nil, err
	}
	return &expectation.FieldsModifier{Add: add, Replace: replace, Remove: w.Remove}, nil
}

// decodeTimes treats absent times, or a non-positive count without an explicit
// unlimited flag, as unlimited. An explicit unlimited:false is taken literally,
// so remainingTimes 0 yields an expectation that never matches.
func decodeTimes(w *wireTimes) expectation.Times {
	switch {
	case w == nil:
		return expectation.UnlimitedTimes()
	case w.Unlimited != nil:
		if *w.Unlimited {
			return expectation.UnlimitedTimes()
		}
		return expectation.Exactly(max(w.RemainingTimes, 0))
	case w.RemainingTimes > 0:
		return expectation.Exactly(w.RemainingTimes)
	}
	return expectation.UnlimitedTimes()
}

// decodeTimeToLive keeps a window unlimited only when nothing bounds it. A
// window given a unit or an explicit unlimited:false is finite, and a
// non-positive duration expires at creation.
func decodeTimeToLive(w *wireTimeToLive) expectation.TimeToLive {
	if w == nil || (w.Unlimited != nil && *w.Unlimited) {
		return expectation.UnlimitedTTL()
	}
	ttl := expectation.TimeToLive{
		TimeUnit:   expectation.TimeUnit(strings.ToUpper(w.TimeUnit)),
		TimeToLive: w.TimeToLive,
	}
	if w.EndDate > 0 {
		ttl.EndDate = time.UnixMilli(w.EndDate)
		return ttl
	}
	if w.Unlimited == nil && ttl.TimeUnit == "" && ttl.TimeToLive <= 0 {
		return expectation.UnlimitedTTL()
	}
	if ttl.TimeUnit == "" {
		ttl.TimeUnit = expectation.Milliseconds
	}
	return ttl
}

func decodeDelay(w *wireDelay) *expectation.Delay {
	if w == nil {
		return nil
	}
	return &expectation.Delay{TimeUnit: expectation.TimeUnit(strings.ToUpper(w.TimeUnit)), Value: w.Value}
}

func decodeRequestDefinition(raw json.RawMessage) (expectation.RequestDefinition, error) {
	var w wireRequest
	if err := strictUnmarshal(raw, &w); err != nil {
		return nil, err
	}
	if !isNull(w.SpecURLOrPayload) {
		spec, err := stringOrDocument(w.SpecURLOrPayload)
		if err != nil {
			return nil, fmt.Errorf("invalid specUrlOrPayload: %w", err)
		}
		return &expectation.OpenAPIDefinition{SpecURLOrPayload: spec, OperationID: w.OperationID}, nil
	}
	return decodeRequestMatcher(&w)
}

// DecodeRequestMatcher decodes an httpRequest object as a matcher.
func DecodeRequestMatcher(data []byte) (*expectation.RequestMatcher, error) {
	var w wireRequest
	if err := strictUnmarshal(data, &w); err != nil {
		return nil, err
	}
	return decodeRequestMatcher(&w)
}

func decodeRequestMatcher(w *wireRequest) (*expectation.RequestMatcher, error) {
	rm := &expectation.RequestMatcher{Secure: w.Secure, KeepAlive: w.KeepAlive}
	var err error

	if !isNull(w.Method) {
		if rm.Method, err = decodeStringMatcher(w.Method); err != nil {
			return nil, fmt.Errorf("method: %w", err)
		}
	}
	if !isNull(w.Path) {
		if rm.Path, err = decodeStringMatcher(w.Path); err != nil {
			return nil, fmt.Errorf("path: %w", err)
		}
	}
	if rm.PathParameters, err = decodeMultiValues(w.PathParameters); err != nil {
		return nil, fmt.Errorf("pathParameters: %w", err)
	}
	if rm.QueryStringParameters, err = decodeMultiValues(w.QueryStringParameters); err != nil {
		return nil, fmt.Errorf("queryStringParameters: %w", err)
	}
	if rm.Headers, err = decodeMultiValues(w.Headers); err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	if rm.Cookies, err = decodeMultiValues(w.Cookies); err != nil {
		return nil, fmt.Errorf("cookies: %w", err)
	}
	if !isNull(w.Body) {
		if rm.Body, err = decodeBody(w.Body); err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
	}
	if sa := w.SocketAddress; sa != nil {
		rm.SocketAddress = &expectation.SocketAddress{Host: sa.Host, Port: sa.Port, Scheme: expectation.Scheme(strings.ToUpper(sa.Scheme))}
	}
	return rm, nil
}

// DecodeRequest decodes a concrete request, as produced by templates and callbacks.
func DecodeRequest(data []byte) (*expectation.Request, error) {
	return decodeRequest(data)
}

func decodeRequest(raw json.RawMessage) (*expectation.Request, error) {
	var w wireRequest
	if err := strictUnmarshal(raw, &w); err != nil {
		return nil, err
	}
	req := &expectation.Request{Secure: w.Secure, KeepAlive: w.KeepAlive}
	var err error

	if req.Method, err = plainString(w.Method); err != nil {
		return nil, fmt.Errorf("method: %w", err)
	}
	if req.Path, err = plainString(w.Path); err != nil {
		return nil, fmt.Errorf("path: %w", err)
	}
	if req.PathParameters, err = decodeFields(w.PathParameters); err != nil {
		return nil, fmt.Errorf("pathParameters: %w", err)
	}
	if req.QueryStringParameters, err = decodeFields(w.QueryStringParameters); err != nil {
		return nil, fmt.Errorf("queryStringParameters: %w", err)
	}
	if req.Headers, err = decodeFields(w.Headers); err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	if req.Cookies, err = decodeFields(w.Cookies); err != nil {
		return nil, fmt.Errorf("cookies: %w", err)
	}
	if !isNull(w.Body) {
		body, contentType, err := concreteBody(w.Body)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		req.Body = body
		if contentType != "" && !req.Headers.Has("Content-Type", true) {
			req.Headers = append(req.Headers, expectation.Field{Name: "Content-Type", Values: []string{contentType}})
		}
	}
	if sa := w.SocketAddress; sa != nil {
		req.SocketAddress = &expectation.SocketAddress{Host: sa.Host, Port: sa.Port, Scheme: expectation.Scheme(strings.ToUpper(sa.Scheme))}
	}
	return req, nil
}

// DecodeResponse decodes a concrete response, as produced by templates and callbacks.
func DecodeResponse(data []byte) (*expectation.Response, error) {
	return decodeResponse(data)
}

func decodeResponse(raw json.RawMessage) (*expectation.Response, error) {
	var w wireResponse
	if err := strictUnmarshal(raw, &w); err != nil {
		return nil, err
	}
	resp := &expectation.Response{
		StatusCode:   w.StatusCode,
		ReasonPhrase: w.ReasonPhrase,
		Delay:        decodeDelay(w.Delay),
	}
	var err error
	if resp.Headers, err = decodeFields(w.Headers); err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}
	if resp.Cookies, err = decodeFields(w.Cookies); err != nil {
		return nil, fmt.Errorf("cookies: %w", err)
	}
	if !isNull(w.Body) {
		if resp.Body, resp.ContentType, err = concreteBody(w.Body); err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
	}
	if co := w.ConnectionOptions; co != nil {
		resp.ConnectionOptions = &expectation.ConnectionOptions{
			SuppressContentLengthHeader: co.SuppressContentLengthHeader,
			ContentLengthHeaderOverride: co.ContentLengthHeaderOverride,
			SuppressConnectionHeader:    co.SuppressConnectionHeader,
			ChunkSize:                   co.ChunkSize,
			KeepAliveOverride:           co.KeepAliveOverride,
			CloseSocket:                 co.CloseSocket,
			CloseSocketDelay:            decodeDelay(co.CloseSocketDelay),
		}
	}
	if resp.Delay != nil && !resp.Delay.TimeUnit.Valid() {
		return nil, fmt.Errorf("delay: unknown time unit %q", resp.Delay.TimeUnit)
	}
	return resp, nil
}

// DecodeOpenAPIExpectation decodes the body of an OpenAPI registration.
func DecodeOpenAPIExpectation(data []byte) (*expectation.OpenAPIExpectation, error) {
	var w wireOpenAPIExpectation
	if err := strictUnmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("invalid openapi expectation: %w", err)
	}
	if isNull(w.SpecURLOrPayload) {
		return nil, errors.New("invalid openapi expectation: specUrlOrPayload is required")
	}
	spec, err := stringOrDocument(w.SpecURLOrPayload)
	if err != nil {
		return nil, fmt.Errorf("invalid specUrlOrPayload: %w", err)
	}
	return &expectation.OpenAPIExpectation{SpecURLOrPayload: spec, OperationsAndResponses: w.OperationsAndResponses}, nil
}

// DecodeExpectationID returns the id of an {"id": ...} object. ok is false for
// any other shape.
func DecodeExpectationID(data []byte) (id string, ok bool) {
	members, err := objectMembers(data)
	if err != nil || len(members) != 1 || members[0].key != "id" {
		return "", false
	}
	if err := json.Unmarshal(members[0].value, &id); err != nil {
		return "", false
	}
	return id, id != ""
}

var bodyTypes = map[string]expectation.BodyType{
	"BINARY":      expectation.BodyBinary,
	"JSON":        expectation.BodyJSON,
	"JSON_SCHEMA": expectation.BodyJSONSchema,
	"JSON_PATH":   expectation.BodyJSONPath,
	"PARAMETERS":  expectation.BodyParameters,
	"REGEX":       expectation.BodyRegex,
	"STRING":      expectation.BodyString,
	"XML":         expectation.BodyXML,
	"XML_SCHEMA":  expectation.BodyXMLSchema,
	"XPATH":       expectation.BodyXPath,
}

type wireBody struct {
	Not         bool            `json:"not,omitempty"`
	Type        string          `json:"type"`
	ContentType string          `json:"contentType,omitempty"`
	Base64Bytes string          `json:"base64Bytes,omitempty"`
	JSON        json.RawMessage `json:"json,omitempty"`
	MatchType   string          `json:"matchType,omitempty"`
	JSONSchema  json.RawMessage `json:"jsonSchema,omitempty"`
	JSONPath    string          `json:"jsonPath,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Regex       string          `json:"regex,omitempty"`
	String      string          `json:"string,omitempty"`
	SubString   bool            `json:"subString,omitempty"`
	XML         string          `json:"xml,omitempty"`
	XMLSchema   string          `json:"xmlSchema,omitempty"`
	XPath       string          `json:"xpath,omitempty"`
}

// typedBody returns the typed body in raw, or ok=false when raw is a bare
// literal (a string, an array or an object without a known type tag).
func typedBody(raw json.RawMessage) (w wireBody, ok bool, err error) {
	if firstByte(raw) != '{' {
		return w, false, nil
	}
	var probe struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return w, false, err
	}
	var tag string
	if json.Unmarshal(probe.Type, &tag) != nil {
		return w, false, nil
	}
	if _, known := bodyTypes[strings.ToUpper(tag)]; !known {
		return w, false, nil
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return w, false, err
	}
	w.Type = strings.ToUpper(w.Type)
	return w, true, nil
}

func decodeBody(raw json.RawMessage) (*expectation.Body, error) {
	w, typed, err := typedBody(raw)
	if err != nil {
		return nil, err
	}
	if !typed {
		return bareBody(raw)
	}

	b := &expectation.Body{Type: bodyTypes[w.Type], Not: w.Not, ContentType: w.ContentType}
	switch b.Type {
	case expectation.BodyBinary:
		if b.Bytes, err = base64.StdEncoding.DecodeString(w.Base64Bytes); err != nil {
			return nil, fmt.Errorf("invalid base64Bytes: %w", err)
		}
	case expectation.BodyJSON:
		if b.JSON, err = stringOrDocument(w.JSON); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		b.MatchType = expectation.JSONMatchType(strings.ToUpper(w.MatchType))
		if b.MatchType != "" && b.MatchType != expectation.MatchStrict && b.MatchType != expectation.MatchOnlyMatchingFields {
			return nil, fmt.Errorf("unknown matchType %q", w.MatchType)
		}
	case expectation.BodyJSONSchema:
		if b.JSONSchema, err = stringOrDocument(w.JSONSchema); err != nil {
			return nil, fmt.Errorf("invalid jsonSchema: %w", err)
		}
	case expectation.BodyJSONPath:
		b.JSONPath = w.JSONPath
	case expectation.BodyParameters:
		if b.Parameters, err = decodeMultiValues(w.Parameters); err != nil {
			return nil, fmt.Errorf("invalid parameters: %w", err)
		}
	case expectation.BodyRegex:
		b.Regex = w.Regex
	case expectation.BodyString:
		b.String, b.SubString = w.String, w.SubString
	case expectation.BodyXML:
		b.XML = w.XML
	case expectation.BodyXMLSchema:
		b.XMLSchema = w.XMLSchema
	case expectation.BodyXPath:
		b.XPath = w.XPath
	}
	return b, nil
}

// bareBody decodes a body literal: objects and arrays are JSON, strings that
// parse as a JSON object or array are JSON, other strings match exactly.
func bareBody(raw json.RawMessage) (*expectation.Body, error) {
	switch firstByte(raw) {
	case '{', '[':
		return &expectation.Body{Type: expectation.BodyJSON, JSON: string(raw)}, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if looksLikeJSONDocument(s) {
			return &expectation.Body{Type: expectation.BodyJSON, JSON: s}, nil
		}
		return &expectation.Body{Type: expectation.BodyString, String: s}, nil
	}
	return nil, fmt.Errorf("unsupported body literal %s", truncate(raw))
}

// concreteBody returns the bytes a body value stands for and its content type.
func concreteBody(raw json.RawMessage) ([]byte, string, error) {
	w, typed, err := typedBody(raw)
	if err != nil {
		return nil, "", err
	}
	if !typed {
		switch firstByte(raw) {
		case '"':
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, "", err
			}
			return []byte(s), "", nil
		case '{', '[':
			return compactJSON(raw), "application/json", nil
		}
		return nil, "", fmt.Errorf("unsupported body literal %s", truncate(raw))
	}

	contentType := w.ContentType
	withDefault := func(def string) string {
		if contentType != "" {
			return contentType
		}
		return def
	}
	switch bodyTypes[w.Type] {
	case expectation.BodyBinary:
		b, err := base64.StdEncoding.DecodeString(w.Base64Bytes)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64Bytes: %w", err)
		}
		return b, withDefault("application/octet-stream"), nil
	case expectation.BodyJSON:
		s, err := stringOrDocument(w.JSON)
		if err != nil {
			return nil, "", err
		}
		return []byte(s), withDefault("application/json"), nil
	case expectation.BodyXML:
		return []byte(w.XML), withDefault("application/xml"), nil
	case expectation.BodyParameters:
		fields, err := decodeFields(w.Parameters)
		if err != nil {
			return nil, "", err
		}
		form := url.Values{}
		for _, f := range fields {
			form[f.Name] = append(form[f.Name], f.Values...)
		}
		return []byte(form.Encode()), withDefault("application/x-www-form-urlencoded"), nil
	case expectation.BodyString:
		return []byte(w.String), contentType, nil
	}
	return nil, "", fmt.Errorf("body type %s has no concrete value", w.Type)
}

func decodeStringMatcher(raw json.RawMessage) (*expectation.StringMatcher, error) {
	switch firstByte(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return nottable(s), nil
	case '{':
		var w wireStringMatcher
		if err := strictUnmarshal(raw, &w); err != nil {
			return nil, err
		}
		m := &expectation.StringMatcher{Not: w.Not, ParameterStyle: expectation.ParameterStyle(strings.ToUpper(w.ParameterStyle))}
		if w.Value != nil {
			m.Value = *w.Value
		}
		m.Optional = truthy(w.Optional)
		if !isNull(w.Schema) {
			doc, err := stringOrDocument(w.Schema)
			if err != nil {
				return nil, fmt.Errorf("invalid schema: %w", err)
			}
			m.Schema = []byte(doc)
		}
		if !m.ParameterStyle.Valid() {
			return nil, fmt.Errorf("unknown parameterStyle %q", w.ParameterStyle)
		}
		return m, nil
	case 't', 'f', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		// numbers and booleans match their literal text
		return &expectation.StringMatcher{Value: string(bytes.TrimSpace(raw))}, nil
	}
	return nil, fmt.Errorf("expected string or matcher object, got %s", truncate(raw))
}

// nottable reads the "!" (negated) and "?" (optional) prefixes of a plain string.
func nottable(s string) *expectation.StringMatcher {
	m := &expectation.StringMatcher{Value: s}
	if len(s) > 1 {
		switch s[0] {
		case '!':
			m.Not, m.Value = true, s[1:]
		case '?':
			m.Optional, m.Value = true, s[1:]
		}
	}
	return m
}

// decodeMultiValues accepts both the array-of-pairs and the mapping form of a
// keyed collection.
func decodeMultiValues(raw json.RawMessage) (expectation.MultiValues, error) {
	if isNull(raw) {
		return nil, nil
	}

	switch firstByte(raw) {
	case '[':
		var pairs []wireKeyValues
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return nil, err
		}
		out := make(expectation.MultiValues, 0, len(pairs))
		for _, p := range pairs {
			name, err := decodeStringMatcher(p.Name)
			if err != nil {
				return nil, fmt.Errorf("name: %w", err)
			}
			km := expectation.KeyMatcher{Name: *name, Style: name.ParameterStyle}
			values := p.Values
			if !isNull(p.Value) {
				values = append(values, p.Value)
			}
			if km.Values, err = decodeValueList(values); err != nil {
				return nil, fmt.Errorf("key %q: %w", name.Value, err)
			}
			out = append(out, km)
		}
		return out, nil

	case '{':
		members, err := objectMembers(raw)
		if err != nil {
			return nil, err
		}
		out := make(expectation.MultiValues, 0, len(members))
		for _, m := range members {
			km := expectation.KeyMatcher{Name: *nottable(m.key)}
			switch firstByte(m.value) {
			case '[':
				var values []json.RawMessage
				if err := json.Unmarshal(m.value, &values); err != nil {
					return nil, fmt.Errorf("key %q: %w", m.key, err)
				}
				if km.Values, err = decodeValueList(values); err != nil {
					return nil, fmt.Errorf("key %q: %w", m.key, err)
				}
			case '{':
				if hasMember(m.value, "values") {
					var styled wireStyledValues
					if err := json.Unmarshal(m.value, &styled); err != nil {
						return nil, fmt.Errorf("key %q: %w", m.key, err)
					}
					km.Style = expectation.ParameterStyle(strings.ToUpper(styled.ParameterStyle))
					if !km.Style.Valid() {
						return nil, fmt.Errorf("key %q: unknown parameterStyle %q", m.key, styled.ParameterStyle)
					}
					if km.Values, err = decodeValueList(styled.Values); err != nil {
						return nil, fmt.Errorf("key %q: %w", m.key, err)
					}
					break
				}
				fallthrough
			default:
				v, err := decodeStringMatcher(m.value)
				if err != nil {
					return nil, fmt.Errorf("key %q: %w", m.key, err)
				}
				km.Values = []expectation.StringMatcher{*v}
			}
			out = append(out, km)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected array or object, got %s", truncate(raw))
}

func decodeValueList(values []json.RawMessage) ([]expectation.StringMatcher, error) {
	out := make([]expectation.StringMatcher, 0, len(values))
	for _, raw := range values {
		v, err := decodeStringMatcher(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// decodeFields decodes a keyed collection of concrete values.
func decodeFields(raw json.RawMessage) (expectation.Fields, error) {
	mv, err := decodeMultiValues(raw)
	if err != nil || mv == nil {
		return nil, err
	}
	out := make(expectation.Fields, 0, len(mv))
	for _, km := range mv {
		f := expectation.Field{Name: km.Name.Value}
		for _, v := range km.Values {
			f.Values = append(f.Values, v.Value)
		}
		out = append(out, f)
	}
	return out, nil
}

type member struct {
	key   string
	value json.RawMessage
}

// objectMembers returns the members of a JSON object in document order.
func objectMembers(raw []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected object")
	}
	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, member{key: key, value: v})
	}
	return out, nil
}

func hasMember(raw json.RawMessage, key string) bool {
	members, err := objectMembers(raw)
	if err != nil {
		return false
	}
	for _, m := range members {
		if m.key == key {
			return true
		}
	}
	return false
}

func splitArray(data []byte) ([]json.RawMessage, error) {
	if firstByte(data) == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("invalid expectation array: %w", err)
		}
		return raws, nil
	}
	if firstByte(data) != '{' {
		return nil, errors.New("expected an expectation object or array")
	}
	return []json.RawMessage{data}, nil
}

// strictUnmarshal decodes data into v, rejecting unknown fields.
func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// stringOrDocument returns a JSON string as-is and any other JSON value as its text.
func stringOrDocument(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	if firstByte(raw) == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	return string(compactJSON(raw)), nil
}

func plainString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	m, err := decodeStringMatcher(raw)
	if err != nil {
		return "", err
	}
	return m.Value, nil
}

func truthy(raw json.RawMessage) bool {
	switch s := string(bytes.TrimSpace(raw)); s {
	case "", "null", "false", "0":
		return false
	}
	return true
}

func looksLikeJSONDocument(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" || (t[0] != '{' && t[0] != '[') {
		return false
	}
	return json.Valid([]byte(t))
}

func compactJSON(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func firstByte(raw []byte) byte {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return 0
	}
	return t[0]
}

func truncate(raw []byte) string {
	const max = 40
	t := bytes.TrimSpace(raw)
	if len(t) > max {
		return string(t[:max]) + "..."
	}
	return string(t)
}
