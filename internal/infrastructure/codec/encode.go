package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

// Registered pairs an expectation with its remaining uses for retrieval.
// Remaining < 0 means unlimited.
type Registered struct {
	Expectation *expectation.Expectation
	Remaining   int64
}

// EncodeExpectations renders registered expectations as a JSON array.
func EncodeExpectations(regs []Registered) ([]byte, error) {
	out := make([]wireExpectation, 0, len(regs))
	for _, r := range regs {
		w, err := encodeExpectation(r.Expectation, r.Remaining)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return json.Marshal(out)
}

// EncodeExpectation renders one expectation with its remaining uses.
func EncodeExpectation(exp *expectation.Expectation, remaining int64) ([]byte, error) {
	w, err := encodeExpectation(exp, remaining)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func encodeExpectation(exp *expectation.Expectation, remaining int64) (wireExpectation, error) {
	w := wireExpectation{ID: exp.ID, Priority: exp.Priority}

	unlimited, limited := true, false
	if remaining < 0 {
		w.Times = &wireTimes{Unlimited: &unlimited}
	} else {
		w.Times = &wireTimes{RemainingTimes: int(remaining), Unlimited: &limited}
	}
	if exp.TimeToLive.Unlimited {
		w.TimeToLive = &wireTimeToLive{Unlimited: &unlimited}
	} else {
		w.TimeToLive = &wireTimeToLive{TimeUnit: string(exp.TimeToLive.TimeUnit), TimeToLive: exp.TimeToLive.TimeToLive, Unlimited: &limited}
		if !exp.TimeToLive.EndDate.IsZero() {
			w.TimeToLive.EndDate = exp.TimeToLive.EndDate.UnixMilli()
		}
	}

	var err error
	switch def := exp.Request.(type) {
	case *expectation.RequestMatcher:
		w.HTTPRequest, err = json.Marshal(encodeRequestMatcher(def))
	case *expectation.OpenAPIDefinition:
		w.HTTPRequest, err = json.Marshal(wireRequest{SpecURLOrPayload: encodeDocument(def.SpecURLOrPayload), OperationID: def.OperationID})
	}
	if err != nil {
		return w, err
	}

	switch act := exp.Action.(type) {
	case *expectation.ResponseAction:
		w.HTTPResponse, err = json.Marshal(encodeResponse(&act.Response))
	case *expectation.TemplateAction:
		t := &wireTemplate{TemplateType: string(act.Engine), Template: act.Template, Delay: encodeDelay(act.Delay)}
		if act.Target == expectation.TargetForward {
			w.HTTPForwardTemplate = t
		} else {
			w.HTTPResponseTemplate = t
		}
	case *expectation.ClassCallbackAction:
		cb := &wireClassCallback{CallbackClass: act.CallbackClass, Delay: encodeDelay(act.Delay)}
		if act.Target == expectation.TargetForward {
			w.HTTPForwardClassCallback = cb
		} else {
			w.HTTPResponseClassCallback = cb
		}
	case *expectation.ObjectCallbackAction:
		cb := &wireObjectCallback{ClientID: act.ClientID, ResponseCallback: act.ResponseCallback, Delay: encodeDelay(act.Delay)}
		if act.Target == expectation.TargetForward {
			w.HTTPForwardObjectCallback = cb
		} else {
			w.HTTPResponseObjectCallback = cb
		}
	case *expectation.ForwardAction:
		w.HTTPForward = &wireForward{Host: act.Host, Port: act.Port, Scheme: string(act.Scheme), Delay: encodeDelay(act.Delay)}
	case *expectation.OverrideForwardAction:
		w.HTTPOverrideForwardedRequest, err = encodeOverrideForward(act)
	case *expectation.ErrorAction:
		w.HTTPError = &wireError{
			DropConnection: act.DropConnection,
			ResponseBytes:  base64.StdEncoding.EncodeToString(act.ResponseBytes),
			Delay:          encodeDelay(act.Delay),
		}
	}
	return w, err
}

func encodeOverrideForward(act *expectation.OverrideForwardAction) (*wireOverrideForward, error) {
	w := &wireOverrideForward{Delay: encodeDelay(act.Delay)}
	var err error
	if act.RequestOverride != nil {
		if w.RequestOverride, err = EncodeRequest(act.RequestOverride); err != nil {
			return nil, err
		}
	}
	if act.ResponseOverride != nil {
		if w.ResponseOverride, err = json.Marshal(encodeResponse(act.ResponseOverride)); err != nil {
			return nil, err
		}
	}
	if m := act.RequestModifier; m != nil {
		w.RequestModifier = &wireRequestModifier{
			QueryStringParameters: encodeFieldsModifier(m.QueryStringParameters),
			Headers:               encodeFieldsModifier(m.Headers),
			Cookies:               encodeFieldsModifier(m.Cookies),
		}
		if m.Path != nil {
			w.RequestModifier.Path = &wirePathModifier{Regex: m.Path.Regex, Substitution: m.Path.Substitution}
		}
	}
	if m := act.ResponseModifier; m != nil {
		w.ResponseModifier = &wireResponseModifier{
			Headers: encodeFieldsModifier(m.Headers),
			Cookies: encodeFieldsModifier(m.Cookies),
		}
	}
	return w, nil
}

func encodeFieldsModifier(m *expectation.FieldsModifier) *wireFieldsModifier {
	if m == nil {
		return nil
	}
	return &wireFieldsModifier{Add: encodeFields(m.Add), Replace: encodeFields(m.Replace), Remove: m.Remove}
}

func encodeRequestMatcher(rm *expectation.RequestMatcher) wireRequest {
	w := wireRequest{
		Secure:                rm.Secure,
		KeepAlive:             rm.KeepAlive,
		Method:                encodeStringMatcher(rm.Method),
		Path:                  encodeStringMatcher(rm.Path),
		PathParameters:        encodeMultiValues(rm.PathParameters),
		QueryStringParameters: encodeMultiValues(rm.QueryStringParameters),
		Headers:               encodeMultiValues(rm.Headers),
		Cookies:               encodeMultiValues(rm.Cookies),
		Body:                  encodeBodyMatcher(rm.Body),
	}
	if sa := rm.SocketAddress; sa != nil {
		w.SocketAddress = &wireSocketAddress{Host: sa.Host, Port: sa.Port, Scheme: string(sa.Scheme)}
	}
	return w
}

func encodeStringMatcher(m *expectation.StringMatcher) json.RawMessage {
	if m == nil {
		return nil
	}
	if !m.Not && !m.Optional && len(m.Schema) == 0 && m.ParameterStyle == "" {
		b, _ := json.Marshal(m.Value)
		return b
	}
	w := wireStringMatcher{Not: m.Not, ParameterStyle: string(m.ParameterStyle)}
	if m.Optional {
		w.Optional = json.RawMessage("true")
	}
	if len(m.Schema) > 0 {
		w.Schema = encodeDocument(string(m.Schema))
	} else {
		v := m.Value
		w.Value = &v
	}
	b, _ := json.Marshal(w)
	return b
}

// encodeMultiValues uses the array-of-pairs form so order and negated key
// names survive a round trip.
func encodeMultiValues(mv expectation.MultiValues) json.RawMessage {
	if len(mv) == 0 {
		return nil
	}
	type pair struct {
		Name   json.RawMessage   `json:"name"`
		Values []json.RawMessage `json:"values,omitempty"`
	}
	pairs := make([]pair, 0, len(mv))
	for i := range mv {
		km := &mv[i]
		name := km.Name
		if name.ParameterStyle == "" {
			name.ParameterStyle = km.Style
		}
		p := pair{Name: encodeStringMatcher(&name)}
		for j := range km.Values {
			p.Values = append(p.Values, encodeStringMatcher(&km.Values[j]))
		}
		pairs = append(pairs, p)
	}
	b, _ := json.Marshal(pairs)
	return b
}

func encodeBodyMatcher(b *expectation.Body) json.RawMessage {
	if b == nil {
		return nil
	}
	w := wireBody{Type: string(b.Type), Not: b.Not, ContentType: b.ContentType}
	switch b.Type {
	case expectation.BodyBinary:
		w.Base64Bytes = base64.StdEncoding.EncodeToString(b.Bytes)
	case expectation.BodyJSON:
		w.JSON = encodeDocument(b.JSON)
		w.MatchType = string(b.MatchType)
	case expectation.BodyJSONSchema:
		w.JSONSchema = encodeDocument(b.JSONSchema)
	case expectation.BodyJSONPath:
		w.JSONPath = b.JSONPath
	case expectation.BodyParameters:
		w.Parameters = encodeMultiValues(b.Parameters)
	case expectation.BodyRegex:
		w.Regex = b.Regex
	case expectation.BodyString:
		w.String, w.SubString = b.String, b.SubString
	case expectation.BodyXML:
		w.XML = b.XML
	case expectation.BodyXMLSchema:
		w.XMLSchema = b.XMLSchema
	case expectation.BodyXPath:
		w.XPath = b.XPath
	}
	out, _ := json.Marshal(w)
	return out
}

// EncodeRequest renders a concrete request. Keyed collections use the mapping
// form; a body that is not valid UTF-8 is sent as BINARY.
func EncodeRequest(req *expectation.Request) ([]byte, error) {
	w := wireRequest{
		Secure:                req.Secure,
		KeepAlive:             req.KeepAlive,
		PathParameters:        encodeFields(req.PathParameters),
		QueryStringParameters: encodeFields(req.QueryStringParameters),
		Headers:               encodeFields(req.Headers),
		Cookies:               encodeFields(req.Cookies),
		Body:                  encodeConcreteBody(req.Body, req.ContentType()),
	}
	if req.Method != "" {
		w.Method, _ = json.Marshal(req.Method)
	}
	if req.Path != "" {
		w.Path, _ = json.Marshal(req.Path)
	}
	if sa := req.SocketAddress; sa != nil {
		w.SocketAddress = &wireSocketAddress{Host: sa.Host, Port: sa.Port, Scheme: string(sa.Scheme)}
	}
	return json.Marshal(w)
}

// EncodeResponse renders a concrete response.
func EncodeResponse(resp *expectation.Response) ([]byte, error) {
	return json.Marshal(encodeResponse(resp))
}

func encodeResponse(resp *expectation.Response) wireResponse {
	w := wireResponse{
		StatusCode:   resp.StatusCode,
		ReasonPhrase: resp.ReasonPhrase,
		Headers:      encodeFields(resp.Headers),
		Cookies:      encodeFields(resp.Cookies),
		Body:         encodeConcreteBody(resp.Body, resp.ContentType),
		Delay:        encodeDelay(resp.Delay),
	}
	if co := resp.ConnectionOptions; co != nil {
		w.ConnectionOptions = &wireConnectionOptions{
			SuppressContentLengthHeader: co.SuppressContentLengthHeader,
			ContentLengthHeaderOverride: co.ContentLengthHeaderOverride,
			SuppressConnectionHeader:    co.SuppressConnectionHeader,
			ChunkSize:                   co.ChunkSize,
			KeepAliveOverride:           co.KeepAliveOverride,
			CloseSocket:                 co.CloseSocket,
			CloseSocketDelay:            encodeDelay(co.CloseSocketDelay),
		}
	}
	return w
}

func encodeConcreteBody(body []byte, contentType string) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	var w wireBody
	switch {
	case !utf8.Valid(body):
		w = wireBody{Type: "BINARY", Base64Bytes: base64.StdEncoding.EncodeToString(body), ContentType: contentType}
	case strings.Contains(strings.ToLower(contentType), "json") && json.Valid(body):
		w = wireBody{Type: "JSON", JSON: compactJSON(body), ContentType: contentType}
	default:
		w = wireBody{Type: "STRING", String: string(body), ContentType: contentType}
	}
	out, _ := json.Marshal(w)
	return out
}

// encodeFields writes f as an object of name to values, preserving order.
// Repeated names are merged into the first occurrence.
func encodeFields(f expectation.Fields) json.RawMessage {
	if len(f) == 0 {
		return nil
	}
	var order []string
	merged := make(map[string][]string, len(f))
	for _, field := range f {
		if _, ok := merged[field.Name]; !ok {
			order = append(order, field.Name)
		}
		merged[field.Name] = append(merged[field.Name], field.Values...)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(name)
		values := merged[name]
		if values == nil {
			values = []string{}
		}
		v, _ := json.Marshal(values)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// encodeDocument embeds s as JSON when it is a JSON document, otherwise as a string.
func encodeDocument(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if looksLikeJSONDocument(s) {
		return compactJSON([]byte(s))
	}
	b, _ := json.Marshal(s)
	return b
}

func encodeDelay(d *expectation.Delay) *wireDelay {
	if d == nil {
		return nil
	}
	return &wireDelay{TimeUnit: string(d.TimeUnit), Value: d.Value}
}
