package expectation

import (
	"net"
	"strconv"
	"strings"
)

// RequestDefinition is either a *RequestMatcher or an *OpenAPIDefinition.
type RequestDefinition interface {
	isRequestDefinition()
}

// RequestMatcher constrains an incoming request. Nil fields are wildcards.
type RequestMatcher struct {
	Method                *StringMatcher
	Path                  *StringMatcher
	PathParameters        MultiValues
	QueryStringParameters MultiValues
	Headers               MultiValues
	Cookies               MultiValues
	Body                  *Body
	Secure                *bool
	KeepAlive             *bool
	SocketAddress         *SocketAddress
}

func (*RequestMatcher) isRequestDefinition() {}

// OpenAPIDefinition references one operation (or all operations when OperationID
// is empty) of an OpenAPI document given by URL, file path or inline payload.
type OpenAPIDefinition struct {
	SpecURLOrPayload string
	OperationID      string
}

func (*OpenAPIDefinition) isRequestDefinition() {}

// SocketAddress identifies the host, port and scheme a request targets.
type SocketAddress struct {
	Host   string
	Port   int
	Scheme Scheme
}

// Scheme is the transport scheme of a socket address or forward target.
type Scheme string

const (
	SchemeHTTP  Scheme = "HTTP"
	SchemeHTTPS Scheme = "HTTPS"
)

// ParseSocketAddress derives a socket address from a Host header value. A
// missing port defaults to 80, or 443 when secure. An empty hostport yields nil.
func ParseSocketAddress(hostport string, secure bool) *SocketAddress {
	if hostport == "" {
		return nil
	}
	sa := &SocketAddress{Scheme: SchemeHTTP, Port: 80}
	if secure {
		sa.Scheme = SchemeHTTPS
		sa.Port = 443
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		sa.Host = strings.Trim(hostport, "[]")
		return sa
	}
	sa.Host = host
	if p, err := strconv.Atoi(port); err == nil {
		sa.Port = p
	}
	return sa
}

// StringMatcher matches a single string value, either literally/by regex or
// against a JSON Schema.
type StringMatcher struct {
	Value          string
	Not            bool
	Optional       bool
	Schema         []byte
	ParameterStyle ParameterStyle
}

// String returns a matcher for the literal (or regex) value s.
func String(s string) *StringMatcher {
	return &StringMatcher{Value: s}
}

// NotString returns a negated matcher for s.
func NotString(s string) *StringMatcher {
	return &StringMatcher{Value: s, Not: true}
}

// ParameterStyle governs how one raw value decodes into several logical values.
type ParameterStyle string

const (
	StyleSimple                 ParameterStyle = "SIMPLE"
	StyleSimpleExploded         ParameterStyle = "SIMPLE_EXPLODED"
	StyleLabel                  ParameterStyle = "LABEL"
	StyleLabelExploded          ParameterStyle = "LABEL_EXPLODED"
	StyleMatrix                 ParameterStyle = "MATRIX"
	StyleMatrixExploded         ParameterStyle = "MATRIX_EXPLODED"
	StyleForm                   ParameterStyle = "FORM"
	StyleFormExploded           ParameterStyle = "FORM_EXPLODED"
	StyleSpaceDelimited         ParameterStyle = "SPACE_DELIMITED"
	StyleSpaceDelimitedExploded ParameterStyle = "SPACE_DELIMITED_EXPLODED"
	StylePipeDelimited          ParameterStyle = "PIPE_DELIMITED"
	StylePipeDelimitedExploded  ParameterStyle = "PIPE_DELIMITED_EXPLODED"
	StyleDeepObject             ParameterStyle = "DEEP_OBJECT"
)

// Valid reports whether s is empty or one of the known styles.
func (s ParameterStyle) Valid() bool {
	switch s {
	case "", StyleSimple, StyleSimpleExploded, StyleLabel, StyleLabelExploded,
		StyleMatrix, StyleMatrixExploded, StyleForm, StyleFormExploded,
		StyleSpaceDelimited, StyleSpaceDelimitedExploded,
		StylePipeDelimited, StylePipeDelimitedExploded, StyleDeepObject:
		return true
	}
	return false
}

// KeyMatcher constrains the values of one key of a multi-value collection.
type KeyMatcher struct {
	Name   StringMatcher
	Values []StringMatcher
	Style  ParameterStyle
}

// MultiValues is the canonical form of every keyed collection matcher
// (headers, cookies, query and path parameters, form bodies).
type MultiValues []KeyMatcher

// Key builds a KeyMatcher for name with literal expected values.
func Key(name string, values ...string) KeyMatcher {
	km := KeyMatcher{Name: StringMatcher{Value: name}}
	for _, v := range values {
		km.Values = append(km.Values, StringMatcher{Value: v})
	}
	return km
}

// BodyType tags the variant of a Body matcher.
type BodyType string

const (
	BodyBinary     BodyType = "BINARY"
	BodyJSON       BodyType = "JSON"
	BodyJSONSchema BodyType = "JSON_SCHEMA"
	BodyJSONPath   BodyType = "JSON_PATH"
	BodyParameters BodyType = "PARAMETERS"
	BodyRegex      BodyType = "REGEX"
	BodyString     BodyType = "STRING"
	BodyXML        BodyType = "XML"
	BodyXMLSchema  BodyType = "XML_SCHEMA"
	BodyXPath      BodyType = "XPATH"
)

// JSONMatchType selects strict or partial JSON comparison.
type JSONMatchType string

const (
	MatchStrict             JSONMatchType = "STRICT"
	MatchOnlyMatchingFields JSONMatchType = "ONLY_MATCHING_FIELDS"
)

// Body is a tagged body matcher. Only the fields of the variant named by Type are read.
type Body struct {
	Type        BodyType
	Not         bool
	ContentType string

	Bytes      []byte // BINARY, decoded from base64
	JSON       string
	MatchType  JSONMatchType // "" defers to the engine default
	JSONSchema string
	JSONPath   string
	Parameters MultiValues
	Regex      string
	String     string
	SubString  bool
	XML        string
	XMLSchema  string
	XPath      string
}
