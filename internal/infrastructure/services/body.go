package services

import (
	"bytes"
	"fmt"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/ohler55/ojg/jp"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/domain/match"
)

// compileBody selects the body predicate for the variant named by b.Type and
// applies negation. Compilation failures are configuration errors.
func (c *Compiler) compileBody(b *expectation.Body) (match.Check, error) {
	var (
		pred func(req *expectation.Request) bool
		err  error
	)

	raw := func(p func([]byte) bool) func(*expectation.Request) bool {
		return func(req *expectation.Request) bool { return p(req.Body) }
	}

	switch b.Type {
	case expectation.BodyBinary:
		want := b.Bytes
		pred = raw(func(body []byte) bool { return bytes.Equal(body, want) })

	case expectation.BodyString:
		pred = stringBodyPredicate(b.String, b.SubString, b.ContentType)

	case expectation.BodyRegex:
		var re *regexp.Regexp
		re, err = c.regexes.Compile(b.Regex)
		if err == nil {
			pred = raw(re.Match)
		}

	case expectation.BodyJSON:
		mt := b.MatchType
		if mt == "" {
			mt = c.defaultJSONMatchType
		}
		var p func([]byte) bool
		if p, err = jsonBodyPredicate(b.JSON, mt); err == nil {
			pred = raw(p)
		}

	case expectation.BodyJSONSchema:
		sch, serr := compileSchema([]byte(b.JSONSchema))
		if err = serr; err == nil {
			pred = raw(schemaBodyPredicate(sch))
		}

	case expectation.BodyJSONPath:
		var p func([]byte) bool
		if p, err = jsonPathBodyPredicate(b.JSONPath); err == nil {
			pred = raw(p)
		}

	case expectation.BodyXML:
		var p func([]byte) bool
		if p, err = xmlBodyPredicate(b.XML); err == nil {
			pred = raw(p)
		}

	case expectation.BodyXMLSchema:
		var p func([]byte) bool
		if p, err = xmlSchemaBodyPredicate(b.XMLSchema); err == nil {
			pred = raw(p)
		}

	case expectation.BodyXPath:
		var p func([]byte) bool
		if p, err = xpathBodyPredicate(b.XPath); err == nil {
			pred = raw(p)
		}

	case expectation.BodyParameters:
		var mv func(expectation.Fields) bool
		if mv, err = c.compileMultiValues(b.Parameters, false); err == nil {
			pred = func(req *expectation.Request) bool {
				fields, ok := formFields(req.Body)
				return ok && mv(fields)
			}
		}

	default:
		err = fmt.Errorf("unknown body type %q", b.Type)
	}
	if err != nil {
		return nil, err
	}

	not := b.Not
	return func(s *match.Subject) bool {
		return pred(s.Request) != not
	}, nil
}

// stringBodyPredicate compares the body decoded with the charset of the matcher
// content type, or of the request when the matcher has none.
func stringBodyPredicate(expected string, substring bool, contentType string) func(*expectation.Request) bool {
	return func(req *expectation.Request) bool {
		ct := contentType
		if ct == "" {
			ct = req.ContentType()
		}
		actual := decodeCharset(req.Body, ct)
		if substring {
			return strings.Contains(actual, expected)
		}
		return actual == expected
	}
}

// decodeCharset decodes body using the charset parameter of contentType.
// Unknown charsets and undecodable bodies are returned as-is.
func decodeCharset(body []byte, contentType string) string {
	if contentType == "" {
		return string(body)
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return string(body)
	}
	enc, err := htmlindex.Get(params["charset"])
	if err != nil {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// jsonPathBodyPredicate matches when the expression selects at least one value.
func jsonPathBodyPredicate(path string) (func([]byte) bool, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid json path %q: %w", path, err)
	}
	return func(body []byte) bool {
		data, err := decodeJSONValue(body)
		if err != nil {
			return false
		}
		return len(expr.Get(data)) > 0
	}, nil
}

// formFields parses an application/x-www-form-urlencoded body, keeping key order.
func formFields(body []byte) (expectation.Fields, bool) {
	var fields expectation.Fields
	index := make(map[string]int)
	for _, pair := range strings.Split(string(body), "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, false
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, false
		}
		if i, ok := index[key]; ok {
			fields[i].Values = append(fields[i].Values, value)
			continue
		}
		index[key] = len(fields)
		fields = append(fields, expectation.Field{Name: key, Values: []string{value}})
	}
	return fields, true
}
