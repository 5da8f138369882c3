package http

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

// buildRequest converts an incoming request into the domain form the matchers
// evaluate. Query parameters and cookies keep their wire order.
func buildRequest(r *http.Request, body []byte) *expectation.Request {
	secure := r.TLS != nil
	keepAlive := !r.Close
	return &expectation.Request{
		Method:                r.Method,
		Path:                  r.URL.Path,
		QueryStringParameters: parseQuery(r.URL.RawQuery),
		Headers:               requestHeaders(r),
		Cookies:               requestCookies(r),
		Body:                  body,
		Secure:                &secure,
		KeepAlive:             &keepAlive,
		SocketAddress:         expectation.ParseSocketAddress(r.Host, secure),
		RemoteAddr:            r.RemoteAddr,
	}
}

func parseQuery(raw string) expectation.Fields {
	var out expectation.Fields
	index := make(map[string]int)
	for part := range strings.SplitSeq(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		key = unescape(key)
		value = unescape(value)
		if i, ok := index[key]; ok {
			out[i].Values = append(out[i].Values, value)
			continue
		}
		index[key] = len(out)
		out = append(out, expectation.Field{Name: key, Values: []string{value}})
	}
	return out
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// requestHeaders returns the headers sorted by name, with the Host header
// restored first (net/http moves it to Request.Host).
func requestHeaders(r *http.Request) expectation.Fields {
	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make(expectation.Fields, 0, len(names)+1)
	if r.Host != "" {
		out = append(out, expectation.Field{Name: "Host", Values: []string{r.Host}})
	}
	for _, name := range names {
		out = append(out, expectation.Field{Name: name, Values: slices.Clone(r.Header[name])})
	}
	return out
}

func requestCookies(r *http.Request) expectation.Fields {
	var out expectation.Fields
	index := make(map[string]int)
	for _, c := range r.Cookies() {
		if i, ok := index[c.Name]; ok {
			out[i].Values = append(out[i].Values, c.Value)
			continue
		}
		index[c.Name] = len(out)
		out = append(out, expectation.Field{Name: c.Name, Values: []string{c.Value}})
	}
	return out
}
