package forward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/ports"
)

var _ ports.Forwarder = (*Client)(nil)

// DefaultMaxBodySize caps upstream response bodies (10MB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// ErrNoUpstream indicates a request names neither a socket address nor a Host header.
var ErrNoUpstream = errors.New("no upstream host")

// hopByHop lists headers that describe a single connection and are never forwarded.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client forwards requests upstream over net/http.
type Client struct {
	http        *http.Client
	maxBodySize int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Redirect handling is
// left as configured on c.
func WithHTTPClient(c *http.Client) Option {
	return func(fc *Client) { fc.http = c }
}

// WithMaxBodySize caps how much of an upstream body is read.
func WithMaxBodySize(n int64) Option {
	return func(fc *Client) { fc.maxBodySize = n }
}

// New creates a Client. Redirects are returned to the caller rather than followed.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:                 nil,
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				MaxIdleConnsPerHost:   16,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Forward sends req to its upstream and returns the upstream response.
func (c *Client) Forward(ctx context.Context, req *expectation.Request) (*expectation.Response, error) {
	target, err := TargetURL(req)
	if err != nil {
		return nil, err
	}

	out, err := http.NewRequestWithContext(ctx, methodOf(req), target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	copyRequestHeaders(out.Header, req)
	out.Host = target.Host
	if req.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			out.Header.Add("X-Forwarded-For", host)
		}
	}

	resp, err := c.http.Do(out)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", target.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	return &expectation.Response{
		StatusCode:   resp.StatusCode,
		ReasonPhrase: reasonPhrase(resp),
		Headers:      responseHeaders(resp.Header),
		Body:         body,
	}, nil
}

// TargetURL builds the upstream URL of req. The socket address wins over the
// Host header; the scheme defaults to https for secure requests.
func TargetURL(req *expectation.Request) (*url.URL, error) {
	u := &url.URL{Scheme: "http", Path: req.Path}
	if req.Secure != nil && *req.Secure {
		u.Scheme = "https"
	}
	if u.Path == "" {
		u.Path = "/"
	}

	switch sa := req.SocketAddress; {
	case sa != nil && sa.Host != "":
		if strings.EqualFold(string(sa.Scheme), string(expectation.SchemeHTTPS)) {
			u.Scheme = "https"
		} else if sa.Scheme != "" {
			u.Scheme = "http"
		}
		u.Host = sa.Host
		if sa.Port > 0 && !defaultPort(u.Scheme, sa.Port) {
			u.Host = net.JoinHostPort(sa.Host, strconv.Itoa(sa.Port))
		}
	case req.Headers.First("Host", true) != "":
		u.Host = req.Headers.First("Host", true)
	default:
		return nil, ErrNoUpstream
	}

	u.RawQuery = encodeQuery(req.QueryStringParameters)
	return u, nil
}

func defaultPort(scheme string, port int) bool {
	return (scheme == "http" && port == 80) || (scheme == "https" && port == 443)
}

// encodeQuery keeps the parameter order of fields, unlike url.Values.Encode.
func encodeQuery(fields expectation.Fields) string {
	var b strings.Builder
	for _, f := range fields {
		for _, v := range f.Values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(f.Name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func methodOf(req *expectation.Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(req.Method)
}

// copyRequestHeaders copies the forwardable headers of req. Headers named by
// Connection, hop-by-hop headers, Host, Content-Length and invalid fields are dropped.
func copyRequestHeaders(dst http.Header, req *expectation.Request) {
	connection := req.Headers.Get("Connection", true)
	for _, f := range req.Headers {
		if !forwardable(f.Name, connection) || strings.EqualFold(f.Name, "Host") || strings.EqualFold(f.Name, "Content-Length") {
			continue
		}
		for _, v := range f.Values {
			if httpguts.ValidHeaderFieldValue(v) {
				dst.Add(f.Name, v)
			}
		}
	}

	if len(req.Cookies) > 0 && dst.Get("Cookie") == "" {
		for _, c := range req.Cookies {
			for _, v := range c.Values {
				dst.Add("Cookie", (&http.Cookie{Name: c.Name, Value: v}).String())
			}
		}
	}
}

func forwardable(name string, connection []string) bool {
	if !httpguts.ValidHeaderFieldName(name) {
		return false
	}
	if slices.ContainsFunc(hopByHop, func(h string) bool { return strings.EqualFold(h, name) }) {
		return false
	}
	return !httpguts.HeaderValuesContainsToken(connection, name)
}

// responseHeaders converts upstream headers into sorted fields without hop-by-hop entries.
func responseHeaders(h http.Header) expectation.Fields {
	connection := h.Values("Connection")
	names := make([]string, 0, len(h))
	for name := range h {
		if forwardable(name, connection) {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	out := make(expectation.Fields, 0, len(names))
	for _, name := range names {
		out = append(out, expectation.Field{Name: name, Values: append([]string(nil), h[name]...)})
	}
	return out
}

func reasonPhrase(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, code))
}
