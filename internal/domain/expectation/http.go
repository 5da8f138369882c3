package expectation

import (
	"strings"
	"time"
)

// Field is one key of an ordered multi-map with its values.
type Field struct {
	Name   string
	Values []string
}

// Fields is an ordered multi-map (headers, cookies, query and path parameters).
type Fields []Field

// Get returns the values stored under name. fold selects case-insensitive lookup.
func (f Fields) Get(name string, fold bool) []string {
	var out []string
	for _, field := range f {
		if sameName(field.Name, name, fold) {
			out = append(out, field.Values...)
		}
	}
	return out
}

// First returns the first value stored under name, or "".
func (f Fields) First(name string, fold bool) string {
	vals := f.Get(name, fold)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Has reports whether name is present.
func (f Fields) Has(name string, fold bool) bool {
	for _, field := range f {
		if sameName(field.Name, name, fold) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for i, field := range f {
		out[i] = Field{Name: field.Name, Values: append([]string(nil), field.Values...)}
	}
	return out
}

// Map flattens f into a map of first values, keyed as stored.
func (f Fields) Map() map[string]string {
	out := make(map[string]string, len(f))
	for _, field := range f {
		if _, ok := out[field.Name]; ok || len(field.Values) == 0 {
			continue
		}
		out[field.Name] = field.Values[0]
	}
	return out
}

func sameName(a, b string, fold bool) bool {
	if fold {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// Request is a concrete HTTP request: an incoming request, a forwarded request
// or a request override (where empty fields keep the original value).
type Request struct {
	Method                string
	Path                  string
	PathParameters        Fields
	QueryStringParameters Fields
	Headers               Fields
	Cookies               Fields
	Body                  []byte
	Secure                *bool
	KeepAlive             *bool
	SocketAddress         *SocketAddress
	RemoteAddr            string
}

// ContentType returns the request Content-Type header.
func (r *Request) ContentType() string {
	return r.Headers.First("Content-Type", true)
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	out.PathParameters = r.PathParameters.Clone()
	out.QueryStringParameters = r.QueryStringParameters.Clone()
	out.Headers = r.Headers.Clone()
	out.Cookies = r.Cookies.Clone()
	out.Body = append([]byte(nil), r.Body...)
	if r.SocketAddress != nil {
		sa := *r.SocketAddress
		out.SocketAddress = &sa
	}
	return &out
}

// Response is a concrete HTTP response.
type Response struct {
	StatusCode        int
	ReasonPhrase      string
	Headers           Fields
	Cookies           Fields
	Body              []byte
	ContentType       string
	Delay             *Delay
	ConnectionOptions *ConnectionOptions
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Headers = r.Headers.Clone()
	out.Cookies = r.Cookies.Clone()
	out.Body = append([]byte(nil), r.Body...)
	if r.ConnectionOptions != nil {
		co := *r.ConnectionOptions
		out.ConnectionOptions = &co
	}
	return &out
}

// ConnectionOptions tweak how a response is written onto the connection.
type ConnectionOptions struct {
	SuppressContentLengthHeader bool
	ContentLengthHeaderOverride *int
	SuppressConnectionHeader    bool
	ChunkSize                   int
	KeepAliveOverride           *bool
	CloseSocket                 bool
	CloseSocketDelay            *Delay
}

// CloseDelay returns how long to wait before closing the socket.
func (c *ConnectionOptions) CloseDelay() time.Duration {
	if c == nil {
		return 0
	}
	return c.CloseSocketDelay.Duration()
}
