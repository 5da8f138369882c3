package services

import (
	"strings"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

// Modifier applies overrides and modifiers to requests and responses. Every
// method returns a new value and leaves its inputs untouched.
type Modifier struct {
	regexes *RegexCache
}

// NewModifier creates a Modifier sharing rc for path patterns.
func NewModifier(rc *RegexCache) *Modifier {
	if rc == nil {
		rc = NewRegexCache(regexCacheSize)
	}
	return &Modifier{regexes: rc}
}

// ApplyFields applies add, then replace, then remove. add appends values to an
// existing key, or overwrites them when single is set; replace only touches
// keys already present.
func ApplyFields(m *expectation.FieldsModifier, base expectation.Fields, fold, single bool) expectation.Fields {
	out := base.Clone()
	if m == nil {
		return out
	}

	for _, add := range m.Add {
		i := indexOf(out, add.Name, fold)
		switch {
		case i < 0:
			out = append(out, expectation.Field{Name: add.Name, Values: append([]string(nil), add.Values...)})
		case single:
			out[i].Values = append([]string(nil), add.Values...)
		default:
			out[i].Values = append(out[i].Values, add.Values...)
		}
	}

	for _, rep := range m.Replace {
		for i := range out {
			if sameKey(out[i].Name, rep.Name, fold) {
				out[i].Values = append([]string(nil), rep.Values...)
			}
		}
	}

	for _, name := range m.Remove {
		kept := out[:0]
		for _, f := range out {
			if !sameKey(f.Name, name, fold) {
				kept = append(kept, f)
			}
		}
		out = kept
	}
	return out
}

// ApplyPath substitutes the first match of the modifier pattern in path.
func (m *Modifier) ApplyPath(pm *expectation.PathModifier, path string) string {
	if pm == nil || pm.Regex == "" {
		return path
	}
	re, err := m.regexes.Compile(pm.Regex)
	if err != nil {
		return path
	}
	loc := re.FindStringSubmatchIndex(path)
	if loc == nil {
		return path
	}
	replaced := re.ExpandString(nil, pm.Substitution, path, loc)
	return path[:loc[0]] + string(replaced) + path[loc[1]:]
}

// ModifyRequest applies a request modifier.
func (m *Modifier) ModifyRequest(rm *expectation.RequestModifier, req *expectation.Request) *expectation.Request {
	out := req.Clone()
	if rm == nil {
		return out
	}
	out.Path = m.ApplyPath(rm.Path, out.Path)
	out.QueryStringParameters = ApplyFields(rm.QueryStringParameters, out.QueryStringParameters, false, false)
	out.Headers = ApplyFields(rm.Headers, out.Headers, true, false)
	out.Cookies = ApplyFields(rm.Cookies, out.Cookies, false, true)
	return out
}

// ModifyResponse applies a response modifier.
func (m *Modifier) ModifyResponse(rm *expectation.ResponseModifier, resp *expectation.Response) *expectation.Response {
	out := resp.Clone()
	if rm == nil {
		return out
	}
	out.Headers = ApplyFields(rm.Headers, out.Headers, true, false)
	out.Cookies = ApplyFields(rm.Cookies, out.Cookies, false, true)
	return out
}

// Retarget keeps the socket address of out in step with its Host header. When
// out names another Host than origin but still carries origin's socket address
// (or none), the address is rebuilt from that Host. An explicitly changed
// socket address wins.
func Retarget(origin, out *expectation.Request) *expectation.Request {
	if origin == nil || out == nil {
		return out
	}
	host := out.Headers.First("Host", true)
	if host == "" || strings.EqualFold(host, origin.Headers.First("Host", true)) {
		return out
	}
	if out.SocketAddress != nil && (origin.SocketAddress == nil || *out.SocketAddress != *origin.SocketAddress) {
		return out
	}
	out.SocketAddress = expectation.ParseSocketAddress(host, out.Secure != nil && *out.Secure)
	return out
}

// OverrideRequest replaces the fields of req that override sets.
func OverrideRequest(req, override *expectation.Request) *expectation.Request {
	out := req.Clone()
	if override == nil {
		return out
	}
	if override.Method != "" {
		out.Method = override.Method
	}
	if override.Path != "" {
		out.Path = override.Path
	}
	out.QueryStringParameters = overrideFields(out.QueryStringParameters, override.QueryStringParameters, false)
	out.Headers = overrideFields(out.Headers, override.Headers, true)
	out.Cookies = overrideFields(out.Cookies, override.Cookies, false)
	if override.Body != nil {
		out.Body = append([]byte(nil), override.Body...)
	}
	if override.Secure != nil {
		v := *override.Secure
		out.Secure = &v
	}
	if override.KeepAlive != nil {
		v := *override.KeepAlive
		out.KeepAlive = &v
	}
	if override.SocketAddress != nil {
		sa := *override.SocketAddress
		out.SocketAddress = &sa
	}
	return out
}

// OverrideResponse replaces the fields of resp that override sets.
func OverrideResponse(resp, override *expectation.Response) *expectation.Response {
	out := resp.Clone()
	if override == nil {
		return out
	}
	if override.StatusCode != 0 {
		out.StatusCode = override.StatusCode
	}
	if override.ReasonPhrase != "" {
		out.ReasonPhrase = override.ReasonPhrase
	}
	out.Headers = overrideFields(out.Headers, override.Headers, true)
	out.Cookies = overrideFields(out.Cookies, override.Cookies, false)
	if override.Body != nil {
		out.Body = append([]byte(nil), override.Body...)
	}
	if override.ContentType != "" {
		out.ContentType = override.ContentType
	}
	if override.ConnectionOptions != nil {
		co := *override.ConnectionOptions
		out.ConnectionOptions = &co
	}
	return out
}

// overrideFields sets every key of override on base, replacing existing values.
func overrideFields(base, override expectation.Fields, fold bool) expectation.Fields {
	if len(override) == 0 {
		return base
	}
	return ApplyFields(&expectation.FieldsModifier{Add: override}, base, fold, true)
}

func indexOf(fields expectation.Fields, name string, fold bool) int {
	for i, f := range fields {
		if sameKey(f.Name, name, fold) {
			return i
		}
	}
	return -1
}

func sameKey(a, b string, fold bool) bool {
	if fold {
		return strings.EqualFold(a, b)
	}
	return a == b
}
