package expectation

// Action is the behaviour executed when an expectation wins selection.
// Implementations: *ResponseAction, *TemplateAction, *ClassCallbackAction,
// *ObjectCallbackAction, *ForwardAction, *OverrideForwardAction, *ErrorAction.
type Action interface {
	// Kind names the action for logs and traces.
	Kind() string
	// ActionDelay returns the delay applied before the outcome is produced.
	ActionDelay() *Delay
}

// Target tells template and callback actions what they produce.
type Target string

const (
	TargetResponse Target = "response"
	TargetForward  Target = "forward"
)

// ResponseAction answers with a static response.
type ResponseAction struct {
	Response Response
}

func (a *ResponseAction) Kind() string        { return "httpResponse" }
func (a *ResponseAction) ActionDelay() *Delay { return a.Response.Delay }

// TemplateEngine names a template language.
type TemplateEngine string

const (
	EngineJavaScript TemplateEngine = "JAVASCRIPT"
	EngineVelocity   TemplateEngine = "VELOCITY"
)

// TemplateAction renders a template per request into a response or a forward request.
type TemplateAction struct {
	Target   Target
	Engine   TemplateEngine
	Template string
	Delay    *Delay
}

func (a *TemplateAction) Kind() string {
	if a.Target == TargetForward {
		return "httpForwardTemplate"
	}
	return "httpResponseTemplate"
}
func (a *TemplateAction) ActionDelay() *Delay { return a.Delay }

// ClassCallbackAction delegates to a callback registered under CallbackClass.
type ClassCallbackAction struct {
	Target        Target
	CallbackClass string
	Delay         *Delay
}

func (a *ClassCallbackAction) Kind() string {
	if a.Target == TargetForward {
		return "httpForwardClassCallback"
	}
	return "httpResponseClassCallback"
}
func (a *ClassCallbackAction) ActionDelay() *Delay { return a.Delay }

// ObjectCallbackAction delegates to a connected client identified by ClientID.
type ObjectCallbackAction struct {
	Target           Target
	ClientID         string
	ResponseCallback bool
	Delay            *Delay
}

func (a *ObjectCallbackAction) Kind() string {
	if a.Target == TargetForward {
		return "httpForwardObjectCallback"
	}
	return "httpResponseObjectCallback"
}
func (a *ObjectCallbackAction) ActionDelay() *Delay { return a.Delay }

// ForwardAction proxies the request to Host:Port.
type ForwardAction struct {
	Host   string
	Port   int
	Scheme Scheme
	Delay  *Delay
}

func (a *ForwardAction) Kind() string        { return "httpForward" }
func (a *ForwardAction) ActionDelay() *Delay { return a.Delay }

// OverrideForwardAction forwards the request after overriding/modifying it and
// post-processes the upstream response.
type OverrideForwardAction struct {
	RequestOverride  *Request
	RequestModifier  *RequestModifier
	ResponseOverride *Response
	ResponseModifier *ResponseModifier
	Delay            *Delay
}

func (a *OverrideForwardAction) Kind() string        { return "httpOverrideForwardedRequest" }
func (a *OverrideForwardAction) ActionDelay() *Delay { return a.Delay }

// ErrorAction drops the connection or writes raw bytes.
type ErrorAction struct {
	DropConnection bool
	ResponseBytes  []byte
	Delay          *Delay
}

func (a *ErrorAction) Kind() string        { return "httpError" }
func (a *ErrorAction) ActionDelay() *Delay { return a.Delay }
