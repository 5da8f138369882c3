// Package codec converts the JSON wire format of expectations, requests and
// responses into domain values and back. Union shapes (string or object keyed
// values, array or map keyed collections, typed or bare bodies) are normalized
// here so nothing downstream branches on the input shape.
package codec

import "encoding/json"

type wireExpectation struct {
	ID                           string               `json:"id,omitempty"`
	Priority                     int                  `json:"priority,omitempty"`
	HTTPRequest                  json.RawMessage      `json:"httpRequest,omitempty"`
	HTTPResponse                 json.RawMessage      `json:"httpResponse,omitempty"`
	HTTPResponseTemplate         *wireTemplate        `json:"httpResponseTemplate,omitempty"`
	HTTPResponseClassCallback    *wireClassCallback   `json:"httpResponseClassCallback,omitempty"`
	HTTPResponseObjectCallback   *wireObjectCallback  `json:"httpResponseObjectCallback,omitempty"`
	HTTPForward                  *wireForward         `json:"httpForward,omitempty"`
	HTTPForwardTemplate          *wireTemplate        `json:"httpForwardTemplate,omitempty"`
	HTTPForwardClassCallback     *wireClassCallback   `json:"httpForwardClassCallback,omitempty"`
	HTTPForwardObjectCallback    *wireObjectCallback  `json:"httpForwardObjectCallback,omitempty"`
	HTTPOverrideForwardedRequest *wireOverrideForward `json:"httpOverrideForwardedRequest,omitempty"`
	HTTPError                    *wireError           `json:"httpError,omitempty"`
	Times                        *wireTimes           `json:"times,omitempty"`
	TimeToLive                   *wireTimeToLive      `json:"timeToLive,omitempty"`
}

type wireRequest struct {
	Secure                *bool              `json:"secure,omitempty"`
	KeepAlive             *bool              `json:"keepAlive,omitempty"`
	Method                json.RawMessage    `json:"method,omitempty"`
	Path                  json.RawMessage    `json:"path,omitempty"`
	PathParameters        json.RawMessage    `json:"pathParameters,omitempty"`
	QueryStringParameters json.RawMessage    `json:"queryStringParameters,omitempty"`
	Body                  json.RawMessage    `json:"body,omitempty"`
	Headers               json.RawMessage    `json:"headers,omitempty"`
	Cookies               json.RawMessage    `json:"cookies,omitempty"`
	SocketAddress         *wireSocketAddress `json:"socketAddress,omitempty"`

	SpecURLOrPayload json.RawMessage `json:"specUrlOrPayload,omitempty"`
	OperationID      string          `json:"operationId,omitempty"`
}

type wireResponse struct {
	Delay             *wireDelay             `json:"delay,omitempty"`
	Body              json.RawMessage        `json:"body,omitempty"`
	Cookies           json.RawMessage        `json:"cookies,omitempty"`
	ConnectionOptions *wireConnectionOptions `json:"connectionOptions,omitempty"`
	Headers           json.RawMessage        `json:"headers,omitempty"`
	StatusCode        int                    `json:"statusCode,omitempty"`
	ReasonPhrase      string                 `json:"reasonPhrase,omitempty"`
}

type wireSocketAddress struct {
	Host   string `json:"host,omitempty"`
	Port   int    `json:"port,omitempty"`
	Scheme string `json:"scheme,omitempty"`
}

type wireDelay struct {
	TimeUnit string `json:"timeUnit,omitempty"`
	Value    int64  `json:"value"`
}

type wireTemplate struct {
	Delay        *wireDelay `json:"delay,omitempty"`
	TemplateType string     `json:"templateType,omitempty"`
	Template     string     `json:"template,omitempty"`
}

type wireForward struct {
	Delay  *wireDelay `json:"delay,omitempty"`
	Host   string     `json:"host,omitempty"`
	Port   int        `json:"port,omitempty"`
	Scheme string     `json:"scheme,omitempty"`
}

type wireClassCallback struct {
	Delay         *wireDelay `json:"delay,omitempty"`
	CallbackClass string     `json:"callbackClass,omitempty"`
}

type wireObjectCallback struct {
	Delay            *wireDelay `json:"delay,omitempty"`
	ClientID         string     `json:"clientId,omitempty"`
	ResponseCallback bool       `json:"responseCallback,omitempty"`
}

type wireOverrideForward struct {
	Delay            *wireDelay            `json:"delay,omitempty"`
	RequestOverride  json.RawMessage       `json:"requestOverride,omitempty"`
	RequestModifier  *wireRequestModifier  `json:"requestModifier,omitempty"`
	ResponseOverride json.RawMessage       `json:"responseOverride,omitempty"`
	ResponseModifier *wireResponseModifier `json:"responseModifier,omitempty"`

	// legacy shape
	HTTPRequest  json.RawMessage `json:"httpRequest,omitempty"`
	HTTPResponse json.RawMessage `json:"httpResponse,omitempty"`
}

type wireRequestModifier struct {
	Path                  *wirePathModifier   `json:"path,omitempty"`
	QueryStringParameters *wireFieldsModifier `json:"queryStringParameters,omitempty"`
	Headers               *wireFieldsModifier `json:"headers,omitempty"`
	Cookies               *wireFieldsModifier `json:"cookies,omitempty"`
}

type wireResponseModifier struct {
	Headers *wireFieldsModifier `json:"headers,omitempty"`
	Cookies *wireFieldsModifier `json:"cookies,omitempty"`
}

type wirePathModifier struct {
	Regex        string `json:"regex"`
	Substitution string `json:"substitution,omitempty"`
}

type wireFieldsModifier struct {
	Add     json.RawMessage `json:"add,omitempty"`
	Replace json.RawMessage `json:"replace,omitempty"`
	Remove  []string        `json:"remove,omitempty"`
}

type wireError struct {
	Delay          *wireDelay `json:"delay,omitempty"`
	DropConnection bool       `json:"dropConnection,omitempty"`
	ResponseBytes  string     `json:"responseBytes,omitempty"`
}

// Unlimited is a pointer so an explicit false can be told apart from absence.
type wireTimes struct {
	RemainingTimes int   `json:"remainingTimes,omitempty"`
	Unlimited      *bool `json:"unlimited,omitempty"`
}

type wireTimeToLive struct {
	TimeUnit   string `json:"timeUnit,omitempty"`
	TimeToLive int64  `json:"timeToLive,omitempty"`
	EndDate    int64  `json:"endDate,omitempty"`
	Unlimited  *bool  `json:"unlimited,omitempty"`
}

type wireConnectionOptions struct {
	SuppressContentLengthHeader bool       `json:"suppressContentLengthHeader,omitempty"`
	ContentLengthHeaderOverride *int       `json:"contentLengthHeaderOverride,omitempty"`
	SuppressConnectionHeader    bool       `json:"suppressConnectionHeader,omitempty"`
	ChunkSize                   int        `json:"chunkSize,omitempty"`
	KeepAliveOverride           *bool      `json:"keepAliveOverride,omitempty"`
	CloseSocket                 bool       `json:"closeSocket,omitempty"`
	CloseSocketDelay            *wireDelay `json:"closeSocketDelay,omitempty"`
}

type wireStringMatcher struct {
	Not            bool            `json:"not,omitempty"`
	Optional       json.RawMessage `json:"optional,omitempty"`
	Value          *string         `json:"value,omitempty"`
	Schema         json.RawMessage `json:"schema,omitempty"`
	ParameterStyle string          `json:"parameterStyle,omitempty"`
}

type wireKeyValues struct {
	Name   json.RawMessage   `json:"name"`
	Values []json.RawMessage `json:"values,omitempty"`
	Value  json.RawMessage   `json:"value,omitempty"`
}

type wireStyledValues struct {
	ParameterStyle string            `json:"parameterStyle,omitempty"`
	Values         []json.RawMessage `json:"values"`
}

type wireOpenAPIExpectation struct {
	SpecURLOrPayload       json.RawMessage   `json:"specUrlOrPayload"`
	OperationsAndResponses map[string]string `json:"operationsAndResponses,omitempty"`
}
