package services

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// InferContentType determines the content type of a response body: the explicit
// value when set, JSON or XML when the body parses as such, otherwise a sniffed type.
// An empty body has no content type.
func InferContentType(explicit string, body []byte) string {
	if explicit != "" {
		return explicit
	}
	if len(body) == 0 {
		return ""
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return "application/json"
	}
	if bytes.HasPrefix(trimmed, []byte("<?xml")) {
		return "application/xml"
	}

	return http.DetectContentType(body)
}
