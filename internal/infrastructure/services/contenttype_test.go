package services_test

import (
	"testing"

	"github.com/sophialabs/expectmock/internal/infrastructure/services"
)

func TestInferContentType(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		body     []byte
		expected string
	}{
		{"explicit header wins", "text/plain", []byte(`{"a":1}`), "text/plain"},
		{"json object", "", []byte(`{"key":"val"}`), "application/json"},
		{"json array with whitespace", "", []byte("  [1, 2]\n"), "application/json"},
		{"broken json falls through to sniff", "", []byte(`{"key":`), "text/plain; charset=utf-8"},
		{"xml declaration", "", []byte(`<?xml version="1.0"?><a/>`), "application/xml"},
		{"html sniffing", "", []byte(`<html><body>hi</body></html>`), "text/html; charset=utf-8"},
		{"plain text", "", []byte("hello"), "text/plain; charset=utf-8"},
		{"binary", "", []byte{0x00, 0x01, 0x02}, "application/octet-stream"},
		{"empty body", "", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := services.InferContentType(tt.explicit, tt.body)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
