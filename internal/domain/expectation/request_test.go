package expectation_test

import (
	"testing"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
)

func TestParseSocketAddress(t *testing.T) {
	tests := []struct {
		hostport string
		secure   bool
		host     string
		port     int
		scheme   expectation.Scheme
	}{
		{"example.com", false, "example.com", 80, expectation.SchemeHTTP},
		{"example.com", true, "example.com", 443, expectation.SchemeHTTPS},
		{"example.com:8080", false, "example.com", 8080, expectation.SchemeHTTP},
		{"[::1]:9000", false, "::1", 9000, expectation.SchemeHTTP},
		{"[::1]", false, "::1", 80, expectation.SchemeHTTP},
	}

	for _, tc := range tests {
		t.Run(tc.hostport, func(t *testing.T) {
			sa := expectation.ParseSocketAddress(tc.hostport, tc.secure)
			if sa.Host != tc.host || sa.Port != tc.port || sa.Scheme != tc.scheme {
				t.Errorf("unexpected socket address: %+v", sa)
			}
		})
	}

	if expectation.ParseSocketAddress("", false) != nil {
		t.Error("expected nil for an empty host")
	}
}
