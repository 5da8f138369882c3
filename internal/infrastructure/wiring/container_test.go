package wiring_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/wiring"
	"github.com/sophialabs/expectmock/internal/testutil"
)

func validParams(t *testing.T) wiring.Params {
	t.Helper()
	dir := t.TempDir()
	expDir := filepath.Join(dir, "expectations")
	if err := os.MkdirAll(expDir, 0o755); err != nil {
		t.Fatalf("failed to create expectation dir: %v", err)
	}
	yaml := `- id: test-health
  priority: 10
  httpRequest:
    method: GET
    path: /api/health
  httpResponse:
    statusCode: 200
    body:
      status: ok
`
	if err := os.WriteFile(filepath.Join(expDir, "health.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write expectation file: %v", err)
	}

	return wiring.Params{
		InitializerPath: expDir,
		TraceSize:       50,
		RateLimiterTTL:  5 * time.Minute,
		ActionTimeout:   time.Second,
		MaxDelay:        time.Second,
		Logger:          &testutil.NoopLogger{},
	}
}

func TestNew_Success(t *testing.T) {
	p := validParams(t)
	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if c.Logger() == nil {
		t.Error("Logger() returned nil")
	}
	if c.Server() == nil {
		t.Error("Server() returned nil")
	}
	if c.Repository() == nil {
		t.Error("Repository() returned nil")
	}
	if c.LoadExpectationsUseCase() == nil {
		t.Error("LoadExpectationsUseCase() returned nil")
	}
	if c.UpsertExpectationsUseCase() == nil {
		t.Error("UpsertExpectationsUseCase() returned nil")
	}
	if c.Callbacks() == nil {
		t.Error("Callbacks() returned nil")
	}
	if c.RateLimiterStore() == nil {
		t.Error("RateLimiterStore() returned nil")
	}
	if c.TraceBuf() == nil {
		t.Error("TraceBuf() returned nil")
	}
}

func TestNew_WithoutInitializer(t *testing.T) {
	p := validParams(t)
	p.InitializerPath = ""

	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if c.Repository() != nil || c.LoadExpectationsUseCase() != nil {
		t.Error("expected no initializer components")
	}
}

func TestNew_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*wiring.Params)
	}{
		{"unknown json match type", func(p *wiring.Params) { p.DefaultJSONMatchType = "LENIENT" }},
		{"invalid glob", func(p *wiring.Params) { p.InitializerPath = filepath.Join(t.TempDir(), "[") + "*.yaml" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams(t)
			tc.mutate(&p)

			c, err := wiring.New(p)
			if err == nil {
				c.Close()
				t.Fatal("expected an error")
			}
			if c != nil {
				t.Error("expected nil container on error")
			}
		})
	}
}

func TestNew_ComponentsAreWiredCorrectly(t *testing.T) {
	p := validParams(t)
	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	result, err := c.LoadExpectationsUseCase().Execute(context.Background())
	if err != nil {
		t.Fatalf("LoadExpectationsUseCase().Execute() failed: %v", err)
	}
	if result.Loaded != 1 {
		t.Fatalf("expected 1 loaded expectation, got %d", result.Loaded)
	}

	w := httptest.NewRecorder()
	c.Server().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != `{"status":"ok"}` {
		t.Errorf("unexpected response: %d %s", w.Code, w.Body.String())
	}
	if c.TraceBuf().Count() != 1 {
		t.Errorf("expected one trace entry, got %d", c.TraceBuf().Count())
	}
}

func TestNew_ClassCallbacksAreReachable(t *testing.T) {
	p := validParams(t)
	p.InitializerPath = ""
	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	c.Callbacks().RegisterResponse("echo", func(_ context.Context, req *expectation.Request) (*expectation.Response, error) {
		return &expectation.Response{StatusCode: http.StatusAccepted, Body: []byte(req.Path)}, nil
	})

	reg := httptest.NewRecorder()
	c.Server().ServeHTTP(reg, httptest.NewRequest(http.MethodPut, "/mockserver/expectation",
		strings.NewReader(`{"httpResponseClassCallback": {"callbackClass": "echo"}}`)))
	if reg.Code != http.StatusCreated {
		t.Fatalf("registration failed: %d %s", reg.Code, reg.Body.String())
	}

	w := httptest.NewRecorder()
	c.Server().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hello", nil))
	if w.Code != http.StatusAccepted || w.Body.String() != "/hello" {
		t.Errorf("unexpected callback response: %d %s", w.Code, w.Body.String())
	}
}

func TestNew_LoggerIsPassedThrough(t *testing.T) {
	p := validParams(t)
	logger := &testutil.NoopLogger{}
	p.Logger = logger

	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if c.Logger() != logger {
		t.Error("Logger() does not return the same logger instance passed in Params")
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	p := validParams(t)
	c, err := wiring.New(p)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Double close must not panic.
	c.Close()
	c.Close()
}
