//go:build e2e

package e2e_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/expectmock/internal/infrastructure/wiring"
	"github.com/sophialabs/expectmock/internal/testutil"
)

func projectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	// file = <root>/test/e2e/testhelpers_test.go
	return filepath.Join(filepath.Dir(file), "..", "..")
}

func testdata(name string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", name)
}

func setupE2EServer(t *testing.T) (*wiring.Container, *httptest.Server) {
	t.Helper()

	c, err := wiring.New(wiring.Params{
		InitializerPath: filepath.Join(projectRoot(), "mock", "*.yaml"),
		TraceSize:       100,
		RateLimiterTTL:  10 * time.Minute,
		ActionTimeout:   2 * time.Second,
		MaxDelay:        2 * time.Second,
		Logger:          &testutil.NoopLogger{},
	})
	if err != nil {
		t.Fatalf("failed to wire infrastructure: %v", err)
	}

	if _, err := c.LoadExpectationsUseCase().Execute(context.Background()); err != nil {
		c.Close()
		t.Fatalf("failed to load expectations: %v", err)
	}

	ts := httptest.NewServer(c.Server())
	t.Cleanup(func() {
		c.Close()
		ts.Close()
	})
	return c, ts
}

func put(t *testing.T, target, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, target, strings.NewReader(body))
	if err != nil {
		t.Fatalf("invalid request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s failed: %v", target, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func get(t *testing.T, target string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(target)
	if err != nil {
		t.Fatalf("GET %s failed: %v", target, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}
