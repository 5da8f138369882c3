package app_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sophialabs/expectmock/internal/app"
)

func writeTestExpectations(t *testing.T, dir string) {
	t.Helper()
	yaml := `id: test-health
priority: 10
httpRequest:
  method: GET
  path: /api/health
httpResponse:
  statusCode: 200
  body: '{"status":"ok"}'
`
	if err := os.WriteFile(filepath.Join(dir, "health.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write expectation file: %v", err)
	}
}

func TestNew_Success(t *testing.T) {
	dir := t.TempDir()
	writeTestExpectations(t, dir)

	cfg := app.DefaultConfig()
	cfg.InitializerPath = dir

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a == nil {
		t.Fatal("expected non-nil App")
	}
	a.Container().Close()
}

func startApp(t *testing.T, cfg app.Config) (string, func()) {
	t.Helper()
	port := freePort(t)
	cfg.Port = port

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	base := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, base+"/mockserver/status", 3*time.Second)

	return base, func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after context cancellation")
		}
	}
}

func TestRun_StartsAndShutdownsGracefully(t *testing.T) {
	dir := t.TempDir()
	writeTestExpectations(t, dir)

	cfg := app.DefaultConfig()
	cfg.InitializerPath = dir
	_, stop := startApp(t, cfg)
	stop()
}

func TestRun_FailsOnDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	yaml := `- id: dup
  httpRequest: {path: /a}
  httpResponse: {statusCode: 200}
- id: dup
  httpRequest: {path: /b}
  httpResponse: {statusCode: 200}
`
	if err := os.WriteFile(filepath.Join(dir, "dups.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write expectation file: %v", err)
	}

	cfg := app.DefaultConfig()
	cfg.InitializerPath = dir

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Run(ctx); err == nil {
		t.Error("expected error for duplicate expectation ids")
	}
}

func TestRun_ServesLoadedExpectations(t *testing.T) {
	dir := t.TempDir()
	writeTestExpectations(t, dir)

	cfg := app.DefaultConfig()
	cfg.InitializerPath = dir
	base, stop := startApp(t, cfg)
	defer stop()

	resp, err := http.Get(base + "/api/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 || string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected response: %d %s", resp.StatusCode, body)
	}
}

func TestRun_HotReload(t *testing.T) {
	dir := t.TempDir()
	writeTestExpectations(t, dir)

	cfg := app.DefaultConfig()
	cfg.InitializerPath = dir
	cfg.WatcherDebounce = 20 * time.Millisecond
	base, stop := startApp(t, cfg)
	defer stop()

	extra := `id: added
httpRequest:
  path: /api/added
httpResponse:
  statusCode: 201
`
	if err := os.WriteFile(filepath.Join(dir, "added.yaml"), []byte(extra), 0o644); err != nil {
		t.Fatalf("failed to write expectation file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/api/added")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusCreated {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("new expectation file was not picked up")
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server not ready at %s after %v", url, timeout)
}
