package filesystem_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sophialabs/expectmock/internal/domain/expectation"
	"github.com/sophialabs/expectmock/internal/infrastructure/outbound/filesystem"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func loadAll(t *testing.T, location string) []*expectation.Expectation {
	t.Helper()
	repo, err := filesystem.NewRepository(location)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	exps, err := repo.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	return exps
}

func expIDs(exps []*expectation.Expectation) []string {
	out := make([]string, 0, len(exps))
	for _, e := range exps {
		out = append(out, e.ID)
	}
	return out
}

const yamlExpectations = `
- id: greeting
  priority: 10
  httpRequest:
    method: GET
    path: /hello
    headers:
      X-Trace: ["a", "b"]
  httpResponse:
    statusCode: 200
    body:
      message: hi
      count: 2
- httpRequest:
    path: /anonymous
  httpResponse:
    statusCode: 204
`

func TestRepository_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hello.yaml"), yamlExpectations)

	exps := loadAll(t, dir)
	if got := strings.Join(expIDs(exps), ","); got != "greeting,hello.yaml#1" {
		t.Fatalf("unexpected ids: %s", got)
	}

	greeting := exps[0]
	if greeting.Priority != 10 {
		t.Errorf("unexpected priority: %d", greeting.Priority)
	}
	rm, ok := greeting.Request.(*expectation.RequestMatcher)
	if !ok {
		t.Fatalf("expected request matcher, got %T", greeting.Request)
	}
	if rm.Method.Value != "GET" || rm.Path.Value != "/hello" {
		t.Errorf("unexpected matcher: %s %s", rm.Method.Value, rm.Path.Value)
	}
	act, ok := greeting.Action.(*expectation.ResponseAction)
	if !ok {
		t.Fatalf("expected response action, got %T", greeting.Action)
	}
	if string(act.Response.Body) != `{"message":"hi","count":2}` {
		t.Errorf("expected key order to survive, got %s", act.Response.Body)
	}
}

func TestRepository_LoadJSONFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "single.json")
	writeFile(t, file, `{"id": "json-one", "httpResponse": {"statusCode": 201}}`)
	writeFile(t, filepath.Join(dir, "ignored.yaml"), `{"id": "other", "httpResponse": {}}`)

	exps := loadAll(t, file)
	if len(exps) != 1 || exps[0].ID != "json-one" {
		t.Fatalf("unexpected expectations: %v", expIDs(exps))
	}
}

func TestRepository_DirectoryIsRecursiveAndOrdered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yaml"), "- httpResponse: {}\n")
	writeFile(t, filepath.Join(dir, "a", "z.json"), `[{"httpResponse": {}}]`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not an expectation")

	got := strings.Join(expIDs(loadAll(t, dir)), ",")
	if got != "a/z.json#0,b.yaml#0" {
		t.Errorf("unexpected ids: %s", got)
	}
}

func TestRepository_Glob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "mocks", "users", "list.yaml"), "- id: users\n  httpResponse: {}\n")
	writeFile(t, filepath.Join(dir, "mocks", "orders.yml"), "- id: orders\n  httpResponse: {}\n")
	writeFile(t, filepath.Join(dir, "mocks", "skip.json"), `[{"id": "skip", "httpResponse": {}}]`)

	repo, err := filesystem.NewRepository(filepath.Join(dir, "mocks", "**", "*.{yaml,yml}"))
	if err != nil {
		t.Fatal(err)
	}
	if repo.Root() != filepath.Join(dir, "mocks") {
		t.Errorf("unexpected root: %s", repo.Root())
	}

	exps, err := repo.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(expIDs(exps), ","); got != "orders,users" {
		t.Errorf("unexpected ids: %s", got)
	}

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(dir, "mocks", "orders.yml"), true},
		{filepath.Join(dir, "mocks", "deep", "er", "x.yaml"), true},
		{filepath.Join(dir, "mocks", "skip.json"), false},
		{filepath.Join(dir, "elsewhere.yaml"), false},
	}
	for _, tc := range tests {
		if got := repo.Matches(tc.path); got != tc.want {
			t.Errorf("Matches(%s) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestRepository_Includes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shared", "ok.yaml"), "statusCode: 200\nbody: !include body.txt\n")
	writeFile(t, filepath.Join(dir, "shared", "body.txt"), "included body")
	writeFile(t, filepath.Join(dir, "mocks", "a.yaml"), "- id: inc\n  httpResponse: !include \"@root/shared/ok.yaml\"\n")

	exps := loadAll(t, filepath.Join(dir, "**", "a.yaml"))
	if len(exps) != 1 {
		t.Fatalf("expected one expectation, got %d", len(exps))
	}
	act := exps[0].Action.(*expectation.ResponseAction)
	if string(act.Response.Body) != "included body" {
		t.Errorf("unexpected body: %q", act.Response.Body)
	}
}

func TestRepository_AnchorsAndMerge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "anchors.yaml"), `
- id: first
  httpResponse: &ok
    statusCode: 200
    body: shared
- id: second
  httpResponse:
    <<: *ok
    statusCode: 202
`)

	exps := loadAll(t, dir)
	second := exps[1].Action.(*expectation.ResponseAction)
	if second.Response.StatusCode != 202 || string(second.Response.Body) != "shared" {
		t.Errorf("unexpected merged response: %d %q", second.Response.StatusCode, second.Response.Body)
	}
}

func TestRepository_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{"invalid yaml", map[string]string{"bad.yaml": ":\n  :\n\t\t\tinvalid"}, "bad.yaml"},
		{"unknown field", map[string]string{"x.json": `{"httpResponse": {}, "bogus": true}`}, "x.json"},
		{"no action", map[string]string{"y.yaml": "- httpRequest: {path: /a}\n"}, "y.yaml"},
		{"escaping include", map[string]string{"z.yaml": "- httpResponse: !include ../../etc/passwd\n"}, "not allowed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tc.files {
				writeFile(t, filepath.Join(dir, name), content)
			}
			repo, err := filesystem.NewRepository(dir)
			if err != nil {
				t.Fatal(err)
			}
			_, err = repo.LoadAll(context.Background())
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRepository_MissingLocation(t *testing.T) {
	repo, err := filesystem.NewRepository(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.LoadAll(context.Background()); err == nil {
		t.Error("expected error for a missing directory")
	}

	if _, err := filesystem.NewRepository("  "); err == nil {
		t.Error("expected error for an empty location")
	}
}

func TestRepository_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "[]")

	repo, err := filesystem.NewRepository(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := repo.LoadAll(ctx); err == nil {
		t.Error("expected context error")
	}
}
