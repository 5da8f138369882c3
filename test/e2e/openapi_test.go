//go:build e2e

package e2e_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

func TestE2E_OpenAPIExpectation(t *testing.T) {
	_, ts := setupE2EServer(t)

	spec, _ := json.Marshal(testdata("inventory.yaml"))
	status, body := put(t, ts.URL+"/mockserver/openapi", fmt.Sprintf(`{"specUrlOrPayload": %s}`, spec))
	if status != http.StatusCreated {
		t.Fatalf("openapi registration failed: %d %s", status, body)
	}

	resp, body := get(t, ts.URL+"/api/items/ABC-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var item map[string]any
	if err := json.Unmarshal([]byte(body), &item); err != nil || item["stock"] != float64(12) {
		t.Errorf("unexpected example body: %s", body)
	}

	// mock/users.yaml answers 401 for unauthenticated /api calls nothing else matched.
	if resp, _ := get(t, ts.URL+"/api/items/abc"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected a pattern mismatch to fall through, got %d", resp.StatusCode)
	}
}

func TestE2E_OpenAPISelectedResponse(t *testing.T) {
	_, ts := setupE2EServer(t)

	spec, _ := json.Marshal(testdata("inventory.yaml"))
	status, body := put(t, ts.URL+"/mockserver/openapi",
		fmt.Sprintf(`{"specUrlOrPayload": %s, "operationsAndResponses": {"getItem": "404"}}`, spec))
	if status != http.StatusCreated {
		t.Fatalf("openapi registration failed: %d %s", status, body)
	}

	resp, body := get(t, ts.URL+"/api/items/XYZ-9")
	if resp.StatusCode != http.StatusNotFound || body != "not stocked" {
		t.Errorf("unexpected response: %d %q", resp.StatusCode, body)
	}
}
