package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"notable/api/internal/config"
	"notable/api/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	service := New(config.Config{}, store.NewMemoryStore())
	server := httptest.NewServer(NewHTTPServer(service, "*").Handler())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) map[string]any {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		t.Fatalf("post %s: status %d", url, resp.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["ok"] != true {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestReadyEndpointReportsChecks(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/ready")
	if err != nil {
		t.Fatalf("get ready: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "ready" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCORSPreflightAndRequestID(t *testing.T) {
	server := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/notes", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header: %+v", resp.Header)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestNoteUpdateRequiresWriteAccess(t *testing.T) {
	server := newTestServer(t)

	owner := postJSON(t, server.URL+"/api/users", map[string]any{"displayName": "Avery", "email": "avery@example.com"})
	stranger := postJSON(t, server.URL+"/api/users", map[string]any{"displayName": "Blake", "email": "blake@example.com"})
	note := postJSON(t, server.URL+"/api/notes", map[string]any{"title": "Plan", "content": "v1", "ownerId": owner["id"]})
	noteURL := server.URL + "/api/notes/" + note["id"].(string)

	put := func(actorID string) *http.Response {
		body, _ := json.Marshal(map[string]any{"content": "v2", "actorId": actorID})
		req, err := http.NewRequest(http.MethodPut, noteURL, bytes.NewReader(body))
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		return resp
	}

	resp := put(stranger["id"].(string))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger, got %d", resp.StatusCode)
	}

	resp = put(owner["id"].(string))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", resp.StatusCode)
	}
	var updated map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated["content"] != "v2" {
		t.Fatalf("unexpected payload: %+v", updated)
	}

	// A granted viewer still may not write.
	postJSON(t, noteURL+"/permissions", map[string]any{"userId": stranger["id"], "role": "viewer", "actorId": owner["id"]})
	resp = put(stranger["id"].(string))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", resp.StatusCode)
	}
}

func TestPublicRouteHidesNonPublicNotes(t *testing.T) {
	server := newTestServer(t)

	owner := postJSON(t, server.URL+"/api/users", map[string]any{"displayName": "Avery", "email": "avery@example.com"})
	note := postJSON(t, server.URL+"/api/notes", map[string]any{"title": "Secret", "content": "draft", "ownerId": owner["id"]})
	noteURL := server.URL + "/api/notes/" + note["id"].(string)

	resp, err := http.Get(noteURL + "/public")
	if err != nil {
		t.Fatalf("get public: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for private note, got %d", resp.StatusCode)
	}

	body, _ := json.Marshal(map[string]any{"visibility": "public", "actorId": owner["id"]})
	req, err := http.NewRequest(http.MethodPut, noteURL, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	putResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	putResp.Body.Close()
	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("publish failed: %d", putResp.StatusCode)
	}

	resp, err = http.Get(noteURL + "/public")
	if err != nil {
		t.Fatalf("get public: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for public note, got %d", resp.StatusCode)
	}
}
