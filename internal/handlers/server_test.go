package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"intently.app/cloud/internal/config"
	"intently.app/cloud/internal/storage"
	"intently.app/cloud/internal/testutil"
)

var errProviderDown = errors.New("stripe down")

func newTestServer(store storage.Storage, gateway *testutil.FakeGateway) *Server {
	cfg := &config.Config{
		StripeScanLimit: 10,
		AllowedOrigins:  []string{"*"},
	}
	return New(cfg, store, gateway, "test")
}

func postJSON(t *testing.T, server *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(into); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := newTestServer(testutil.NewStorage(), testutil.NewFakeGateway())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response HealthResponse
	decodeJSON(t, w, &response)
	if response.Status != "healthy" || response.Version != "test" {
		t.Errorf("Unexpected health response: %+v", response)
	}
}
