// Package testutil provides common test utilities and helpers for VentaFlow tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/impulsalabs/ventaflow/internal/api"
	"github.com/impulsalabs/ventaflow/internal/catalog"
	"github.com/impulsalabs/ventaflow/internal/messaging"
	"github.com/impulsalabs/ventaflow/internal/models"
	"github.com/impulsalabs/ventaflow/internal/store"
	"github.com/impulsalabs/ventaflow/internal/twiliowhatsapp"
)

// NewTestServer creates a test API server with in-memory dependencies.
func NewTestServer() *api.Server {
	twilioService := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	st := store.NewInMemoryStore()
	cat := catalog.NewStaticCatalog()
	return api.NewServer(st, cat, twilioService.WebhookHandler)
}

// NewTestServerWithStore creates a test API server over the given store.
func NewTestServerWithStore(st store.Store) *api.Server {
	twilioService := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	return api.NewServer(st, catalog.NewStaticCatalog(), twilioService.WebhookHandler)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// SeedUserStates stores sample users across the consent statuses.
func SeedUserStates(t *testing.T, st store.Store) {
	t.Helper()
	states := []models.UserState{
		{UserID: "5215500000001", ConsentStatus: models.ConsentAccepted, DisplayName: "Ana", Role: "Directora de Marketing"},
		{UserID: "5215500000002", ConsentStatus: models.ConsentAccepted, DisplayName: "Luis"},
		{UserID: "5215500000003", ConsentStatus: models.ConsentRequested},
		{UserID: "5215500000004", ConsentStatus: models.ConsentDeclined},
	}
	now := time.Now()
	for _, state := range states {
		state.CreatedAt = now
		state.UpdatedAt = now
		if err := st.SaveUserState(state); err != nil {
			t.Fatalf("failed to seed user state: %v", err)
		}
	}
}
