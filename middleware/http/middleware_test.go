package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
	"github.com/equaltechbd/cortexa/storage/memory"
)

// Test helper to create an admission controller on the in-memory ledger
func setupTestController(t *testing.T) *cortexa.Controller {
	t.Helper()

	controller, err := cortexa.NewController(memory.New(), cortexa.Config{})
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	return controller
}

// exhaustMessages uses up the free-tier daily message allowance
func exhaustMessages(t *testing.T, controller *cortexa.Controller, userID string) {
	t.Helper()

	ctx := context.Background()
	req := cortexa.RequestContext{UserID: userID, Tier: cortexa.TierFree, TeamSize: 1}
	for i := 0; i < 20; i++ {
		if _, err := controller.Admit(ctx, req); err != nil {
			t.Fatalf("Admit %d failed: %v", i+1, err)
		}
	}
}

func TestMiddleware_Success(t *testing.T) {
	controller := setupTestController(t)

	mw := Middleware(Config{
		Controller: controller,
		GetRequest: FromHeaders(),
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	}))

	req := httptest.NewRequest("POST", "/api/messages", nil)
	req.Header.Set("X-User-ID", "user1")
	req.Header.Set("X-User-Tier", "free")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "success" {
		t.Errorf("Expected 'success', got %s", rec.Body.String())
	}
	if got := rec.Header().Get("X-Quota-Resource"); got != "message" {
		t.Errorf("Expected message resource header, got %q", got)
	}
	if got := rec.Header().Get("X-Quota-Remaining"); got != "19" {
		t.Errorf("Expected 19 remaining, got %q", got)
	}
}

func TestMiddleware_QuotaExceeded(t *testing.T) {
	controller := setupTestController(t)
	exhaustMessages(t, controller, "user1")

	mw := Middleware(Config{
		Controller: controller,
		GetRequest: FromHeaders(),
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler must not run on denial")
	}))

	req := httptest.NewRequest("POST", "/api/messages", nil)
	req.Header.Set("X-User-ID", "user1")
	req.Header.Set("X-User-Tier", "free")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Quota-Resource"); got != "message" {
		t.Errorf("Expected message resource header, got %q", got)
	}
	if got := rec.Header().Get("X-Quota-Remaining"); got != "0" {
		t.Errorf("Expected 0 remaining, got %q", got)
	}
}

func TestMiddleware_MissingAuth(t *testing.T) {
	controller := setupTestController(t)

	mw := Middleware(Config{
		Controller: controller,
		GetRequest: FromHeaders(),
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler must not run without a user")
	}))

	req := httptest.NewRequest("POST", "/api/messages", nil)
	// No X-User-ID header
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

func TestMiddleware_CustomCallbacks(t *testing.T) {
	controller := setupTestController(t)
	exhaustMessages(t, controller, "user1")

	mw := Middleware(Config{
		Controller: controller,
		GetRequest: FromHeaders(),
		OnDenied: func(w http.ResponseWriter, r *http.Request, result *cortexa.Result) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":    "quota exhausted",
				"resource": string(result.Resource),
			})
		},
		OnUnauthorized: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Denied path uses the custom JSON body
	req := httptest.NewRequest("POST", "/api/messages", nil)
	req.Header.Set("X-User-ID", "user1")
	req.Header.Set("X-User-Tier", "free")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["resource"] != "message" {
		t.Errorf("Expected message resource in body, got %q", body["resource"])
	}

	// Unauthorized path uses the custom status
	req = httptest.NewRequest("POST", "/api/messages", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rec.Code)
	}
}

func TestMiddleware_CustomDeniedStatusCode(t *testing.T) {
	controller := setupTestController(t)
	exhaustMessages(t, controller, "user1")

	mw := Middleware(Config{
		Controller:       controller,
		GetRequest:       FromHeaders(),
		DeniedStatusCode: http.StatusPaymentRequired,
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/messages", nil)
	req.Header.Set("X-User-ID", "user1")
	req.Header.Set("X-User-Tier", "free")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("Expected status 402, got %d", rec.Code)
	}
}

func TestMiddleware_ResourceFromHeaders(t *testing.T) {
	controller := setupTestController(t)

	mw := Middleware(Config{
		Controller: controller,
		GetRequest: FromHeaders(),
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// An attachment flag routes the charge to the image counter
	req := httptest.NewRequest("POST", "/api/messages", nil)
	req.Header.Set("X-User-ID", "user1")
	req.Header.Set("X-User-Tier", "pro")
	req.Header.Set("X-Has-Attachment", "true")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Quota-Resource"); got != "image" {
		t.Errorf("Expected image resource header, got %q", got)
	}
}

func TestMiddleware_FromContext(t *testing.T) {
	controller := setupTestController(t)

	mw := Middleware(Config{
		Controller: controller,
		GetRequest: FromContext(RequestKey),
	})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	admission := cortexa.RequestContext{UserID: "user1", Tier: cortexa.TierPro, TeamSize: 1}
	req := httptest.NewRequest("POST", "/api/messages", nil)
	req = req.WithContext(WithRequestContext(req.Context(), RequestKey, admission))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	// A context without the request falls back to unauthorized
	req = httptest.NewRequest("POST", "/api/messages", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

func TestHandlerFunc(t *testing.T) {
	controller := setupTestController(t)

	mw := HandlerFunc(Config{
		Controller: controller,
		GetRequest: FromHeaders(),
	})

	handler := mw(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/api/messages", nil)
	req.Header.Set("X-User-ID", "user1")
	req.Header.Set("X-User-Tier", "free")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestMiddleware_PanicsOnMissingConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing Controller")
		}
	}()
	Middleware(Config{GetRequest: FromHeaders()})
}
