package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leeai-backend/internal/handlers"
	"leeai-backend/internal/middleware"
	"leeai-backend/internal/models"
	"leeai-backend/internal/services"
	"leeai-backend/internal/websocket"
)

type cannedGenerator struct{}

func (cannedGenerator) Generate(context.Context, string) (string, error) {
	return "Hello there.", nil
}

func newTestRouter(limit int) http.Handler {
	chat := handlers.NewChatHandler(services.NewChatService(cannedGenerator{}), nil)
	limiter := middleware.NewRateLimiter(limit, time.Minute)
	return New(
		chat,
		limiter,
		websocket.NewHub(chat, limiter, "*"),
		"llamacpp",
		"*",
	)
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(10).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health body: %v", err)
	}
	if body["status"] != "ok" || body["backend"] != "llamacpp" {
		t.Errorf("Unexpected health body %v", body)
	}
}

func TestChatRoute(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedReply  string
	}{
		{"math", `{"message": "(1+2)*3"}`, http.StatusOK, "Math Answer: 9"},
		{"identity", `{"message": "what's your name"}`, http.StatusOK, services.IdentityReply},
		{"generation", `{"message": "hi"}`, http.StatusOK, "Hello there."},
		{"empty", `{"message": ""}`, http.StatusBadRequest, "Error: Message cannot be empty."},
	}

	h := newTestRouter(100)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.expectedStatus {
				t.Errorf("Expected status %d, got %d", tc.expectedStatus, rr.Code)
			}
			var resp models.ChatResponse
			json.NewDecoder(rr.Body).Decode(&resp)
			if resp.Reply != tc.expectedReply {
				t.Errorf("Expected reply %q, got %q", tc.expectedReply, resp.Reply)
			}
			if rr.Header().Get("X-Request-ID") == "" {
				t.Error("Expected X-Request-ID on the response")
			}
		})
	}
}

func TestChatRoute_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(10).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chat", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rr.Code)
	}
}

func TestChatRoute_RateLimited(t *testing.T) {
	h := newTestRouter(1)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": "1+1"}`))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("Expected second request to be limited, got %d", code)
	}
}
