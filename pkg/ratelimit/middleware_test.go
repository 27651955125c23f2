package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AdvisoryHeaders(t *testing.T) {
	l := New(Config{MaxRequests: 5, Window: time.Minute})
	h := Middleware(l, PerIP(false))(okHandler())

	req := httptest.NewRequest("GET", "/api/products", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("X-RateLimit-Limit = %q, want 5", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("X-RateLimit-Remaining = %q, want 4", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset missing")
	}
}

func TestMiddleware_RejectsWith429(t *testing.T) {
	l := New(Config{MaxRequests: 1, Window: time.Minute})
	h := Middleware(l, PerIP(false))(okHandler())

	req := httptest.NewRequest("GET", "/api/products", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}

	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Error == "" {
		t.Error("error field missing from 429 body")
	}
	if body.RetryAfter < 1 || body.RetryAfter > 60 {
		t.Errorf("retryAfter = %d, want within [1, 60]", body.RetryAfter)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestKeyFuncs(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/orders", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	if got := PerIP(false)(req); got != "ip:10.0.0.1" {
		t.Errorf("PerIP = %q", got)
	}

	if got := PerUser(false)(req); got != "ip:10.0.0.1" {
		t.Errorf("PerUser without identity = %q, want IP fallback", got)
	}

	req.Header.Set(UserHeader, "user-42")
	if got := PerUser(false)(req); got != "user:user-42" {
		t.Errorf("PerUser = %q", got)
	}

	if got := PerEndpoint(false)(req); got != "ep:/api/orders:10.0.0.1" {
		t.Errorf("PerEndpoint = %q", got)
	}
}

func TestClientIP_XForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := ClientIP(req, true); got != "203.0.113.9" {
		t.Errorf("trusted proxy: ClientIP = %q, want first XFF entry", got)
	}
	if got := ClientIP(req, false); got != "10.0.0.1" {
		t.Errorf("untrusted proxy: ClientIP = %q, want RemoteAddr host", got)
	}
}
