package httpcache

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testTable() *PolicyTable {
	return NewPolicyTable().
		Add("/api/products", Policy{MaxAge: 5 * time.Minute, Public: true, StaleWhileRevalidate: 30 * time.Second})
}

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})
}

func TestMiddleware_AnnotatesSuccessfulGET(t *testing.T) {
	h := Middleware(testTable())(jsonHandler(`{"products":[]}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/products", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag missing")
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=300, stale-while-revalidate=30" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := rec.Header().Get("Vary"); got != "Accept-Encoding" {
		t.Errorf("Vary = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("handler headers should survive annotation, Content-Type = %q", got)
	}
}

func TestMiddleware_ETagIdempotentAnd304(t *testing.T) {
	h := Middleware(testTable())(jsonHandler(`{"products":["margherita"]}`))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest("GET", "/api/products", nil))
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("ETag missing")
	}

	// Unchanged content yields the same tag.
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest("GET", "/api/products", nil))
	if got := second.Header().Get("ETag"); got != etag {
		t.Fatalf("ETag changed for identical content: %q vs %q", etag, got)
	}

	// A matching conditional request short-circuits to 304, empty body.
	req := httptest.NewRequest("GET", "/api/products", nil)
	req.Header.Set("If-None-Match", etag)
	cond := httptest.NewRecorder()
	h.ServeHTTP(cond, req)

	if cond.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", cond.Code)
	}
	if cond.Body.Len() != 0 {
		t.Errorf("304 body should be empty, got %q", cond.Body.String())
	}
	if got := cond.Header().Get("ETag"); got != etag {
		t.Errorf("304 should carry the same ETag, got %q", got)
	}
}

func TestMiddleware_StaleETagGetsFullResponse(t *testing.T) {
	h := Middleware(testTable())(jsonHandler(`{"v":2}`))

	req := httptest.NewRequest("GET", "/api/products", nil)
	req.Header.Set("If-None-Match", `"outdated"`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for non-matching ETag", rec.Code)
	}
	if rec.Body.String() != `{"v":2}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMiddleware_NonGETUntouched(t *testing.T) {
	h := Middleware(testTable())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"ord-1"}`)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/products", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if rec.Header().Get("ETag") != "" {
		t.Error("write responses must not carry an ETag")
	}
	if rec.Header().Get("Cache-Control") != "" {
		t.Error("write responses must not carry Cache-Control")
	}
}

func TestMiddleware_ErrorsAndEmptyBodiesNotAnnotated(t *testing.T) {
	tests := []struct {
		name    string
		handler http.Handler
	}{
		{
			name: "error response",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			}),
		},
		{
			name: "empty body",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Middleware(testTable())(tt.handler)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/products", nil))

			if rec.Header().Get("ETag") != "" {
				t.Error("response should not be annotated")
			}
		})
	}
}

func TestETagMatches(t *testing.T) {
	etag := `"abc"`

	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`"abc"`, true},
		{`"xyz"`, false},
		{`"xyz", "abc"`, true},
		{"*", true},
	}

	for _, tt := range tests {
		if got := etagMatches(tt.header, etag); got != tt.want {
			t.Errorf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
