package perf

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecorder_CountsAndErrors(t *testing.T) {
	rec := New(nil)
	h := rec.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/products", nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/products?fail=1", nil))

	snap := rec.Snapshot()
	stats, ok := snap["/api/products"]
	if !ok {
		t.Fatalf("route missing from snapshot: %v", snap)
	}
	if stats.Count != 4 {
		t.Errorf("Count = %d, want 4", stats.Count)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
}

func TestRecorder_TracksMaxDuration(t *testing.T) {
	rec := New(nil)
	h := rec.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/slow", nil))

	stats := rec.Snapshot()["/slow"]
	if stats.MaxDuration < 20*time.Millisecond {
		t.Errorf("MaxDuration = %v, want >= 20ms", stats.MaxDuration)
	}
}

func TestRecorder_NormalizeCollapsesIDs(t *testing.T) {
	normalize := func(r *http.Request) string {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) == 3 && parts[0] == "api" {
			return "/api/" + parts[1] + "/[id]"
		}
		return r.URL.Path
	}

	rec := New(normalize)
	h := rec.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/orders/ord-1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/orders/ord-2", nil))

	snap := rec.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected one normalized route, got %v", snap)
	}
	if snap["/api/orders/[id]"].Count != 2 {
		t.Errorf("normalized route count = %d, want 2", snap["/api/orders/[id]"].Count)
	}
}

func TestRecorder_SnapshotHandler(t *testing.T) {
	rec := New(nil)
	h := rec.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x", nil))

	out := httptest.NewRecorder()
	rec.Handler().ServeHTTP(out, httptest.NewRequest("GET", "/stats", nil))

	if out.Code != http.StatusOK {
		t.Fatalf("status = %d", out.Code)
	}
	if !strings.Contains(out.Body.String(), `"/x"`) {
		t.Errorf("snapshot body missing route: %s", out.Body.String())
	}
}
