package httpcache

import (
	"testing"
	"time"
)

func TestPolicy_CacheControl(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   string
	}{
		{
			name:   "public with max-age",
			policy: Policy{MaxAge: 5 * time.Minute, Public: true},
			want:   "public, max-age=300",
		},
		{
			name:   "private by default",
			policy: Policy{MaxAge: time.Minute},
			want:   "private, max-age=60",
		},
		{
			name: "full directive set",
			policy: Policy{
				MaxAge:               time.Minute,
				Public:               true,
				StaleWhileRevalidate: 30 * time.Second,
				StaleIfError:         5 * time.Minute,
			},
			want: "public, max-age=60, stale-while-revalidate=30, stale-if-error=300",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.CacheControl(); got != tt.want {
				t.Errorf("CacheControl() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPolicyTable_Match(t *testing.T) {
	table := NewPolicyTable().
		Add("/api/products", Policy{MaxAge: 5 * time.Minute, Public: true}).
		Add("/api/products/[id]", Policy{MaxAge: 10 * time.Minute, Public: true}).
		Add("/api/orders/[id]", Policy{MaxAge: time.Minute})

	tests := []struct {
		path       string
		wantMaxAge time.Duration
		wantMatch  bool
	}{
		{"/api/products", 5 * time.Minute, true},
		{"/api/products/p1", 10 * time.Minute, true},
		{"/api/products/p1/reviews", 0, false},
		{"/api/orders/ord-9", time.Minute, true},
		{"/api/orders", 0, false},
		{"/api/reservations", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			policy, ok := table.Match(tt.path)
			if ok != tt.wantMatch {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.path, ok, tt.wantMatch)
			}
			if ok && policy.MaxAge != tt.wantMaxAge {
				t.Errorf("Match(%q) maxAge = %v, want %v", tt.path, policy.MaxAge, tt.wantMaxAge)
			}
		})
	}
}

func TestPolicyTable_FirstMatchWins(t *testing.T) {
	table := NewPolicyTable().
		Add("/api/products/popular", Policy{MaxAge: time.Minute}).
		Add("/api/products/[id]", Policy{MaxAge: time.Hour})

	policy, ok := table.Match("/api/products/popular")
	if !ok {
		t.Fatal("expected match")
	}
	if policy.MaxAge != time.Minute {
		t.Errorf("maxAge = %v, want the earlier literal rule to win", policy.MaxAge)
	}
}
