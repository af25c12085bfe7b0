package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_PerClient(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("a") {
		t.Error("third request within the same instant should be rejected")
	}
	if !l.Allow("b") {
		t.Error("other clients have their own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("bucket should refill after one second")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatal("limiter with zero rate must allow everything")
		}
	}
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	l := NewRateLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(time.Hour)
	l.Allow("b")

	if _, ok := l.visitors["a"]; ok {
		t.Error("idle client should have been evicted")
	}
}

func TestRateLimit_Returns429(t *testing.T) {
	handler := RateLimit(NewRateLimiter(1, 1))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events/e1/search", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("10.0.0.1:1234"); code != http.StatusOK {
		t.Fatalf("first request = %d", code)
	}
	if code := send("10.0.0.1:5678"); code != http.StatusTooManyRequests {
		t.Errorf("second request from same IP = %d, want 429", code)
	}
	if code := send("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("request from another IP = %d", code)
	}
}
