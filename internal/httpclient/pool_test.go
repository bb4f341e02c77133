package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPool_GetReusesClientPerOrigin(t *testing.T) {
	pool := NewPool(20, 60*time.Second, 10*time.Second, nil)

	c1, err := pool.Get("https://example.com/a")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	c2, err := pool.Get("https://example.com/b")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if c1 != c2 {
		t.Error("expected same client for same origin")
	}

	c3, err := pool.Get("https://other.com/a")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if c1 == c3 {
		t.Error("expected distinct client for distinct origin")
	}
}

func TestPool_GetInvalidURL(t *testing.T) {
	pool := NewPool(20, 60*time.Second, 10*time.Second, nil)

	if _, err := pool.Get("not-a-url"); err == nil {
		t.Error("expected error for URL with no scheme/host")
	}
}

func TestPool_ClientCanFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	pool := NewPool(20, 60*time.Second, 10*time.Second, nil)
	client, err := pool.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("client.Get() error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPool_HeadLimiterPerOrigin(t *testing.T) {
	pool := NewPool(20, 60*time.Second, 10*time.Second, nil)

	l1, err := pool.HeadLimiter("https://example.com/a")
	if err != nil {
		t.Fatalf("HeadLimiter() error: %v", err)
	}
	l2, err := pool.HeadLimiter("https://example.com/b")
	if err != nil {
		t.Fatalf("HeadLimiter() error: %v", err)
	}
	if l1 != l2 {
		t.Error("expected same limiter for same origin")
	}
}

func TestLimiter_AllowRespectsBucket(t *testing.T) {
	l := newLimiter(2, 1)

	if !l.Allow() {
		t.Error("expected first Allow() to succeed")
	}
	if !l.Allow() {
		t.Error("expected second Allow() to succeed")
	}
	if l.Allow() {
		t.Error("expected third Allow() to be rate limited")
	}
}

func TestPool_CloseAll(t *testing.T) {
	pool := NewPool(20, 60*time.Second, 10*time.Second, nil)
	if _, err := pool.Get("https://example.com"); err != nil {
		t.Fatal(err)
	}

	pool.CloseAll()

	pool.mu.RLock()
	n := len(pool.clients)
	pool.mu.RUnlock()
	if n != 0 {
		t.Errorf("clients map len = %d, want 0 after CloseAll", n)
	}
}
