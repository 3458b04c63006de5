package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
)

func TestDoJSONRetriesServerError(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"x"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 1)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	var out map[string]any
	if _, err := client.DoJSON(context.Background(), req, &out); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
}

func TestDoJSONSurfacesProviderMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"No available quotes for the requested transfer","code":1002}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 0)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	_, err := client.DoJSON(context.Background(), req, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := ProviderMessage(err); got != "No available quotes for the requested transfer" {
		t.Fatalf("unexpected provider message %q", got)
	}
}

func TestDoFormSendsBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("To") != "+15551234567" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"bad form"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 0)
	var out struct {
		SID string `json:"sid"`
	}
	form := url.Values{"To": {"+15551234567"}}
	if _, err := DoForm(context.Background(), client, srv.URL, form, "AC123", "secret", &out); err != nil {
		t.Fatalf("DoForm failed: %v", err)
	}
	if out.SID != "SM1" {
		t.Fatalf("unexpected response %+v", out)
	}
	_, err := DoForm(context.Background(), client, srv.URL, url.Values{}, "AC123", "secret", nil)
	if ProviderMessage(err) != "bad form" {
		t.Fatalf("expected nested error message, got %v", err)
	}
}

func TestDoJSONNotFoundIsNotRetried(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(2*time.Second, 3)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	_, err := client.DoJSON(context.Background(), req, nil)
	if !clierr.IsCode(err, clierr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if n := atomic.LoadInt32(&count); n != 1 {
		t.Fatalf("expected a single attempt, got %d", n)
	}
}

func TestRetryAfter(t *testing.T) {
	cases := map[string]time.Duration{
		"":     0,
		"soon": 0,
		"-3":   0,
		"2":    2 * time.Second,
		"3600": maxRetryAfter,
	}
	for raw, want := range cases {
		h := http.Header{}
		h.Set("Retry-After", raw)
		if got := retryAfter(h); got != want {
			t.Fatalf("retryAfter(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestDoJSONRateLimitedExhaustsRetries(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(2*time.Second, 1)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	_, err := client.DoJSON(context.Background(), req, nil)
	if !clierr.IsCode(err, clierr.CodeRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if n := atomic.LoadInt32(&count); n != 2 {
		t.Fatalf("expected two attempts, got %d", n)
	}
}
