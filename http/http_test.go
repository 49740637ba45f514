package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:     srv.URL,
		ServiceName: "testprovider",
		RetryWait:   10 * time.Millisecond,
	})
}

func TestClient_Get(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q, want application/json", r.Header.Get("Accept"))
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	var out map[string]string
	if err := client.Get(context.Background(), "/v1/health", &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %q, want ok", out["status"])
	}
}

func TestClient_PostRoundTrip(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var in payload
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(payload{Name: "echo:" + in.Name})
	})

	var out payload
	if err := client.Post(context.Background(), "/v1/echo", payload{Name: "hi"}, &out); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if out.Name != "echo:hi" {
		t.Errorf("Name = %q, want echo:hi", out.Name)
	}
}

func TestClient_BeforeRequestHook(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		BaseURL: srv.URL,
		BeforeRequest: func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer tok")
		},
	})

	if err := client.Get(context.Background(), "/", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "recovered"})
	})

	var out map[string]string
	if err := client.Get(context.Background(), "/flaky", &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if out["status"] != "recovered" {
		t.Errorf("status = %q, want recovered", out["status"])
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"nope"}`, http.StatusBadRequest)
	})

	err := client.Get(context.Background(), "/bad", nil)
	if err == nil {
		t.Fatal("Get() error = nil, want APIError")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (400 is not retryable)", calls.Load())
	}
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("err = %v, want ErrBadRequest", err)
	}
}

func TestClient_ParsesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-42")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "bad key"})
	})

	err := client.Get(context.Background(), "/v1/tasks", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if apiErr.Message != "bad key" {
		t.Errorf("Message = %q, want bad key", apiErr.Message)
	}
	if apiErr.RequestID != "req-42" {
		t.Errorf("RequestID = %q, want req-42", apiErr.RequestID)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err should unwrap to ErrUnauthorized, got %v", err)
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{400, ErrBadRequest},
		{401, ErrUnauthorized},
		{403, ErrUnauthorized},
		{429, ErrRateLimited},
		{500, ErrServerError},
		{503, ErrServerError},
	}

	for _, tt := range tests {
		err := &APIError{StatusCode: tt.status}
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: not errors.Is(%v)", tt.status, tt.want)
		}
	}

	if errors.Is(&APIError{StatusCode: 404}, ErrBadRequest) {
		t.Error("404 should not unwrap to a sentinel")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&APIError{StatusCode: 502}) {
		t.Error("502 should be retryable")
	}
	if !IsRetryable(&RateLimitError{Service: "x"}) {
		t.Error("rate limit should be retryable")
	}
	if IsRetryable(&APIError{StatusCode: 400}) {
		t.Error("400 should not be retryable")
	}
	if IsRetryable(errors.New("random")) {
		t.Error("arbitrary errors should not be retryable")
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(&RateLimitError{Service: "x", RetryAfter: time.Second}) {
		t.Error("RateLimitError should report as rate limited")
	}
	if !IsRateLimited(&APIError{StatusCode: 429}) {
		t.Error("429 APIError should report as rate limited")
	}
	if IsRateLimited(errors.New("other")) {
		t.Error("arbitrary error should not report as rate limited")
	}
}
