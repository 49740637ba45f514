package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/quorum/auth"
	"github.com/randalmurphal/quorum/task"
)

func newAPIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func initAPI(t *testing.T, baseURL string, opts ...APIOption) *APIAdapter {
	t.Helper()
	adapter := NewAPIAdapter(opts...)
	err := adapter.Initialize(context.Background(), Config{
		Name:    "remote",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return adapter
}

func TestAPIAdapter_InitializeRequiresBaseURL(t *testing.T) {
	adapter := NewAPIAdapter()
	if err := adapter.Initialize(context.Background(), Config{Name: "remote"}); err == nil {
		t.Fatal("Initialize() error = nil, want base URL requirement")
	}
	if adapter.Ready() {
		t.Error("Ready() = true after failed init")
	}
}

func TestAPIAdapter_Execute(t *testing.T) {
	var got executeRequest
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tasks" {
			t.Errorf("path = %q, want /v1/tasks", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(executeResponse{
			Content:    "remote answer",
			Confidence: 0.85,
			TokensUsed: 300,
			Cost:       0.05,
			Model:      "opus",
		})
	})

	adapter := initAPI(t, srv.URL)
	req := task.NewRequest(task.Research, "investigate").
		WithConstraints(task.Constraints{MaxTokens: 2048})
	resp := adapter.Execute(context.Background(), req)

	if !resp.Succeeded() {
		t.Fatalf("Execute() failed: %s", resp.Result.Reasoning)
	}
	if resp.Result.Content != "remote answer" {
		t.Errorf("Content = %q, want remote answer", resp.Result.Content)
	}
	if resp.Performance.TokensUsed != 300 {
		t.Errorf("TokensUsed = %d, want 300", resp.Performance.TokensUsed)
	}
	if resp.Performance.Model != "opus" {
		t.Errorf("Model = %q, want opus", resp.Performance.Model)
	}
	if got.ID != req.ID || got.Type != "research" {
		t.Errorf("wire request = %+v, want request fields forwarded", got)
	}
	if got.MaxTokens != 2048 {
		t.Errorf("wire MaxTokens = %d, want 2048", got.MaxTokens)
	}
}

func TestAPIAdapter_ExecuteRequestRejected(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unknown task type"}`, http.StatusBadRequest)
	})

	adapter := initAPI(t, srv.URL)
	resp := adapter.Execute(context.Background(), task.NewRequest(task.Code, "fail"))
	if resp.Succeeded() {
		t.Fatal("Execute() succeeded, want failure on 400")
	}
	if resp.Status != task.StatusFailure {
		t.Errorf("Status = %s, want failure", resp.Status)
	}
}

func TestAPIAdapter_APIKeyHeader(t *testing.T) {
	key, err := auth.MintAPIKey()
	if err != nil {
		t.Fatalf("MintAPIKey() error = %v", err)
	}

	// The server holds only the digest, the way a real provider
	// stores minted keys.
	var verified bool
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		secret := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		verified = auth.VerifySecret(secret, key.Digest)
		json.NewEncoder(w).Encode(executeResponse{Content: "ok"})
	})

	adapter := initAPI(t, srv.URL, WithAPIKey(key.Secret))
	adapter.Execute(context.Background(), task.NewRequest(task.Code, "hi"))

	if !verified {
		t.Error("server could not verify the presented key against its digest")
	}
}

func TestAPIAdapter_InitializeRejectsMalformedKey(t *testing.T) {
	adapter := NewAPIAdapter(WithAPIKey("not-a-minted-key"))
	err := adapter.Initialize(context.Background(), Config{
		Name:    "remote",
		BaseURL: "http://localhost:9",
	})
	if err == nil {
		t.Fatal("Initialize() error = nil, want malformed key rejection")
	}
	if strings.Contains(err.Error(), "not-a-minted-key") {
		t.Errorf("err = %v leaks the raw credential", err)
	}
	if adapter.Ready() {
		t.Error("Ready() = true after failed init")
	}
}

func TestAPIAdapter_ServiceJWTHeader(t *testing.T) {
	var authHeader string
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(executeResponse{Content: "ok"})
	})

	jwtCfg := auth.JWTConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer: "quorum-test",
	}
	adapter := initAPI(t, srv.URL, WithServiceJWT(jwtCfg))
	adapter.Execute(context.Background(), task.NewRequest(task.Code, "hi"))

	if !strings.HasPrefix(authHeader, "Bearer ") {
		t.Fatalf("Authorization = %q, want bearer token", authHeader)
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	claims, err := auth.ValidateServiceToken(jwtCfg, token)
	if err != nil {
		t.Fatalf("minted token did not validate: %v", err)
	}
	if claims.Subject != "remote" {
		t.Errorf("token subject = %q, want remote", claims.Subject)
	}
}

func TestAPIAdapter_DefaultConfidence(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(executeResponse{Content: "no confidence field"})
	})

	adapter := initAPI(t, srv.URL)
	resp := adapter.Execute(context.Background(), task.NewRequest(task.Code, "hi"))
	if resp.Result.Confidence != 0.8 {
		t.Errorf("Confidence = %f, want default 0.8", resp.Result.Confidence)
	}
}

func TestAPIAdapter_CheckHealth(t *testing.T) {
	healthy := true
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/health" {
			if !healthy {
				w.WriteHeader(http.StatusNotFound)
			}
			return
		}
		json.NewEncoder(w).Encode(executeResponse{Content: "ok"})
	})

	adapter := initAPI(t, srv.URL)

	health := adapter.CheckHealth(context.Background())
	if health.Status != StatusHealthy {
		t.Errorf("Status = %s, want healthy", health.Status)
	}

	healthy = false
	health = adapter.CheckHealth(context.Background())
	if health.Status == StatusHealthy {
		t.Errorf("Status = %s, want probe failure reflected", health.Status)
	}
}

func TestAPIAdapter_Shutdown(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(executeResponse{Content: "ok"})
	})

	adapter := initAPI(t, srv.URL)
	if err := adapter.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if adapter.Ready() {
		t.Error("Ready() = true after Shutdown")
	}
}
