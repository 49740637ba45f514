package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/randalmurphal/quorum/auth"
	quorumhttp "github.com/randalmurphal/quorum/http"
	"github.com/randalmurphal/quorum/task"
)

// APIAdapter reaches a provider through a network API. Requests and
// responses are JSON; transient failures and rate limits are retried
// by the underlying client, and anything that still fails becomes a
// StatusFailure response.
type APIAdapter struct {
	cfg    Config
	client *quorumhttp.Client

	apiKey string
	jwtCfg *auth.JWTConfig
	tokens oauth2.TokenSource

	inflight sync.WaitGroup
	healthState
}

// APIOption configures an APIAdapter before Initialize.
type APIOption func(*APIAdapter)

// WithAPIKey authenticates requests with a bearer API key, as minted
// by auth.MintAPIKey. Initialize rejects keys that do not match the
// minted format.
func WithAPIKey(key string) APIOption {
	return func(a *APIAdapter) { a.apiKey = key }
}

// WithServiceJWT authenticates requests with a freshly minted service
// token per call.
func WithServiceJWT(cfg auth.JWTConfig) APIOption {
	return func(a *APIAdapter) { a.jwtCfg = &cfg }
}

// WithTokenSource authenticates requests through an oauth2 token source.
func WithTokenSource(ts oauth2.TokenSource) APIOption {
	return func(a *APIAdapter) { a.tokens = ts }
}

// NewAPIAdapter creates an uninitialized API adapter.
func NewAPIAdapter(opts ...APIOption) *APIAdapter {
	a := &APIAdapter{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Adapter.
func (a *APIAdapter) Name() string { return a.cfg.Name }

// Initialize implements Adapter. Fails closed when no endpoint is
// configured; the first health probe happens lazily on CheckHealth.
func (a *APIAdapter) Initialize(ctx context.Context, cfg Config) error {
	if cfg.BaseURL == "" {
		a.set(StatusUnavailable)
		return fmt.Errorf("provider %s: base URL required", cfg.Name)
	}
	if a.apiKey != "" && !auth.ValidKeyFormat(a.apiKey) {
		a.set(StatusUnavailable)
		return fmt.Errorf("provider %s: malformed api key %s", cfg.Name, auth.Fingerprint(a.apiKey))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultCallTimeout
	}
	a.cfg = cfg
	a.client = quorumhttp.NewClient(quorumhttp.ClientConfig{
		BaseURL:       cfg.BaseURL,
		ServiceName:   cfg.Name,
		BeforeRequest: a.authorize,
	})
	a.set(StatusHealthy)
	return nil
}

// authorize applies whichever credential the adapter was built with.
func (a *APIAdapter) authorize(req *http.Request) {
	switch {
	case a.tokens != nil:
		if tok, err := a.tokens.Token(); err == nil {
			tok.SetAuthHeader(req)
		}
	case a.jwtCfg != nil:
		if tok, err := auth.GenerateServiceToken(*a.jwtCfg, a.cfg.Name); err == nil {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	case a.apiKey != "":
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
}

// Capabilities implements Adapter.
func (a *APIAdapter) Capabilities() []string { return a.cfg.Capabilities }

// CanHandle implements Adapter.
func (a *APIAdapter) CanHandle(t task.Type, _ *task.Requirements) bool {
	if len(a.cfg.Capabilities) == 0 {
		return true
	}
	for _, c := range a.cfg.Capabilities {
		if c == string(t) {
			return true
		}
	}
	return false
}

// OptimalAgent implements Adapter.
func (a *APIAdapter) OptimalAgent(t task.Type) string {
	if a.cfg.Model != "" {
		return a.cfg.Model
	}
	return string(task.SelectModel(t))
}

// executeRequest is the wire format for POST /v1/tasks.
type executeRequest struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Context     string  `json:"context,omitempty"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Accuracy    float64 `json:"accuracy,omitempty"`
	Creativity  float64 `json:"creativity,omitempty"`
}

// executeResponse is the wire format providers answer with.
type executeResponse struct {
	Content      string   `json:"content"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	TokensUsed   int      `json:"tokens_used"`
	Cost         float64  `json:"cost"`
	Model        string   `json:"model,omitempty"`
}

// Execute implements Adapter. It always returns a Response.
func (a *APIAdapter) Execute(ctx context.Context, req task.Request) task.Response {
	start := time.Now()
	if !a.ready() {
		return task.FailureResponse(req.ID, a.cfg.Name, ErrNotInitialized.Error(), 0)
	}
	a.inflight.Add(1)
	defer a.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, req.Timeout(a.cfg.Timeout))
	defer cancel()

	wire := executeRequest{
		ID:          req.ID,
		Type:        string(req.Type),
		Description: req.Description,
		Context:     req.Context,
		Model:       a.OptimalAgent(req.Type),
	}
	if req.Constraints != nil {
		wire.MaxTokens = req.Constraints.MaxTokens
	}
	if req.Requirements != nil {
		wire.Accuracy = req.Requirements.Accuracy
		wire.Creativity = req.Requirements.Creativity
	}

	var out executeResponse
	err := a.client.Post(ctx, "/v1/tasks", wire, &out)
	elapsed := time.Since(start)
	if err != nil {
		a.record(false, elapsed)
		return task.FailureResponse(req.ID, a.cfg.Name, err.Error(), elapsed)
	}

	a.record(true, elapsed)
	model := out.Model
	if model == "" {
		model = wire.Model
	}
	confidence := out.Confidence
	if confidence == 0 {
		confidence = 0.8
	}
	return task.Response{
		ID:     req.ID,
		Status: task.StatusSuccess,
		Result: task.Result{
			Content:      out.Content,
			Confidence:   confidence,
			Reasoning:    out.Reasoning,
			Alternatives: out.Alternatives,
		},
		Performance: task.Performance{
			Duration:   elapsed,
			TokensUsed: out.TokensUsed,
			Cost:       out.Cost,
			Model:      model,
		},
		Provider: task.ProviderInfo{
			Name:         a.cfg.Name,
			Version:      a.cfg.Version,
			Capabilities: a.cfg.Capabilities,
		},
		Timestamp: time.Now(),
	}
}

// CheckHealth implements Adapter. Probes GET /v1/health; a probe
// failure degrades rather than kills the adapter, since the next
// Execute outcome is authoritative.
func (a *APIAdapter) CheckHealth(ctx context.Context) Health {
	if a.client == nil {
		return a.snapshot()
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := a.client.Get(probeCtx, "/v1/health", nil)
	a.record(err == nil, time.Since(start))
	return a.snapshot()
}

// Ready implements Adapter.
func (a *APIAdapter) Ready() bool { return a.ready() }

// Shutdown implements Adapter. Bounded by the shared grace period.
func (a *APIAdapter) Shutdown(ctx context.Context) error {
	a.set(StatusUnavailable)

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(shutdownGrace):
		return fmt.Errorf("shutdown %s: calls still in flight after %v", a.cfg.Name, shutdownGrace)
	case <-ctx.Done():
		return ctx.Err()
	}
}
