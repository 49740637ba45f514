package provider

import (
	"context"
	"sync"
	"time"

	"github.com/randalmurphal/quorum/task"
)

// HealthStatus describes how trustworthy a provider currently is.
type HealthStatus string

const (
	StatusHealthy     HealthStatus = "healthy"
	StatusDegraded    HealthStatus = "degraded"
	StatusUnavailable HealthStatus = "unavailable"
)

// Health is a point-in-time view of a provider's condition.
// It is owned and updated only by the adapter itself; callers treat
// it as advisory until the next Execute outcome confirms it.
type Health struct {
	Status       HealthStatus  `json:"status"`
	ResponseTime time.Duration `json:"responseTime,omitempty"`
	SuccessRate  float64       `json:"successRate"`
	ErrorRate    float64       `json:"errorRate"`
	LastCheck    time.Time     `json:"lastCheck"`
}

// Config configures one adapter instance.
type Config struct {
	// Name identifies the provider in the registry and in responses.
	Name string

	// Version is reported in TaskResponse.Provider.
	Version string

	// BinaryPath is the executable for subprocess-backed providers.
	BinaryPath string

	// BaseURL is the endpoint for API-backed providers.
	BaseURL string

	// Model overrides task-type based model selection when set.
	Model string

	// Timeout bounds individual provider calls (default 2m).
	Timeout time.Duration

	// Capabilities lists what the provider advertises it can do.
	Capabilities []string

	// Options carries provider-specific settings.
	Options map[string]string
}

// Adapter is the uniform capability contract every provider
// integration satisfies. Concrete variants wrap a local subprocess,
// a network API, or a pool of in-process agents.
//
// Execute must always return a Response and must tolerate concurrent
// calls: any per-call state (a child process handle, an HTTP request)
// is scoped to the call, never to the adapter instance.
type Adapter interface {
	// Name returns the provider name the adapter is registered under.
	Name() string

	// Initialize prepares the adapter. It fails closed: on error the
	// adapter reports StatusUnavailable and Ready() is false.
	Initialize(ctx context.Context, cfg Config) error

	// Execute runs one task. It never returns an error: internal
	// failures, timeouts and panics become a StatusFailure response.
	Execute(ctx context.Context, req task.Request) task.Response

	// Capabilities returns the provider's advertised capabilities.
	Capabilities() []string

	// CanHandle is the pre-dispatch filter used to skip ineligible
	// adapters before spending a round trip.
	CanHandle(t task.Type, req *task.Requirements) bool

	// OptimalAgent names the internal agent or model the adapter
	// would use for the given task type.
	OptimalAgent(t task.Type) string

	// CheckHealth refreshes and returns the adapter's health.
	CheckHealth(ctx context.Context) Health

	// Ready reports whether the adapter is initialized and not
	// unavailable.
	Ready() bool

	// Shutdown releases resources. It is idempotent and bounded.
	Shutdown(ctx context.Context) error
}

// healthState is the embeddable health tracker shared by the concrete
// adapters. Updates are serialized; reads return a copy.
type healthState struct {
	mu       sync.Mutex
	health   Health
	calls    int
	failures int
}

func (h *healthState) set(status HealthStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.health.Status = status
	h.health.LastCheck = time.Now()
}

// record folds one call outcome into the rolling success/error rates
// and derives the status: healthy, degraded past 25% errors,
// unavailable past 75%.
func (h *healthState) record(ok bool, elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls++
	if !ok {
		h.failures++
	}
	errRate := float64(h.failures) / float64(h.calls)

	h.health.ResponseTime = elapsed
	h.health.SuccessRate = 1 - errRate
	h.health.ErrorRate = errRate
	h.health.LastCheck = time.Now()

	switch {
	case errRate > 0.75:
		h.health.Status = StatusUnavailable
	case errRate > 0.25:
		h.health.Status = StatusDegraded
	default:
		h.health.Status = StatusHealthy
	}
}

func (h *healthState) snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.health
}

func (h *healthState) ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.health.Status != StatusUnavailable && !h.health.LastCheck.IsZero()
}
