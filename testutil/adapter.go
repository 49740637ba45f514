package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/randalmurphal/quorum/provider"
	"github.com/randalmurphal/quorum/task"
)

// FakeAdapter is a scriptable provider.Adapter for tests. The zero
// value answers every request with a StatusSuccess response named
// after the adapter; fields tailor the behavior per test.
type FakeAdapter struct {
	// AdapterName is the provider name (default "fake").
	AdapterName string

	// Types restricts CanHandle; empty means everything.
	Types []task.Type

	// Responses are returned in call order; when exhausted the last
	// one repeats. Empty means a generated success response.
	Responses []task.Response

	// Confidence for generated responses (default 0.9).
	Confidence float64

	// Delay is slept (or cut short by ctx) before answering.
	Delay time.Duration

	// FailWith, when set, turns every answer into a StatusFailure
	// with this reason.
	FailWith string

	// PanicWith, when set, makes Execute panic.
	PanicWith string

	// Unready makes Ready report false.
	Unready bool

	mu    sync.Mutex
	calls []task.Request
}

// Name implements provider.Adapter.
func (f *FakeAdapter) Name() string {
	if f.AdapterName == "" {
		return "fake"
	}
	return f.AdapterName
}

// Initialize implements provider.Adapter.
func (f *FakeAdapter) Initialize(ctx context.Context, cfg provider.Config) error {
	return nil
}

// Execute implements provider.Adapter.
func (f *FakeAdapter) Execute(ctx context.Context, req task.Request) task.Response {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls) - 1
	f.mu.Unlock()

	if f.PanicWith != "" {
		panic(f.PanicWith)
	}

	start := time.Now()
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return task.FailureResponse(req.ID, f.Name(), ctx.Err().Error(), time.Since(start))
		}
	}

	if f.FailWith != "" {
		return task.FailureResponse(req.ID, f.Name(), f.FailWith, time.Since(start))
	}

	if len(f.Responses) > 0 {
		if n >= len(f.Responses) {
			n = len(f.Responses) - 1
		}
		resp := f.Responses[n]
		if resp.ID == "" {
			resp.ID = req.ID
		}
		if resp.Provider.Name == "" {
			resp.Provider.Name = f.Name()
		}
		if resp.Timestamp.IsZero() {
			resp.Timestamp = time.Now()
		}
		return resp
	}

	confidence := f.Confidence
	if confidence == 0 {
		confidence = 0.9
	}
	return task.Response{
		ID:     req.ID,
		Status: task.StatusSuccess,
		Result: task.Result{
			Content:    "response from " + f.Name(),
			Confidence: confidence,
		},
		Performance: task.Performance{
			Duration:   time.Since(start),
			TokensUsed: 100,
			Cost:       0.01,
		},
		Provider:  task.ProviderInfo{Name: f.Name()},
		Timestamp: time.Now(),
	}
}

// Capabilities implements provider.Adapter.
func (f *FakeAdapter) Capabilities() []string {
	caps := make([]string, len(f.Types))
	for i, t := range f.Types {
		caps[i] = string(t)
	}
	return caps
}

// CanHandle implements provider.Adapter.
func (f *FakeAdapter) CanHandle(t task.Type, req *task.Requirements) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, ft := range f.Types {
		if ft == t {
			return true
		}
	}
	return false
}

// OptimalAgent implements provider.Adapter.
func (f *FakeAdapter) OptimalAgent(t task.Type) string {
	return f.Name() + "-" + string(t)
}

// CheckHealth implements provider.Adapter.
func (f *FakeAdapter) CheckHealth(ctx context.Context) provider.Health {
	status := provider.StatusHealthy
	if f.Unready {
		status = provider.StatusUnavailable
	}
	return provider.Health{Status: status, LastCheck: time.Now()}
}

// Ready implements provider.Adapter.
func (f *FakeAdapter) Ready() bool {
	return !f.Unready
}

// Shutdown implements provider.Adapter.
func (f *FakeAdapter) Shutdown(ctx context.Context) error {
	return nil
}

// Calls returns the requests Execute received, in order.
func (f *FakeAdapter) Calls() []task.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]task.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times Execute was invoked.
func (f *FakeAdapter) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
