package integrationtest

import (
	"context"
	"fmt"
	"testing"

	llm "github.com/randalmurphal/llmkit/claude"

	quorum "github.com/randalmurphal/quorum"
	"github.com/randalmurphal/quorum/memory"
	"github.com/randalmurphal/quorum/provider"
)

// registerAgentPool registers a multi-agent adapter backed by a mock
// LLM client under the given provider name.
func registerAgentPool(t *testing.T, registry *provider.Registry, name string, client llm.Client) {
	t.Helper()

	adapter := provider.NewMultiAgentAdapter(provider.Agent{
		Name:   name + "-generalist",
		Client: client,
	})
	if err := adapter.Initialize(context.Background(), provider.Config{Name: name}); err != nil {
		t.Fatalf("Initialize %s: %v", name, err)
	}
	registry.Register(adapter)
}

// setupEngine builds an engine over mock-backed providers with a
// file store in a test temp dir.
func setupEngine(t *testing.T, providerAnswers map[string]string, opts ...quorum.Option) (*quorum.Engine, *provider.Registry) {
	t.Helper()

	registry := provider.NewRegistry()
	for name, answer := range providerAnswers {
		registerAgentPool(t, registry, name, llm.NewMockClient(answer))
	}

	store, err := memory.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	opts = append([]quorum.Option{quorum.WithMemory(store, "integration")}, opts...)
	engine := quorum.NewEngine(registry, opts...)

	t.Cleanup(func() {
		if err := registry.Shutdown(context.Background()); err != nil {
			t.Errorf("registry shutdown: %v", err)
		}
	})

	return engine, registry
}

// failingClient always errors, making its provider produce failure
// responses.
func failingClient(reason string) llm.Client {
	return llm.NewMockClient("").WithCompleteFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, fmt.Errorf("%s", reason)
	})
}
