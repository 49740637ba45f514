package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	llm "github.com/randalmurphal/llmkit/claude"

	"github.com/randalmurphal/quorum/task"
)

// Agent is one named worker inside a MultiAgentAdapter. Each agent
// runs on its own llm.Client (its own model, workdir, permissions)
// and declares which task types it is best suited for.
type Agent struct {
	// Name identifies the agent inside the adapter.
	Name string

	// Types the agent specializes in. An agent with no types is a
	// generalist and can take anything.
	Types []task.Type

	// SystemPrompt shapes the agent's behavior.
	SystemPrompt string

	// Client executes completions for this agent.
	Client llm.Client
}

func (a Agent) handles(t task.Type) bool {
	if len(a.Types) == 0 {
		return true
	}
	for _, at := range a.Types {
		if at == t {
			return true
		}
	}
	return false
}

// MultiAgentAdapter fronts a pool of in-process agents behind the
// single-provider contract. Execute routes each task to the optimal
// agent for its type; the pool itself stays opaque to the engine.
type MultiAgentAdapter struct {
	cfg    Config
	agents []Agent

	inflight sync.WaitGroup
	healthState
}

// NewMultiAgentAdapter creates an adapter over the given agents.
func NewMultiAgentAdapter(agents ...Agent) *MultiAgentAdapter {
	return &MultiAgentAdapter{agents: agents}
}

// Name implements Adapter.
func (m *MultiAgentAdapter) Name() string { return m.cfg.Name }

// Initialize implements Adapter. Fails closed when the pool is empty
// or an agent has no client.
func (m *MultiAgentAdapter) Initialize(ctx context.Context, cfg Config) error {
	if len(m.agents) == 0 {
		m.set(StatusUnavailable)
		return fmt.Errorf("provider %s: no agents configured", cfg.Name)
	}
	for _, agent := range m.agents {
		if agent.Client == nil {
			m.set(StatusUnavailable)
			return fmt.Errorf("provider %s: agent %s has no client", cfg.Name, agent.Name)
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultCallTimeout
	}
	m.cfg = cfg
	m.set(StatusHealthy)
	return nil
}

// Capabilities implements Adapter: the union of agent specialties.
func (m *MultiAgentAdapter) Capabilities() []string {
	seen := make(map[string]bool)
	var caps []string
	for _, agent := range m.agents {
		for _, t := range agent.Types {
			if !seen[string(t)] {
				seen[string(t)] = true
				caps = append(caps, string(t))
			}
		}
	}
	return caps
}

// CanHandle implements Adapter.
func (m *MultiAgentAdapter) CanHandle(t task.Type, _ *task.Requirements) bool {
	for _, agent := range m.agents {
		if agent.handles(t) {
			return true
		}
	}
	return false
}

// OptimalAgent implements Adapter: the first specialist for the task
// type, falling back to the first generalist.
func (m *MultiAgentAdapter) OptimalAgent(t task.Type) string {
	if agent := m.pick(t); agent != nil {
		return agent.Name
	}
	return ""
}

func (m *MultiAgentAdapter) pick(t task.Type) *Agent {
	var generalist *Agent
	for i := range m.agents {
		agent := &m.agents[i]
		if len(agent.Types) == 0 {
			if generalist == nil {
				generalist = agent
			}
			continue
		}
		if agent.handles(t) {
			return agent
		}
	}
	return generalist
}

// Execute implements Adapter. It always returns a Response.
func (m *MultiAgentAdapter) Execute(ctx context.Context, req task.Request) task.Response {
	start := time.Now()
	if !m.ready() {
		return task.FailureResponse(req.ID, m.cfg.Name, ErrNotInitialized.Error(), 0)
	}
	m.inflight.Add(1)
	defer m.inflight.Done()

	agent := m.pick(req.Type)
	if agent == nil {
		return task.FailureResponse(req.ID, m.cfg.Name,
			fmt.Sprintf("no agent handles task type %s", req.Type), time.Since(start))
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout(m.cfg.Timeout))
	defer cancel()

	content := req.Description
	if req.Context != "" {
		content = req.Description + "\n\n## Context\n\n" + req.Context
	}

	result, err := agent.Client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: agent.SystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: content}},
	})
	elapsed := time.Since(start)
	if err != nil {
		m.record(false, elapsed)
		return task.FailureResponse(req.ID, m.cfg.Name,
			fmt.Sprintf("agent %s: %v", agent.Name, err), elapsed)
	}

	m.record(true, elapsed)
	return task.Response{
		ID:     req.ID,
		Status: task.StatusSuccess,
		Result: task.Result{
			Content:    result.Content,
			Confidence: 0.8,
			Reasoning:  fmt.Sprintf("agent %s (%s)", agent.Name, req.Type),
		},
		Performance: task.Performance{
			Duration:   elapsed,
			TokensUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
			Model:      string(task.SelectModel(req.Type)),
		},
		Provider: task.ProviderInfo{
			Name:         m.cfg.Name,
			Version:      m.cfg.Version,
			Capabilities: m.Capabilities(),
		},
		Timestamp: time.Now(),
	}
}

// CheckHealth implements Adapter. Agents are in-process, so health is
// the rolling call outcome view.
func (m *MultiAgentAdapter) CheckHealth(ctx context.Context) Health {
	return m.snapshot()
}

// Ready implements Adapter.
func (m *MultiAgentAdapter) Ready() bool { return m.ready() }

// Shutdown implements Adapter.
func (m *MultiAgentAdapter) Shutdown(ctx context.Context) error {
	m.set(StatusUnavailable)

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(shutdownGrace):
		return fmt.Errorf("shutdown %s: calls still in flight after %v", m.cfg.Name, shutdownGrace)
	case <-ctx.Done():
		return ctx.Err()
	}
}
