package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/randalmurphal/quorum/prompt"
	"github.com/randalmurphal/quorum/task"
)

// Subprocess adapter errors.
var (
	// ErrBinaryNotFound indicates the provider CLI binary was not found.
	ErrBinaryNotFound = errors.New("provider binary not found")

	// ErrNotInitialized indicates Execute was called before Initialize.
	ErrNotInitialized = errors.New("adapter not initialized")
)

// DefaultCallTimeout bounds provider calls when the request carries
// no timeout constraint.
const DefaultCallTimeout = 2 * time.Minute

// shutdownGrace is how long Shutdown waits for in-flight calls before
// returning. Child processes are killed through context cancellation.
const shutdownGrace = 5 * time.Second

// killDelay is how long a canceled call waits between SIGTERM to the
// child's process group and the forced kill.
const killDelay = time.Second

// SubprocessAdapter reaches a provider through a local CLI binary.
// Arguments are built from the task description and derived
// parameters; stdout/stderr are captured, and a non-zero exit becomes
// a failure response carrying the captured stderr.
//
// Each call owns its own child process, so concurrent Execute calls
// do not interfere.
type SubprocessAdapter struct {
	cfg      Config
	prompts  *prompt.Loader
	inflight sync.WaitGroup
	healthState
}

// NewSubprocessAdapter creates an uninitialized subprocess adapter.
func NewSubprocessAdapter() *SubprocessAdapter {
	return &SubprocessAdapter{}
}

// WithPromptLoader attaches a system-prompt template loader. When
// set, Execute loads the template named after the task type.
func (a *SubprocessAdapter) WithPromptLoader(loader *prompt.Loader) *SubprocessAdapter {
	a.prompts = loader
	return a
}

// Name implements Adapter.
func (a *SubprocessAdapter) Name() string { return a.cfg.Name }

// Initialize implements Adapter. It verifies the binary is on PATH
// and fails closed when it is not.
func (a *SubprocessAdapter) Initialize(ctx context.Context, cfg Config) error {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = cfg.Name
	}
	if _, err := exec.LookPath(cfg.BinaryPath); err != nil {
		a.set(StatusUnavailable)
		return fmt.Errorf("%w: %s", ErrBinaryNotFound, cfg.BinaryPath)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultCallTimeout
	}
	a.cfg = cfg
	a.set(StatusHealthy)
	return nil
}

// Capabilities implements Adapter.
func (a *SubprocessAdapter) Capabilities() []string { return a.cfg.Capabilities }

// CanHandle implements Adapter. A subprocess provider handles every
// task type; capability-listed adapters are restricted to their list.
func (a *SubprocessAdapter) CanHandle(t task.Type, _ *task.Requirements) bool {
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

// OptimalAgent implements Adapter: the model the call would run with.
func (a *SubprocessAdapter) OptimalAgent(t task.Type) string {
	return a.modelFor(t)
}

func (a *SubprocessAdapter) modelFor(t task.Type) string {
	if a.cfg.Model != "" {
		return a.cfg.Model
	}
	return string(task.SelectModel(t))
}

// Execute implements Adapter. It always returns a Response.
func (a *SubprocessAdapter) Execute(ctx context.Context, req task.Request) task.Response {
	start := time.Now()
	if !a.ready() {
		return task.FailureResponse(req.ID, a.cfg.Name, ErrNotInitialized.Error(), 0)
	}
	a.inflight.Add(1)
	defer a.inflight.Done()

	timeout := req.Timeout(a.cfg.Timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := a.modelFor(req.Type)
	args := a.buildArgs(req, model)

	cmd := exec.CommandContext(ctx, a.cfg.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// The child gets its own process group so cancellation reaches
	// any grandchildren it spawned. A surviving grandchild would
	// otherwise hold the stdout pipe open and stall Wait until
	// WaitDelay expires.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killDelay

	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		a.record(false, elapsed)
		reason := fmt.Sprintf("%s exited: %v", a.cfg.BinaryPath, err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %v", timeout)
		} else if s := strings.TrimSpace(stderr.String()); s != "" {
			reason = s
		}
		return task.FailureResponse(req.ID, a.cfg.Name, reason, elapsed)
	}

	a.record(true, elapsed)
	return a.parseOutput(req.ID, model, stdout.Bytes(), elapsed)
}

// buildArgs constructs the provider CLI arguments for one call.
func (a *SubprocessAdapter) buildArgs(req task.Request, model string) []string {
	args := []string{"--print", "--output-format", "json"}

	if model != "" {
		args = append(args, "--model", model)
	}
	if req.Constraints != nil && req.Constraints.MaxTokens > 0 {
		args = append(args, "--max-tokens", fmt.Sprintf("%d", req.Constraints.MaxTokens))
	}
	if a.prompts != nil {
		if sp, err := a.prompts.Load(string(req.Type)); err == nil {
			args = append(args, "--system-prompt", sp)
		}
	}

	fullPrompt := req.Description
	if req.Context != "" {
		fullPrompt = req.Description + "\n\n## Context\n\n" + req.Context
	}
	args = append(args, "-p", fullPrompt)

	return args
}

// subprocessOutput is the JSON document provider CLIs print.
// Field names vary across CLI versions; alternates are folded below.
type subprocessOutput struct {
	Result       string   `json:"result"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
	Alternatives []string `json:"alternatives"`
	TokensIn     int      `json:"tokens_in"`
	TokensOut    int      `json:"tokens_out"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	Cost         float64  `json:"cost"`
	CostUSD      float64  `json:"cost_usd"`
}

func (a *SubprocessAdapter) parseOutput(id, model string, data []byte, elapsed time.Duration) task.Response {
	resp := task.Response{
		ID:     id,
		Status: task.StatusSuccess,
		Performance: task.Performance{
			Duration: elapsed,
			Model:    model,
		},
		Provider: task.ProviderInfo{
			Name:         a.cfg.Name,
			Version:      a.cfg.Version,
			Capabilities: a.cfg.Capabilities,
		},
		Timestamp: time.Now(),
	}

	out, err := parseJSONOutput(data)
	if err != nil {
		// Raw text fallback: usable content, unknown confidence
		resp.Result = task.Result{
			Content:    strings.TrimSpace(string(data)),
			Confidence: 0.5,
		}
		return resp
	}

	confidence := out.Confidence
	if confidence == 0 {
		confidence = 0.8
	}

	tokensIn := out.TokensIn
	if tokensIn == 0 {
		tokensIn = out.InputTokens
	}
	tokensOut := out.TokensOut
	if tokensOut == 0 {
		tokensOut = out.OutputTokens
	}
	cost := out.Cost
	if cost == 0 {
		cost = out.CostUSD
	}

	resp.Result = task.Result{
		Content:      out.Result,
		Confidence:   confidence,
		Reasoning:    out.Reasoning,
		Alternatives: out.Alternatives,
	}
	resp.Performance.TokensUsed = tokensIn + tokensOut
	resp.Performance.Cost = cost
	return resp
}

// parseJSONOutput finds and parses the JSON object in CLI output,
// which may be mixed with other content.
func parseJSONOutput(data []byte) (*subprocessOutput, error) {
	data = bytes.TrimSpace(data)

	var out subprocessOutput
	if err := json.Unmarshal(data, &out); err != nil {
		start := bytes.Index(data, []byte("{"))
		end := bytes.LastIndex(data, []byte("}"))
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no json found in output")
		}
		if err := json.Unmarshal(data[start:end+1], &out); err != nil {
			return nil, fmt.Errorf("parse json output: %w", err)
		}
	}
	return &out, nil
}

// CheckHealth implements Adapter. For a subprocess provider, health
// is the rolling view of recent call outcomes; there is no separate
// probe worth a process spawn.
func (a *SubprocessAdapter) CheckHealth(ctx context.Context) Health {
	return a.snapshot()
}

// Ready implements Adapter.
func (a *SubprocessAdapter) Ready() bool { return a.ready() }

// Shutdown implements Adapter. New calls are refused immediately;
// in-flight child processes get the grace period to exit before the
// adapter stops waiting on them. Idempotent.
func (a *SubprocessAdapter) Shutdown(ctx context.Context) error {
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
