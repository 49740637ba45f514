package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/quorum/task"
)

// writeFakeBinary drops an executable shell script into a temp dir and
// returns its path.
func writeFakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell binaries need a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fake-provider")
	content := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func initSubprocess(t *testing.T, script string) *SubprocessAdapter {
	t.Helper()

	adapter := NewSubprocessAdapter()
	cfg := Config{
		Name:       "fake",
		BinaryPath: writeFakeBinary(t, script),
		Timeout:    10 * time.Second,
	}
	if err := adapter.Initialize(context.Background(), cfg); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return adapter
}

func TestSubprocessAdapter_InitializeBinaryNotFound(t *testing.T) {
	adapter := NewSubprocessAdapter()
	err := adapter.Initialize(context.Background(), Config{
		Name:       "ghost",
		BinaryPath: "/nonexistent/binary",
	})
	if !errors.Is(err, ErrBinaryNotFound) {
		t.Errorf("err = %v, want ErrBinaryNotFound", err)
	}
	if adapter.Ready() {
		t.Error("Ready() = true after failed init, want false")
	}
}

func TestSubprocessAdapter_ExecuteNotInitialized(t *testing.T) {
	adapter := NewSubprocessAdapter()
	resp := adapter.Execute(context.Background(), task.NewRequest(task.Code, "hi"))
	if resp.Succeeded() {
		t.Error("Execute() on uninitialized adapter should fail")
	}
	if !strings.Contains(resp.Result.Reasoning, "not initialized") {
		t.Errorf("Reasoning = %q, want not-initialized reason", resp.Result.Reasoning)
	}
}

func TestSubprocessAdapter_ExecuteJSON(t *testing.T) {
	adapter := initSubprocess(t, `echo '{"result":"the answer","confidence":0.92,"reasoning":"checked twice","tokens_in":120,"tokens_out":80,"cost":0.034}'`)

	req := task.NewRequest(task.Code, "compute")
	resp := adapter.Execute(context.Background(), req)

	if !resp.Succeeded() {
		t.Fatalf("Execute() failed: %s", resp.Result.Reasoning)
	}
	if resp.Result.Content != "the answer" {
		t.Errorf("Content = %q, want %q", resp.Result.Content, "the answer")
	}
	if resp.Result.Confidence != 0.92 {
		t.Errorf("Confidence = %f, want 0.92", resp.Result.Confidence)
	}
	if resp.Performance.TokensUsed != 200 {
		t.Errorf("TokensUsed = %d, want 200", resp.Performance.TokensUsed)
	}
	if resp.Performance.Cost != 0.034 {
		t.Errorf("Cost = %f, want 0.034", resp.Performance.Cost)
	}
	if resp.ID != req.ID {
		t.Errorf("ID = %q, want request ID", resp.ID)
	}
}

func TestSubprocessAdapter_ExecuteAlternateFieldNames(t *testing.T) {
	adapter := initSubprocess(t, `echo '{"result":"ok","input_tokens":50,"output_tokens":25,"cost_usd":0.01}'`)

	resp := adapter.Execute(context.Background(), task.NewRequest(task.Code, "compute"))
	if !resp.Succeeded() {
		t.Fatalf("Execute() failed: %s", resp.Result.Reasoning)
	}
	if resp.Performance.TokensUsed != 75 {
		t.Errorf("TokensUsed = %d, want 75", resp.Performance.TokensUsed)
	}
	if resp.Performance.Cost != 0.01 {
		t.Errorf("Cost = %f, want 0.01", resp.Performance.Cost)
	}
	// Absent confidence defaults rather than reading as zero.
	if resp.Result.Confidence != 0.8 {
		t.Errorf("Confidence = %f, want default 0.8", resp.Result.Confidence)
	}
}

func TestSubprocessAdapter_ExecuteRawTextFallback(t *testing.T) {
	adapter := initSubprocess(t, `echo 'plain text, no json here'`)

	resp := adapter.Execute(context.Background(), task.NewRequest(task.Creative, "write"))
	if !resp.Succeeded() {
		t.Fatalf("Execute() failed: %s", resp.Result.Reasoning)
	}
	if resp.Result.Content != "plain text, no json here" {
		t.Errorf("Content = %q, want raw output", resp.Result.Content)
	}
	if resp.Result.Confidence != 0.5 {
		t.Errorf("Confidence = %f, want 0.5 for unstructured output", resp.Result.Confidence)
	}
}

func TestSubprocessAdapter_ExecuteNonZeroExit(t *testing.T) {
	adapter := initSubprocess(t, `echo 'rate limited' >&2; exit 1`)

	resp := adapter.Execute(context.Background(), task.NewRequest(task.Code, "compute"))
	if resp.Succeeded() {
		t.Fatal("Execute() succeeded, want failure on non-zero exit")
	}
	if resp.Result.Reasoning != "rate limited" {
		t.Errorf("Reasoning = %q, want captured stderr", resp.Result.Reasoning)
	}
}

func TestSubprocessAdapter_ExecuteTimeout(t *testing.T) {
	// The backgrounded sleep forces a grandchild holding the stdout
	// pipe; cancellation must take down the whole process group or
	// the call drags on until the grandchild exits.
	adapter := initSubprocess(t, "sleep 5 &\nwait")

	req := task.NewRequest(task.Code, "slow").
		WithConstraints(task.Constraints{Timeout: 100 * time.Millisecond})

	start := time.Now()
	resp := adapter.Execute(context.Background(), req)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Execute took %v, want prompt timeout", elapsed)
	}

	if resp.Succeeded() {
		t.Fatal("Execute() succeeded, want timeout failure")
	}
	if !strings.Contains(resp.Result.Reasoning, "timed out") {
		t.Errorf("Reasoning = %q, want timeout reason", resp.Result.Reasoning)
	}
}

func TestSubprocessAdapter_BuildArgs(t *testing.T) {
	adapter := &SubprocessAdapter{cfg: Config{Name: "fake", Model: "sonnet"}}

	req := task.NewRequest(task.Code, "do the thing").
		WithConstraints(task.Constraints{MaxTokens: 4000})
	req.Context = "earlier findings"

	args := adapter.buildArgs(req, "sonnet")

	want := []string{
		"--print", "--output-format", "json",
		"--model", "sonnet",
		"--max-tokens", "4000",
		"-p", "do the thing\n\n## Context\n\nearlier findings",
	}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestSubprocessAdapter_CanHandle(t *testing.T) {
	unrestricted := &SubprocessAdapter{}
	if !unrestricted.CanHandle(task.Creative, nil) {
		t.Error("adapter without capabilities should handle everything")
	}

	restricted := &SubprocessAdapter{cfg: Config{Capabilities: []string{"code", "analysis"}}}
	if !restricted.CanHandle(task.Code, nil) {
		t.Error("CanHandle(code) = false, want true")
	}
	if restricted.CanHandle(task.Creative, nil) {
		t.Error("CanHandle(creative) = true, want false")
	}
}

func TestSubprocessAdapter_HealthTracksOutcomes(t *testing.T) {
	adapter := initSubprocess(t, `exit 1`)

	for range 4 {
		adapter.Execute(context.Background(), task.NewRequest(task.Code, "fail"))
	}

	health := adapter.CheckHealth(context.Background())
	if health.Status != StatusUnavailable {
		t.Errorf("Status = %s, want unavailable after repeated failures", health.Status)
	}
	if health.ErrorRate != 1.0 {
		t.Errorf("ErrorRate = %f, want 1.0", health.ErrorRate)
	}
}

func TestSubprocessAdapter_Shutdown(t *testing.T) {
	adapter := initSubprocess(t, `echo '{"result":"ok"}'`)

	if err := adapter.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if adapter.Ready() {
		t.Error("Ready() = true after Shutdown")
	}

	resp := adapter.Execute(context.Background(), task.NewRequest(task.Code, "late"))
	if resp.Succeeded() {
		t.Error("Execute() after Shutdown should fail")
	}
}

func TestParseJSONOutput_EmbeddedJSON(t *testing.T) {
	data := []byte("some preamble\n{\"result\":\"found it\",\"confidence\":0.9}\ntrailing noise")
	// LastIndex of } lands on the JSON object because the noise has none.
	out, err := parseJSONOutput(data)
	if err != nil {
		t.Fatalf("parseJSONOutput() error = %v", err)
	}
	if out.Result != "found it" {
		t.Errorf("Result = %q, want %q", out.Result, "found it")
	}
}
