// Package testutil provides utilities for testing.
package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestContext returns a context that is canceled when the test ends.
// This ensures any goroutines started during the test are properly cleaned up.
func TestContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return ctx
}

// TestContextWithTimeout returns a context with a timeout.
// The context is also canceled when the test ends.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx
}

// LoadFixture loads a fixture file from the testdata directory.
// The path is relative to the testdata directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	fullPath := filepath.Join("testdata", path)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		t.Fatalf("failed to load fixture %s: %v", path, err)
	}

	return data
}

// LoadJSONFixture loads a fixture file and unmarshals it as JSON.
func LoadJSONFixture[T any](t *testing.T, path string) T {
	t.Helper()

	data := LoadFixture(t, path)

	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to parse JSON fixture %s: %v", path, err)
	}

	return result
}

// WriteFixture writes data to a fixture file.
// Useful for generating test fixtures from real provider output.
func WriteFixture(t *testing.T, path string, data []byte) {
	t.Helper()

	fullPath := filepath.Join("testdata", path)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create fixture directory %s: %v", dir, err)
	}

	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
}
