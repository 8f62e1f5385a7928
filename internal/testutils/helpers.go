// Package testutils provides helpers shared by package tests.
package testutils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestContext creates a test context with timeout
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// WriteTempConfig writes content to ocistore.toml in a temporary directory
// and returns the file path.
func WriteTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ocistore.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// AssertEventuallyTrue retries a condition until it's true or times out
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition never became true: %s", message)
}

// FixtureConfig returns a named configuration fixture.
func FixtureConfig(name string) string {
	switch name {
	case "minimal.toml":
		return `[server]
hostname = "registry.example.com"`
	case "invalid.toml":
		return `[server
port = 5000`
	default:
		return `[server]
port = 5050
hostname = "registry.example.com"
max_manifest_size = "1MiB"
max_chunk_size = "8MiB"
allowed_cidrs = ["10.0.0.0/8"]

[storage]
backend = "memory"

[registry]
strict_manifest_digest = false
min_chunk_length = "5MB"

[logging]
level = "debug"
format = "json"

[api.rate_limit]
enabled = true
global_rps = 10
per_ip_rps = 2
burst = 5`
	}
}
