package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/ocistore/pkg/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "config")
	assert.Contains(t, names, "version")

	serve, _, err := cmd.Find([]string{"start"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())
	assert.NotNil(t, serve.Flags().Lookup("config"))
}

func TestVersionCmd(t *testing.T) {
	t.Cleanup(func() { version.Set("dev", "unknown", "unknown") })
	SetVersionInfo("v0.3.0", "deadbeef", "2026-10-01")

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "full",
			args: []string{"version"},
			want: []string{"ocistore v0.3.0", "Commit: deadbeef", "Build Date: 2026-10-01"},
		},
		{
			name: "short",
			args: []string{"version", "--short"},
			want: []string{"v0.3.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestConfigCmd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "ocistore.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[server]
port = 5050
max_manifest_size = "2MiB"

[storage]
backend = "memory"
`), 0600))

	out, err := execute(t, "config", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, ":5050")
	assert.Contains(t, out, "memory")
	assert.Contains(t, out, "2.0 MiB")
}

func TestConfigCmd_InvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "ocistore.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\nbackend = \"tape\"\n"), 0600))

	_, err := execute(t, "config", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}
