package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoguard/repoguard/internal/config"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := NewFileLoader("").Load(context.Background())
	require.NoError(t, err)

	want := config.Default()
	assert.Equal(t, want.Web.APIHost, cfg.Web.APIHost)
	assert.Equal(t, want.Admission.Scan.Limit, cfg.Admission.Scan.Limit)
	assert.Equal(t, want.Fetch.MaxFiles, cfg.Fetch.MaxFiles)
	assert.Equal(t, want.Scan.Timeout, cfg.Scan.Timeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
web:
  api_host: "127.0.0.1:9090"
admission:
  scan:
    limit: 3
    window: 30s
github:
  token: "file-token"
fetch:
  max_files: 100
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Web.APIHost)
	assert.Equal(t, 3, cfg.Admission.Scan.Limit)
	assert.Equal(t, 30*time.Second, cfg.Admission.Scan.Window)
	assert.Equal(t, "file-token", cfg.GitHub.Token)
	assert.Equal(t, 100, cfg.Fetch.MaxFiles)

	// Untouched sections keep their defaults.
	assert.Equal(t, config.Default().Web.ReadTimeout, cfg.Web.ReadTimeout)
	assert.Equal(t, config.Default().Admission.Login.Limit, cfg.Admission.Login.Limit)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("github:\n  token: \"file-token\"\n"), 0o644))

	t.Setenv("REPOGUARD_GITHUB_TOKEN", "env-token")

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.GitHub.Token)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := NewFileLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load(context.Background())
	require.Error(t, err)
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("web: [not a map"), 0o644))

	_, err := NewFileLoader(path).Load(context.Background())
	require.Error(t, err)
}
