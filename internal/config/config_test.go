package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "127.0.0.1:7071", c.Addr())
	assert.Equal(t, int64(250*1024*1024), c.MaxZipBytes())
	assert.Equal(t, int64(500*1024*1024), c.MaxDownloadBytes())
	assert.Equal(t, "CloudRAMS-LocalAgent", c.TaskName)
	assert.Equal(t, []string{"notepad++.exe", "chrome.exe", "Code.exe"}, c.TrackedProcesses)
	assert.Equal(t, 120*time.Second, c.TransferTimeout.Duration)
	assert.NoError(t, c.Validate())
}

func TestDefaultDataDirUsesLocalAppData(t *testing.T) {
	t.Setenv("LOCALAPPDATA", filepath.Join("x", "appdata"))
	assert.Equal(t, filepath.Join("x", "appdata", "CloudRAMSAgent"), DefaultDataDir())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := []byte(`
port: 9000
max_zip_mb: 10
safe_base_dirs:
  - /srv/projects
transfer_timeout: 30s
collect_interval: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	c := Default()
	require.NoError(t, c.LoadFile(path))

	assert.Equal(t, 9000, c.Port)
	assert.Equal(t, 10, c.MaxZipMB)
	assert.Equal(t, []string{"/srv/projects"}, c.SafeBaseDirs)
	assert.Equal(t, 30*time.Second, c.TransferTimeout.Duration)
	assert.Equal(t, 5*time.Second, c.CollectInterval.Duration)
	// untouched keys keep defaults
	assert.Equal(t, DefaultHost, c.Host)
	assert.Equal(t, DefaultMaxDownloadMB, c.MaxDownloadMB)
}

func TestLoadFileErrors(t *testing.T) {
	c := Default()
	assert.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transfer_timeout: soon\n"), 0o600))
	assert.Error(t, c.LoadFile(path))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too high", func(c *Config) { c.Port = 70000 }},
		{"zero zip limit", func(c *Config) { c.MaxZipMB = 0 }},
		{"negative download limit", func(c *Config) { c.MaxDownloadMB = -1 }},
		{"blank task name", func(c *Config) { c.TaskName = "  " }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"negative retries", func(c *Config) { c.TransferRetries = -1 }},
		{"zero interval", func(c *Config) { c.CollectInterval = Duration{} }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := Default()
			test.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	c := Default()
	c.DataDir = t.TempDir()
	require.NoError(t, c.EnsureDirs())

	for _, dir := range []string{c.LogDir(), c.CacheDir(), c.DownloadsDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a , ,b,"))
	assert.Nil(t, SplitList(""))
}
