package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent.toml"))
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Analyzer.Endpoint, cfg.Analyzer.Endpoint)
	assert.Equal(t, 300, cfg.Processing.DebounceMs)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
version = 1

[analyzer]
endpoint = "http://localhost:9000"
mode = "markdown"
timeout_sec = 5

[processing]
debounce_ms = 150

[flags]
auto_correct = false
debug_border = true
`), 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", cfg.Analyzer.Endpoint)
	assert.Equal(t, "markdown", cfg.Analyzer.Mode)
	assert.Equal(t, 150*time.Millisecond, cfg.Processing.Debounce())
	assert.False(t, cfg.Flags.AutoCorrect)
	assert.True(t, cfg.Flags.DebugBorder)

	// Unset sections keep their defaults.
	assert.Equal(t, "127.0.0.1:8765", cfg.Bridge.Listen)
}

func TestLoadJSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"analyzer": {"endpoint": "http://j:1", "mode": "plain", "timeout_sec": 3}}`), 0o644))
	cfg, err := NewLoader(jsonPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "http://j:1", cfg.Analyzer.Endpoint)

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("analyzer:\n  endpoint: http://y:2\n"), 0o644))
	cfg, err = NewLoader(yamlPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "http://y:2", cfg.Analyzer.Endpoint)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty analyzer endpoint", func(c *Config) { c.Analyzer.Endpoint = "" }},
		{"unknown analyzer mode", func(c *Config) { c.Analyzer.Mode = "latex" }},
		{"zero analyzer timeout", func(c *Config) { c.Analyzer.TimeoutSec = 0 }},
		{"negative debounce", func(c *Config) { c.Processing.DebounceMs = -1 }},
		{"empty bridge listen", func(c *Config) { c.Bridge.Listen = "" }},
		{"history enabled without path", func(c *Config) { c.History.Path = "" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"file output without path", func(c *Config) { c.Logging.Output = "file" }},
		{"negative log size limit", func(c *Config) { c.Logging.MaxSizeMB = -1 }},
		{"negative log retention", func(c *Config) { c.Logging.MaxAgeDays = -1 }},
		{"negative log backups", func(c *Config) { c.Logging.MaxBackups = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PROOFD_ANALYZER_ENDPOINT", "http://env:4")
	t.Setenv("PROOFD_DEBOUNCE_MS", "42")
	t.Setenv("PROOFD_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "http://env:4", cfg.Analyzer.Endpoint)
	assert.Equal(t, 42, cfg.Processing.DebounceMs)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, cfg.Validate())

	_, err = os.Stat(path)
	require.NoError(t, err)

	// Second call loads the file it just wrote.
	cfg2, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cfg.Analyzer.Endpoint, cfg2.Analyzer.Endpoint)
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[processing]\ndebounce_ms = 100\n"), 0o644))

	l := NewLoader(path)
	_, err := l.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) { changed <- c })
	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("[processing]\ndebounce_ms = 250\n"), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, 250, cfg.Processing.DebounceMs)
		assert.Equal(t, 250, l.Config().Processing.DebounceMs)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestWatchRejectsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[processing]\ndebounce_ms = 100\n"), 0o644))

	l := NewLoader(path)
	_, err := l.Load()
	require.NoError(t, err)
	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("[analyzer]\nmode = \"latex\"\n"), 0o644))

	select {
	case err := <-l.Errors():
		assert.Error(t, err)
		// The previous config stays live.
		assert.Equal(t, 100, l.Config().Processing.DebounceMs)
	case <-time.After(5 * time.Second):
		t.Fatal("invalid reload was not reported")
	}
}
