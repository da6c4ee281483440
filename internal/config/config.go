// Package config handles configuration loading, validation, and hot reload
// for proofd.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Analyzer configuration for the external grammar/spell engine.
	Analyzer AnalyzerConfig `toml:"analyzer" json:"analyzer" yaml:"analyzer"`

	// Processing configuration for the per-surface event loop.
	Processing ProcessingConfig `toml:"processing" json:"processing" yaml:"processing"`

	// Bridge configuration for the host websocket endpoint.
	Bridge BridgeConfig `toml:"bridge" json:"bridge" yaml:"bridge"`

	// History configuration for correction persistence.
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Flags are the feature toggles applied at startup, before any host
	// notification arrives.
	Flags FlagsConfig `toml:"flags" json:"flags" yaml:"flags"`
}

// AnalyzerConfig holds the external analyzer endpoint configuration.
type AnalyzerConfig struct {
	// Endpoint is the analyzer's base URL.
	Endpoint string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`

	// Mode selects the analysis dialect: "plain" or "markdown".
	Mode string `toml:"mode" json:"mode" yaml:"mode"`

	// TimeoutSec is the per-call timeout in seconds.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// ProcessingConfig holds event-loop tuning.
type ProcessingConfig struct {
	// DebounceMs is the reprocess debounce window in milliseconds.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// MaxTextLen is the largest surface text, in runes, that gets analyzed.
	// Longer content is skipped to keep passes cheap. 0 disables the cap.
	MaxTextLen int `toml:"max_text_len" json:"max_text_len" yaml:"max_text_len"`
}

// BridgeConfig holds the host bridge listener configuration.
type BridgeConfig struct {
	// Listen is the websocket listen address.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`

	// AllowedOrigins restricts websocket upgrades. Empty allows any origin,
	// which is only sane for loopback listeners.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`

	// MaxMessageBytes caps a single inbound message.
	MaxMessageBytes int64 `toml:"max_message_bytes" json:"max_message_bytes" yaml:"max_message_bytes"`

	// WriteTimeoutSec bounds outbound writes.
	WriteTimeoutSec int `toml:"write_timeout_sec" json:"write_timeout_sec" yaml:"write_timeout_sec"`
}

// HistoryConfig holds correction-history persistence configuration.
type HistoryConfig struct {
	// Enabled determines whether corrections are persisted.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database path.
	Path string `toml:"path" json:"path" yaml:"path"`

	// RetentionDays is how long correction rows are kept. 0 keeps forever.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: "stdout", "stderr", or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path when Output is "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB rotates the log file when it grows past this many megabytes.
	MaxSizeMB int64 `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxAgeDays deletes rotated files older than this many days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// MaxBackups caps how many rotated files are kept.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// FlagsConfig holds the startup feature toggles.
type FlagsConfig struct {
	DebugBorder   bool `toml:"debug_border" json:"debug_border" yaml:"debug_border"`
	AutoCorrect   bool `toml:"auto_correct" json:"auto_correct" yaml:"auto_correct"`
	DebugMessages bool `toml:"debug_messages" json:"debug_messages" yaml:"debug_messages"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Analyzer: AnalyzerConfig{
			Endpoint:   "http://127.0.0.1:8741",
			Mode:       "plain",
			TimeoutSec: 10,
		},
		Processing: ProcessingConfig{
			DebounceMs: 300,
			MaxTextLen: 100000,
		},
		Bridge: BridgeConfig{
			Listen:          "127.0.0.1:8765",
			MaxMessageBytes: 1 << 20,
			WriteTimeoutSec: 10,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          defaultHistoryPath(),
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  100,
			MaxAgeDays: 30,
			MaxBackups: 5,
			Compress:   true,
		},
		Flags: FlagsConfig{
			AutoCorrect: true,
		},
	}
}

// Debounce returns the configured debounce window as a duration.
func (c *ProcessingConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Timeout returns the configured analyzer timeout as a duration.
func (c *AnalyzerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Analyzer.Endpoint == "" {
		errs = append(errs, errors.New("analyzer.endpoint must not be empty"))
	}
	switch c.Analyzer.Mode {
	case "plain", "markdown":
	default:
		errs = append(errs, fmt.Errorf("analyzer.mode %q is not one of plain, markdown", c.Analyzer.Mode))
	}
	if c.Analyzer.TimeoutSec <= 0 {
		errs = append(errs, errors.New("analyzer.timeout_sec must be positive"))
	}

	if c.Processing.DebounceMs < 0 {
		errs = append(errs, errors.New("processing.debounce_ms must not be negative"))
	}
	if c.Processing.MaxTextLen < 0 {
		errs = append(errs, errors.New("processing.max_text_len must not be negative"))
	}

	if c.Bridge.Listen == "" {
		errs = append(errs, errors.New("bridge.listen must not be empty"))
	}
	if c.Bridge.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("bridge.max_message_bytes must be positive"))
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, errors.New("history.path must be set when history is enabled"))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format))
	}
	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.FilePath == "" {
			errs = append(errs, errors.New("logging.file_path must be set when output is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("logging.output %q is not one of stdout, stderr, file", c.Logging.Output))
	}
	if c.Logging.MaxSizeMB < 0 {
		errs = append(errs, errors.New("logging.max_size_mb must not be negative"))
	}
	if c.Logging.MaxAgeDays < 0 {
		errs = append(errs, errors.New("logging.max_age_days must not be negative"))
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, errors.New("logging.max_backups must not be negative"))
	}

	return errors.Join(errs...)
}

// ApplyEnvOverrides applies PROOFD_* environment variables over the loaded
// values. Only a deployment-relevant subset is exposed.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PROOFD_ANALYZER_ENDPOINT"); v != "" {
		c.Analyzer.Endpoint = v
	}
	if v := os.Getenv("PROOFD_ANALYZER_MODE"); v != "" {
		c.Analyzer.Mode = v
	}
	if v := os.Getenv("PROOFD_BRIDGE_LISTEN"); v != "" {
		c.Bridge.Listen = v
	}
	if v := os.Getenv("PROOFD_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("PROOFD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PROOFD_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Processing.DebounceMs = ms
		}
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "proofd", "config.toml")
	}
	return "proofd.toml"
}

// defaultHistoryPath returns the default history database path.
func defaultHistoryPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "proofd", "history.db")
	}
	return "proofd-history.db"
}

// SaveConfig writes the configuration to path as TOML, creating parent
// directories as needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
