package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Limits bounds what a single request may ask for.
type Limits struct {
	MaxSegments      int   `toml:"max_segments"`
	MaxFileSizeBytes int64 `toml:"max_file_size_bytes"`
}

// Admission configures per-owner rate and concurrency gates.
type Admission struct {
	RateLimitWindowMs    int `toml:"rate_limit_window_ms"`
	RateLimitMaxRequests int `toml:"rate_limit_max_requests"`
	MaxActiveJobs        int `toml:"max_active_jobs"`
}

// Cache configures the content-addressed result cache.
type Cache struct {
	Enabled       bool   `toml:"enabled"`
	Dir           string `toml:"dir"`
	MaxAgeSeconds int    `toml:"max_age_seconds"`
}

// Executor configures segment execution.
type Executor struct {
	Concurrency           int `toml:"concurrency"`
	Retries               int `toml:"retries"`
	SegmentTimeoutSeconds int `toml:"segment_timeout_seconds"`
}

// Packaging configures output delivery.
type Packaging struct {
	// PerFileThreshold is the segment count at or above which a job's
	// clips are bundled into a single archive.
	PerFileThreshold int `toml:"per_file_threshold"`
}

// Padding configures the default slack applied around parsed ranges.
type Padding struct {
	StartSeconds float64 `toml:"start_seconds"`
	EndSeconds   float64 `toml:"end_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	// ProgressStepPercent is the minimum progress delta between progress
	// notifications for the same job.
	ProgressStepPercent int `toml:"progress_step_percent"`
}

// FFmpeg contains configuration for the external transcoding tools.
type FFmpeg struct {
	Binary       string `toml:"binary"`
	ProbeBinary  string `toml:"probe_binary"`
	ProbeTimeout int    `toml:"probe_timeout"`
}

// Workflow contains daemon timing configuration.
type Workflow struct {
	CacheEvictionInterval int `toml:"cache_eviction_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipd.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Limits        Limits        `toml:"limits"`
	Admission     Admission     `toml:"admission"`
	Cache         Cache         `toml:"cache"`
	Executor      Executor      `toml:"executor"`
	Packaging     Packaging     `toml:"packaging"`
	Padding       Padding       `toml:"padding"`
	Notifications Notifications `toml:"notifications"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Dir) != "" {
		if err := os.MkdirAll(c.Cache.Dir, 0o755); err != nil {
			return fmt.Errorf("create cache directory %q: %w", c.Cache.Dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
