package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultWorkDir               = "~/.local/share/clipd/work"
	defaultOutputDir             = "~/.local/share/clipd/output"
	defaultLogDir                = "~/.local/share/clipd/logs"
	defaultAPIBind               = "127.0.0.1:7319"
	defaultMaxSegments           = 100
	defaultMaxFileSizeBytes      = 50_000_000
	defaultRateLimitWindowMs     = 60_000
	defaultRateLimitMaxRequests  = 10
	defaultMaxActiveJobs         = 1
	defaultCacheMaxAgeSeconds    = 604_800 // 7 days
	defaultExecutorConcurrency   = 4
	defaultExecutorRetries       = 2
	defaultSegmentTimeoutSeconds = 300
	defaultPerFileThreshold      = 2
	defaultPaddingSeconds        = 2
	defaultNotifyTimeout         = 10
	defaultProgressStepPercent   = 10
	defaultFFmpegBinary          = "ffmpeg"
	defaultProbeBinary           = "ffprobe"
	defaultProbeTimeout          = 60
	defaultEvictionInterval      = 3600
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Limits: Limits{
			MaxSegments:      defaultMaxSegments,
			MaxFileSizeBytes: defaultMaxFileSizeBytes,
		},
		Admission: Admission{
			RateLimitWindowMs:    defaultRateLimitWindowMs,
			RateLimitMaxRequests: defaultRateLimitMaxRequests,
			MaxActiveJobs:        defaultMaxActiveJobs,
		},
		Cache: Cache{
			Enabled:       true,
			Dir:           defaultCacheDir(),
			MaxAgeSeconds: defaultCacheMaxAgeSeconds,
		},
		Executor: Executor{
			Concurrency:           defaultExecutorConcurrency,
			Retries:               defaultExecutorRetries,
			SegmentTimeoutSeconds: defaultSegmentTimeoutSeconds,
		},
		Packaging: Packaging{
			PerFileThreshold: defaultPerFileThreshold,
		},
		Padding: Padding{
			StartSeconds: defaultPaddingSeconds,
			EndSeconds:   defaultPaddingSeconds,
		},
		Notifications: Notifications{
			RequestTimeout:      defaultNotifyTimeout,
			ProgressStepPercent: defaultProgressStepPercent,
		},
		FFmpeg: FFmpeg{
			Binary:       defaultFFmpegBinary,
			ProbeBinary:  defaultProbeBinary,
			ProbeTimeout: defaultProbeTimeout,
		},
		Workflow: Workflow{
			CacheEvictionInterval: defaultEvictionInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "clipd", "results")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/clipd/results"
	}
	return filepath.Join(home, ".cache", "clipd", "results")
}
