package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"clipd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Cache.Dir = filepath.Join(base, "cache")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRateLimitMaxRequests caps the per-owner request rate limit.
func WithRateLimitMaxRequests(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Admission.RateLimitMaxRequests = n
	}
}

// WithCacheDisabled turns the result cache off.
func WithCacheDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Enabled = false
	}
}

// WithMediaTools writes working ffmpeg and ffprobe stand-ins and points the
// config at them. The ffprobe stub reports the given source duration in
// seconds; the ffmpeg stub writes a small file to its final argument.
func WithMediaTools(durationSeconds float64) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}

		probeScript := fmt.Sprintf(`#!/bin/sh
cat <<'JSON'
{"format":{"duration":"%f","size":"1024","format_name":"mp4"},"streams":[{"index":0,"codec_type":"video","codec_name":"h264","width":1280,"height":720}]}
JSON
`, durationSeconds)
		ffmpegScript := `#!/bin/sh
for arg; do out=$arg; done
printf 'clip-bytes' > "$out"
`
		probePath := filepath.Join(binDir, "ffprobe")
		ffmpegPath := filepath.Join(binDir, "ffmpeg")
		if err := os.WriteFile(probePath, []byte(probeScript), 0o755); err != nil {
			b.t.Fatalf("write ffprobe stub: %v", err)
		}
		if err := os.WriteFile(ffmpegPath, []byte(ffmpegScript), 0o755); err != nil {
			b.t.Fatalf("write ffmpeg stub: %v", err)
		}

		b.cfg.FFmpeg.ProbeBinary = probePath
		b.cfg.FFmpeg.Binary = ffmpegPath
	}
}

// WithFailingFFmpeg replaces the ffmpeg binary with one that always exits
// nonzero. Combine with WithMediaTools so ffprobe still works.
func WithFailingFFmpeg() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		path := filepath.Join(binDir, "ffmpeg-fail")
		script := "#!/bin/sh\necho 'simulated encoder failure' >&2\nexit 1\n"
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			b.t.Fatalf("write failing ffmpeg stub: %v", err)
		}
		b.cfg.FFmpeg.Binary = path
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
