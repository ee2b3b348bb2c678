// Package transcode wraps the ffmpeg binary for per-segment extraction.
package transcode

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"clipd/internal/logging"
	"clipd/internal/plan"
	"clipd/internal/services"
)

// Executor abstracts command execution for the client.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// commandExecutor executes commands using os/exec.
type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Client invokes ffmpeg to produce one output file per segment.
type Client struct {
	binary string
	exec   Executor
	logger *slog.Logger
}

// NewClient constructs a Client for the provided ffmpeg binary.
func NewClient(binary string, logger *slog.Logger) *Client {
	return NewClientWithExecutor(binary, logger, nil)
}

// NewClientWithExecutor allows injecting a custom executor for testing.
func NewClientWithExecutor(binary string, logger *slog.Logger, exec Executor) *Client {
	if exec == nil {
		exec = commandExecutor{}
	}
	return &Client{
		binary: strings.TrimSpace(binary),
		exec:   exec,
		logger: logging.NewComponentLogger(logger, "transcode"),
	}
}

// Request describes one extraction run.
type Request struct {
	Source  string
	Output  string
	Segment plan.Segment
}

// Default encode settings for operations that re-encode. Individual
// parameters on the segment override these.
const (
	defaultVideoCodec = "libx264"
	defaultAudioCodec = "aac"
	defaultCRF        = "23"
	defaultPreset     = "fast"
)

// Extract runs ffmpeg for the request. The output file is written in full or
// not at all; on failure the caller owns cleanup of Request.Output.
func (c *Client) Extract(ctx context.Context, req Request) error {
	if c.binary == "" {
		return services.Wrap(services.ErrConfiguration, "transcode", "extract", "ffmpeg binary not configured", nil)
	}
	if req.Source == "" || req.Output == "" {
		return services.Wrap(services.ErrValidation, "transcode", "extract", "source and output are required", nil)
	}

	args := buildArgs(req)
	c.logger.DebugContext(ctx, "running ffmpeg",
		logging.String("source_file", req.Source),
		logging.String("output_file", req.Output),
		logging.Int(logging.FieldSegment, req.Segment.Index),
		logging.String("segment_range", req.Segment.Range.String()),
	)

	output, err := c.exec.Run(ctx, c.binary, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return services.Wrap(services.ErrTimeout, "transcode", "extract",
					"ffmpeg run exceeded segment timeout", ctxErr)
			}
			return ctxErr
		}
		detail := "ffmpeg run failed"
		if tail := outputTail(output); tail != "" {
			detail += ": " + tail
		}
		return services.Wrap(services.ErrExternalTool, "transcode", "extract", detail, err)
	}
	return nil
}

// buildArgs assembles the ffmpeg invocation. Stream copy is the default;
// any encode parameter on the segment switches to a re-encode.
func buildArgs(req Request) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", formatSeconds(req.Segment.Range.Start),
		"-i", req.Source,
		"-t", formatSeconds(req.Segment.Range.Duration()),
	}

	params := req.Segment.Params
	if len(params) == 0 {
		args = append(args, "-c", "copy")
	} else {
		args = append(args,
			"-c:v", paramOr(params, "video_codec", defaultVideoCodec),
			"-crf", paramOr(params, "crf", defaultCRF),
			"-preset", paramOr(params, "preset", defaultPreset),
			"-c:a", paramOr(params, "audio_codec", defaultAudioCodec),
		)
		if scale := params["scale"]; scale != "" {
			args = append(args, "-vf", "scale="+scale)
		}
	}

	return append(args, req.Output)
}

func paramOr(params map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(params[key]); v != "" {
		return v
	}
	return fallback
}

// formatSeconds renders a duration the way ffmpeg expects its -ss and -t
// values, as decimal seconds with millisecond precision.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// outputTail returns the last non-empty line of tool output for error
// messages.
func outputTail(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
