// Package executor runs a single segment end to end: cache lookup, ffmpeg
// extraction with retries and a per-segment timeout, and cache population.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"clipd/internal/cache"
	"clipd/internal/config"
	"clipd/internal/logging"
	"clipd/internal/plan"
	"clipd/internal/services"
	"clipd/internal/transcode"
)

// Transcoder abstracts the ffmpeg client so tests can fail segments on
// demand.
type Transcoder interface {
	Extract(ctx context.Context, req transcode.Request) error
}

// Result reports the outcome of one segment.
type Result struct {
	Segment    plan.Segment
	OutputPath string
	FromCache  bool
	Attempts   int
	Err        error
}

// Executor produces one output file per segment.
type Executor struct {
	transcoder Transcoder
	cache      *cache.Manager
	workDir    string
	retries    int
	timeout    time.Duration
	logger     *slog.Logger
}

// New builds an executor from configuration.
func New(cfg *config.Config, transcoder Transcoder, cacheManager *cache.Manager, logger *slog.Logger) *Executor {
	return &Executor{
		transcoder: transcoder,
		cache:      cacheManager,
		workDir:    cfg.Paths.WorkDir,
		retries:    cfg.Executor.Retries,
		timeout:    time.Duration(cfg.Executor.SegmentTimeoutSeconds) * time.Second,
		logger:     logging.NewComponentLogger(logger, "executor"),
	}
}

// Run executes one segment. The source fingerprint feeds the cache key; on a
// hit no tool runs at all. Failed attempts never leave partial files behind.
func (e *Executor) Run(ctx context.Context, source, fingerprint string, seg plan.Segment) Result {
	result := Result{Segment: seg}

	key := cache.Key(fingerprint, seg.Operation, seg.Range.String(), seg.Params)
	if path, ok, err := e.cache.Lookup(ctx, key); err != nil {
		e.logger.WarnContext(ctx, "cache lookup failed; running tool",
			logging.Int(logging.FieldSegment, seg.Index),
			logging.Error(err),
		)
	} else if ok {
		e.logger.InfoContext(ctx, "segment served from cache",
			logging.Int(logging.FieldSegment, seg.Index),
			logging.String("cache_key", key),
		)
		result.OutputPath = path
		result.FromCache = true
		return result
	}

	var lastErr error
	for attempt := 1; attempt <= e.retries+1; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		output, err := e.runAttempt(ctx, source, seg, key, attempt)
		if err == nil {
			result.OutputPath = e.publish(ctx, key, seg.Operation, output)
			return result
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			result.Err = err
			return result
		}
		if !retryable(err) {
			break
		}
		e.logger.WarnContext(ctx, "segment attempt failed",
			logging.Int(logging.FieldSegment, seg.Index),
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
	}

	result.Err = lastErr
	return result
}

func (e *Executor) runAttempt(ctx context.Context, source string, seg plan.Segment, key string, attempt int) (string, error) {
	output := filepath.Join(e.workDir,
		fmt.Sprintf("seg-%s-a%d%s", key[:12], attempt, outputExt(source)))

	attemptCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	err := e.transcoder.Extract(attemptCtx, transcode.Request{
		Source:  source,
		Output:  output,
		Segment: seg,
	})
	if err != nil {
		_ = os.Remove(output)
		return "", err
	}
	return output, nil
}

// publish moves a fresh output into the cache when enabled; with the cache
// disabled the work-directory file is the result.
func (e *Executor) publish(ctx context.Context, key, operation, output string) string {
	cached, err := e.cache.Store(ctx, key, operation, output)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to cache segment result",
			logging.String("cache_key", key),
			logging.Error(err),
		)
		return output
	}
	if cached == "" {
		return output
	}
	return cached
}

// retryable reports whether another attempt can help. Validation and
// configuration problems fail the same way every time.
func retryable(err error) bool {
	return !errors.Is(err, services.ErrValidation) && !errors.Is(err, services.ErrConfiguration)
}

func outputExt(source string) string {
	if ext := filepath.Ext(source); ext != "" {
		return ext
	}
	return ".mp4"
}
