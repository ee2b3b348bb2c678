package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"clipd/internal/admission"
	"clipd/internal/cache"
	"clipd/internal/config"
	"clipd/internal/executor"
	"clipd/internal/logging"
	"clipd/internal/media/ffprobe"
	"clipd/internal/notify"
	"clipd/internal/packaging"
	"clipd/internal/plan"
	"clipd/internal/scheduler"
	"clipd/internal/services"
	"clipd/internal/store"
	"clipd/internal/timecode"
	"clipd/internal/transcode"
)

// Request describes one batch submission.
type Request struct {
	OwnerID   int64
	Username  string
	Source    string
	Ranges    string
	Operation string
	Params    map[string]string
}

// Submission is the outcome of a finished batch.
type Submission struct {
	JobID         string
	Status        scheduler.Status
	Package       packaging.Result
	FailedIndices []int
	Warnings      []string
	Elapsed       time.Duration
}

// Pipeline ties the stage packages together behind one entry point.
type Pipeline struct {
	cfg       *config.Config
	store     *store.Store
	admission *admission.Controller
	scheduler *scheduler.Scheduler
	packager  *packaging.Packager
	cache     *cache.Manager
	notifier  notify.Service
	logger    *slog.Logger
}

// New assembles a pipeline from configuration. The store must be open; the
// cache manager may be nil when caching is disabled.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Pipeline {
	cacheManager := cache.NewManager(cfg, st, logger)
	transcoder := transcode.NewClient(cfg.FFmpeg.Binary, logger)
	exec := executor.New(cfg, transcoder, cacheManager, logger)

	return &Pipeline{
		cfg:       cfg,
		store:     st,
		admission: admission.NewController(cfg, st, logger),
		scheduler: scheduler.New(cfg, exec, logger),
		packager:  packaging.New(cfg, logger),
		cache:     cacheManager,
		notifier:  notify.NewService(cfg),
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Cache exposes the cache manager for maintenance commands.
func (p *Pipeline) Cache() *cache.Manager { return p.cache }

// Store exposes the backing store for profile and history commands.
func (p *Pipeline) Store() *store.Store { return p.store }

// Notifier exposes the notification service.
func (p *Pipeline) Notifier() notify.Service { return p.notifier }

// Submit runs one batch to completion. Validation problems are reported in
// full rather than stopping at the first issue; admission denials come back
// as *admission.Rejection.
func (p *Pipeline) Submit(ctx context.Context, req Request) (*Submission, error) {
	ctx = services.WithOwnerID(ctx, req.OwnerID)
	started := time.Now()

	if err := p.checkSource(req.Source); err != nil {
		return nil, err
	}

	owner, err := p.resolveOwner(ctx, req)
	if err != nil {
		return nil, err
	}

	ranges, skipped, err := parseRanges(req.Ranges)
	if err != nil {
		return nil, err
	}
	warnings := make([]string, 0, len(skipped))
	for _, problem := range skipped {
		warnings = append(warnings, "skipped "+problem)
	}

	probe, err := p.probe(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	total := probe.Duration()
	if total <= 0 {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "probe",
			fmt.Sprintf("could not determine duration of %s", filepath.Base(req.Source)), nil)
	}

	segments, _, report := plan.Validate(ranges, plan.Config{
		MaxSegments:    p.cfg.Limits.MaxSegments,
		SourceDuration: total,
	})
	if report != nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "plan", report.Error(), nil)
	}

	// Validated ranges sit inside the source, so padding only widens them
	// and the count is stable.
	padded := plan.Pad(ranges, owner.StartPadding(), owner.EndPadding(), total)
	if len(padded) != len(segments) {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "plan",
			"padding collapsed a validated segment", nil)
	}
	for i := range segments {
		segments[i].Range = padded[i]
	}

	// Padding can push neighbouring ranges into each other, so overlap is
	// checked on the padded result.
	for _, overlap := range plan.FindOverlaps(padded) {
		warnings = append(warnings, fmt.Sprintf("segments %d and %d overlap", overlap.A, overlap.B))
	}

	operation := strings.TrimSpace(req.Operation)
	if operation == "" {
		operation = plan.DefaultOperation
	}
	for i := range segments {
		segments[i].Source = req.Source
		segments[i].Operation = operation
		segments[i].Params = req.Params
	}

	if err := p.admission.Admit(ctx, req.OwnerID, owner.Capabilities); err != nil {
		return nil, err
	}
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { p.admission.Release(req.OwnerID) }) }
	defer release()

	fingerprint, err := cache.Fingerprint(req.Source)
	if err != nil {
		return nil, err
	}

	sourceName := filepath.Base(req.Source)
	job := p.scheduler.NewJob(req.OwnerID, req.Source, sourceName, fingerprint, segments)
	p.scheduler.MarkAdmitted(job)
	ctx = services.WithJobID(ctx, job.ID)

	_ = p.notifier.NotifyJobStarted(ctx, sourceName, len(segments))
	p.scheduler.Execute(ctx, job, &progressObserver{notifier: p.notifier})
	release()

	snapshot, _ := p.scheduler.Get(job.ID)
	defer p.cleanupWork(ctx, snapshot)
	submission := &Submission{
		JobID:         snapshot.ID,
		Status:        snapshot.Status,
		FailedIndices: snapshot.FailedIndices,
		Warnings:      warnings,
		Elapsed:       time.Since(started),
	}

	switch snapshot.Status {
	case scheduler.StatusCancelled:
		_ = p.notifier.NotifyJobCancelled(ctx, sourceName)
		return submission, nil
	case scheduler.StatusFailed:
		_ = p.notifier.NotifyJobFailed(ctx, sourceName)
		return submission, p.firstSegmentError(snapshot)
	}

	items := deliverables(snapshot.Succeeded())
	pkg, err := p.packager.Package(ctx, sourceName, items, snapshot.FailedIndices)
	if err != nil {
		_ = p.notifier.NotifyError(ctx, err, "packaging failed for "+sourceName)
		return submission, err
	}
	submission.Package = pkg

	p.recordHistory(ctx, req, snapshot, sourceName, operation, items, submission.Elapsed)

	if snapshot.Status == scheduler.StatusPartiallyFailed {
		_ = p.notifier.NotifyJobPartiallyFailed(ctx, sourceName, len(items), snapshot.FailedIndices)
	} else {
		_ = p.notifier.NotifyJobCompleted(ctx, sourceName, len(items), submission.Elapsed)
	}
	return submission, nil
}

// Cancel requests cooperative cancellation of a running job.
func (p *Pipeline) Cancel(jobID string) bool {
	return p.scheduler.Cancel(jobID)
}

// Status returns a snapshot of a known job.
func (p *Pipeline) Status(jobID string) (scheduler.Job, bool) {
	return p.scheduler.Get(jobID)
}

func (p *Pipeline) checkSource(source string) error {
	info, err := os.Stat(source)
	if err != nil {
		return services.Wrap(services.ErrValidation, "pipeline", "source",
			fmt.Sprintf("source file %s is not readable", source), err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "pipeline", "source",
			fmt.Sprintf("source %s is a directory", source), nil)
	}
	if limit := p.cfg.Limits.MaxFileSizeBytes; limit > 0 && info.Size() > limit {
		return services.Wrap(services.ErrValidation, "pipeline", "source",
			fmt.Sprintf("source is %d bytes, limit is %d", info.Size(), limit), nil)
	}
	return nil
}

func (p *Pipeline) resolveOwner(ctx context.Context, req Request) (*store.Owner, error) {
	if err := p.store.UpsertOwner(ctx, req.OwnerID, req.Username, ""); err != nil {
		return nil, err
	}
	owner, err := p.store.GetOwner(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "owner",
			fmt.Sprintf("owner %d vanished after upsert", req.OwnerID), nil)
	}
	return owner, nil
}

func (p *Pipeline) probe(ctx context.Context, source string) (ffprobe.Result, error) {
	probeCtx := ctx
	if timeout := time.Duration(p.cfg.FFmpeg.ProbeTimeout) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	result, err := ffprobe.Inspect(probeCtx, p.cfg.FFmpeg.ProbeBinary, source)
	if err != nil {
		return ffprobe.Result{}, services.Wrap(services.ErrExternalTool, "pipeline", "probe",
			"ffprobe failed", err)
	}
	return result, nil
}

func (p *Pipeline) recordHistory(ctx context.Context, req Request, job scheduler.Job, sourceName, operation string, items []packaging.Item, elapsed time.Duration) {
	var totalBytes int64
	for _, item := range items {
		if info, err := os.Stat(item.Path); err == nil {
			totalBytes += info.Size()
		}
	}
	entry := store.HistoryEntry{
		OwnerID:    req.OwnerID,
		SourceName: sourceName,
		Operation:  operation,
		ClipCount:  len(items),
		TotalBytes: totalBytes,
		Duration:   elapsed,
	}
	if err := p.store.AppendHistory(ctx, entry); err != nil {
		p.logger.WarnContext(ctx, "failed to record history",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	}
}

// cleanupWork removes segment outputs still sitting in the work directory
// once the batch is delivered (or abandoned). Cache-adopted outputs live
// under the cache root and stay put.
func (p *Pipeline) cleanupWork(ctx context.Context, job scheduler.Job) {
	workDir := filepath.Clean(p.cfg.Paths.WorkDir)
	for _, r := range job.Results {
		if r.OutputPath == "" || r.FromCache {
			continue
		}
		if filepath.Dir(r.OutputPath) != workDir {
			continue
		}
		if err := os.Remove(r.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.WarnContext(ctx, "failed to remove work file",
				logging.String("output_path", r.OutputPath),
				logging.Error(err),
			)
		}
	}
}

func (p *Pipeline) firstSegmentError(job scheduler.Job) error {
	for _, r := range job.Results {
		if r.Err != nil {
			return r.Err
		}
	}
	return services.Wrap(services.ErrTransient, "pipeline", "execute", "job failed without segment errors", nil)
}

// parseRanges consumes the whole range text. Malformed entries are skipped
// and reported back so the rest of the batch still runs; the submission
// fails only when nothing parses at all.
func parseRanges(text string) ([]timecode.Range, []string, error) {
	var (
		ranges   []timecode.Range
		problems []string
	)
	for result := range timecode.Parse(text) {
		if result.Err != nil {
			problems = append(problems, fmt.Sprintf("entry %d (%q): %v", result.Index, result.Raw, result.Err))
			continue
		}
		ranges = append(ranges, result.Range)
	}
	if len(ranges) == 0 {
		if len(problems) > 0 {
			return nil, nil, services.Wrap(services.ErrValidation, "pipeline", "parse",
				strings.Join(problems, "; "), nil)
		}
		return nil, nil, services.Wrap(services.ErrValidation, "pipeline", "parse",
			"no time ranges supplied", nil)
	}
	return ranges, problems, nil
}

func deliverables(results []executor.Result) []packaging.Item {
	items := make([]packaging.Item, 0, len(results))
	for _, r := range results {
		items = append(items, packaging.Item{
			Index: r.Segment.Index,
			Range: r.Segment.Range,
			Path:  r.OutputPath,
		})
	}
	return items
}

// progressObserver forwards scheduler callbacks to the notifier.
type progressObserver struct {
	notifier notify.Service
}

func (o *progressObserver) JobStarted(*scheduler.Job) {}

func (o *progressObserver) SegmentFinished(job *scheduler.Job, _ executor.Result, done, total int) {
	_ = o.notifier.NotifyProgress(context.Background(), job.ID, done, total)
}

func (o *progressObserver) JobFinished(*scheduler.Job) {}
