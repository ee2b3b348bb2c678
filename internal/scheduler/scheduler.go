// Package scheduler owns job lifecycle and fan-out of segments onto a
// bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"clipd/internal/config"
	"clipd/internal/executor"
	"clipd/internal/logging"
	"clipd/internal/plan"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusCreated         Status = "created"
	StatusAdmitted        Status = "admitted"
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusPartiallyFailed Status = "partially_failed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// Job carries one admitted batch through execution.
type Job struct {
	ID          string
	OwnerID     int64
	Source      string
	SourceName  string
	Fingerprint string
	Segments    []plan.Segment

	Status        Status
	Results       []executor.Result
	FailedIndices []int
	CreatedAt     time.Time
	StartedAt     time.Time
	FinishedAt    time.Time

	cancel context.CancelFunc
}

// Succeeded returns the results that produced an output, in segment order.
func (j *Job) Succeeded() []executor.Result {
	var out []executor.Result
	for _, r := range j.Results {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Observer receives lifecycle callbacks during execution. Callbacks run on
// the scheduler's goroutines and must not block for long.
type Observer interface {
	JobStarted(job *Job)
	SegmentFinished(job *Job, result executor.Result, done, total int)
	JobFinished(job *Job)
}

// NopObserver ignores all callbacks.
type NopObserver struct{}

func (NopObserver) JobStarted(*Job)                                 {}
func (NopObserver) SegmentFinished(*Job, executor.Result, int, int) {}
func (NopObserver) JobFinished(*Job)                                {}

// Runner executes a single segment.
type Runner interface {
	Run(ctx context.Context, source, fingerprint string, seg plan.Segment) executor.Result
}

// Scheduler tracks jobs and executes their segments concurrently.
type Scheduler struct {
	runner      Runner
	concurrency int
	logger      *slog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
}

// New builds a scheduler from configuration.
func New(cfg *config.Config, runner Runner, logger *slog.Logger) *Scheduler {
	concurrency := cfg.Executor.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		runner:      runner,
		concurrency: concurrency,
		logger:      logging.NewComponentLogger(logger, "scheduler"),
		jobs:        make(map[string]*Job),
	}
}

// NewJob registers a job for the batch and returns it in the created state.
func (s *Scheduler) NewJob(ownerID int64, source, sourceName, fingerprint string, segments []plan.Segment) *Job {
	job := &Job{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Source:      source,
		SourceName:  sourceName,
		Fingerprint: fingerprint,
		Segments:    segments,
		Status:      StatusCreated,
		CreatedAt:   time.Now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

// MarkAdmitted records that admission control accepted the job.
func (s *Scheduler) MarkAdmitted(job *Job) {
	s.mu.Lock()
	job.Status = StatusAdmitted
	s.mu.Unlock()
}

// Execute runs every segment of the job and blocks until all workers drain.
// Worker count is the configured concurrency capped at the segment count.
// One segment failing never stops its siblings; cancellation stops segments
// that have not started yet.
func (s *Scheduler) Execute(ctx context.Context, job *Job, observer Observer) {
	if observer == nil {
		observer = NopObserver{}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := len(job.Segments)
	s.mu.Lock()
	job.Status = StatusRunning
	job.StartedAt = time.Now()
	job.cancel = cancel
	s.mu.Unlock()

	observer.JobStarted(job)
	s.logger.InfoContext(ctx, "job started",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int64(logging.FieldOwnerID, job.OwnerID),
		logging.Int("segments", total),
	)

	workers := s.concurrency
	if workers > total {
		workers = total
	}

	results := make([]executor.Result, total)
	indices := make(chan int)
	var done int
	var progressMu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				results[i] = s.runner.Run(jobCtx, job.Source, job.Fingerprint, job.Segments[i])

				progressMu.Lock()
				done++
				current := done
				progressMu.Unlock()
				observer.SegmentFinished(job, results[i], current, total)
			}
		}()
	}

	for i := range job.Segments {
		indices <- i
	}
	close(indices)
	wg.Wait()

	s.finish(ctx, job, results, observer)
}

func (s *Scheduler) finish(ctx context.Context, job *Job, results []executor.Result, observer Observer) {
	var failed []int
	cancelled := false
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Segment.Index)
			if errors.Is(r.Err, context.Canceled) {
				cancelled = true
			}
		}
	}
	sort.Ints(failed)

	status := StatusCompleted
	switch {
	case cancelled:
		status = StatusCancelled
	case len(failed) == len(results) && len(results) > 0:
		status = StatusFailed
	case len(failed) > 0:
		status = StatusPartiallyFailed
	}

	s.mu.Lock()
	job.Results = results
	job.FailedIndices = failed
	job.Status = status
	job.FinishedAt = time.Now()
	job.cancel = nil
	s.mu.Unlock()

	observer.JobFinished(job)
	s.logger.InfoContext(ctx, "job finished",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("status", string(status)),
		logging.Int("failed_segments", len(failed)),
	)
}

// Cancel requests cooperative cancellation of a running job. Returns false
// when the job is unknown or no longer running.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.cancel == nil {
		return false
	}
	job.cancel()
	return true
}

// Get returns a snapshot of the job, or false when unknown.
func (s *Scheduler) Get(jobID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	snapshot := *job
	snapshot.cancel = nil
	return snapshot, true
}

// Forget drops a finished job from the registry.
func (s *Scheduler) Forget(jobID string) {
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
}
