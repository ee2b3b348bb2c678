package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"clipd/internal/config"
	"clipd/internal/logging"
	"clipd/internal/scheduler"
	"clipd/internal/service"
	"clipd/internal/services"
	"clipd/internal/store"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	pipeline *service.Pipeline

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*jobRecord
}

// jobRecord tracks one asynchronous submission for the API.
type jobRecord struct {
	ID         string
	OwnerID    int64
	Source     string
	State      string
	Submission *service.Submission
	Err        string
	CreatedAt  time.Time
	FinishedAt time.Time
	cancel     context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	ActiveJobs   int
	TrackedJobs  int
	DBPath       string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, pipeline *service.Pipeline, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || pipeline == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, pipeline, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "clipd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		pipeline: pipeline,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		jobs:     make(map[string]*jobRecord),
	}

	api, err := newAPIServer(cfg, d, d.logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the API server and the cache
// eviction loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clipd daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			_ = d.lock.Unlock()
			d.cancel()
			return err
		}
	}

	d.wg.Add(1)
	go d.evictionLoop()

	d.running.Store(true)
	d.logger.Info("clipd daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels running jobs, shuts the API down, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.cancel()
	if d.api != nil {
		d.api.stop()
	}
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("clipd daemon stopped")
}

// Running reports whether Start has completed and Stop has not.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound API address, or empty when the API is disabled
// or not started.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status summarizes the daemon for the API and CLI.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	tracked := len(d.jobs)
	active := 0
	for _, record := range d.jobs {
		if record.State == jobStateRunning {
			active++
		}
	}
	d.mu.Unlock()

	return Status{
		Running:      d.running.Load(),
		ActiveJobs:   active,
		TrackedJobs:  tracked,
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

const (
	jobStateRunning   = "running"
	jobStateRejected  = "rejected"
	jobStateDone      = "done"
	jobStateFailed    = "failed"
	jobStateCancelled = "cancelled"
)

// Submit runs a batch asynchronously and returns its tracking ID right away.
// The job outlives ctx; only its correlation identifier is carried over so
// pipeline logs can be tied back to the originating API request.
func (d *Daemon) Submit(ctx context.Context, req service.Request) (string, error) {
	if !d.running.Load() {
		return "", errors.New("daemon is not running")
	}

	jobCtx, cancel := context.WithCancel(d.ctx)
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		jobCtx = services.WithRequestID(jobCtx, rid)
	}
	record := &jobRecord{
		ID:        uuid.NewString(),
		OwnerID:   req.OwnerID,
		Source:    req.Source,
		State:     jobStateRunning,
		CreatedAt: time.Now(),
		cancel:    cancel,
	}

	d.mu.Lock()
	d.jobs[record.ID] = record
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		submission, err := d.pipeline.Submit(jobCtx, req)

		d.mu.Lock()
		defer d.mu.Unlock()
		record.FinishedAt = time.Now()
		record.Submission = submission
		record.cancel = nil
		switch {
		case err != nil && submission == nil:
			record.State = jobStateRejected
			record.Err = err.Error()
		case err != nil:
			record.State = jobStateFailed
			record.Err = err.Error()
		case submission.Status == scheduler.StatusCancelled:
			record.State = jobStateCancelled
		default:
			record.State = jobStateDone
		}
	}()

	return record.ID, nil
}

// Job returns a snapshot of a tracked submission.
func (d *Daemon) Job(id string) (jobRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	record, ok := d.jobs[id]
	if !ok {
		return jobRecord{}, false
	}
	snapshot := *record
	snapshot.cancel = nil
	return snapshot, true
}

// CancelJob requests cancellation of a running submission.
func (d *Daemon) CancelJob(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	record, ok := d.jobs[id]
	if !ok || record.cancel == nil {
		return false
	}
	record.cancel()
	return true
}

func (d *Daemon) evictionLoop() {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Workflow.CacheEvictionInterval) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			removed, err := d.pipeline.Cache().EvictExpired(d.ctx)
			if err != nil {
				d.logger.Warn("cache eviction failed", logging.Error(err))
				continue
			}
			if removed > 0 {
				d.logger.Info("cache eviction pass complete", logging.Int("evicted", removed))
			}
		}
	}
}
