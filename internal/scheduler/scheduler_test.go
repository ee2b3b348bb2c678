package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipd/internal/config"
	"clipd/internal/executor"
	"clipd/internal/logging"
	"clipd/internal/plan"
	"clipd/internal/services"
	"clipd/internal/timecode"
)

// fakeRunner fails the segment indices listed in fail and counts peak
// concurrency.
type fakeRunner struct {
	fail    map[int]bool
	delay   time.Duration
	block   chan struct{}
	current atomic.Int32
	peak    atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, source, fingerprint string, seg plan.Segment) executor.Result {
	if err := ctx.Err(); err != nil {
		return executor.Result{Segment: seg, Err: err}
	}

	cur := f.current.Add(1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	defer f.current.Add(-1)

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return executor.Result{Segment: seg, Err: ctx.Err()}
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.fail[seg.Index] {
		return executor.Result{
			Segment: seg,
			Err:     services.Wrap(services.ErrExternalTool, "transcode", "extract", "scripted failure", nil),
		}
	}
	return executor.Result{Segment: seg, OutputPath: fmt.Sprintf("/out/seg-%d.mp4", seg.Index), Attempts: 1}
}

func segments(n int) []plan.Segment {
	out := make([]plan.Segment, n)
	for i := range out {
		start := time.Duration(i) * 10 * time.Second
		out[i] = plan.Segment{
			Index:     i + 1,
			Range:     timecode.Range{Start: start, End: start + 5*time.Second},
			Operation: plan.DefaultOperation,
		}
	}
	return out
}

func newTestScheduler(runner Runner, concurrency int) *Scheduler {
	cfg := config.Default()
	cfg.Executor.Concurrency = concurrency
	return New(&cfg, runner, logging.NewNop())
}

type recordingObserver struct {
	mu       sync.Mutex
	started  bool
	finished bool
	events   []int
}

func (r *recordingObserver) JobStarted(*Job) {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
}

func (r *recordingObserver) SegmentFinished(_ *Job, _ executor.Result, done, _ int) {
	r.mu.Lock()
	r.events = append(r.events, done)
	r.mu.Unlock()
}

func (r *recordingObserver) JobFinished(*Job) {
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
}

func TestExecuteAllSegmentsSucceed(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(runner, 4)
	job := s.NewJob(42, "/in/video.mp4", "video.mp4", "fp", segments(5))

	observer := &recordingObserver{}
	s.Execute(context.Background(), job, observer)

	snapshot, ok := s.Get(job.ID)
	if !ok {
		t.Fatal("job not found")
	}
	if snapshot.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", snapshot.Status)
	}
	if len(snapshot.FailedIndices) != 0 {
		t.Fatalf("unexpected failures: %v", snapshot.FailedIndices)
	}
	if got := len(snapshot.Succeeded()); got != 5 {
		t.Fatalf("expected 5 outputs, got %d", got)
	}
	if !observer.started || !observer.finished {
		t.Fatal("observer missed lifecycle callbacks")
	}
	if len(observer.events) != 5 {
		t.Fatalf("expected 5 progress events, got %d", len(observer.events))
	}
}

func TestExecutePartialFailure(t *testing.T) {
	runner := &fakeRunner{fail: map[int]bool{3: true}}
	s := newTestScheduler(runner, 2)
	job := s.NewJob(42, "/in/video.mp4", "video.mp4", "fp", segments(5))

	s.Execute(context.Background(), job, nil)

	snapshot, _ := s.Get(job.ID)
	if snapshot.Status != StatusPartiallyFailed {
		t.Fatalf("expected partially failed, got %s", snapshot.Status)
	}
	if len(snapshot.FailedIndices) != 1 || snapshot.FailedIndices[0] != 3 {
		t.Fatalf("unexpected failed indices: %v", snapshot.FailedIndices)
	}
	if got := len(snapshot.Succeeded()); got != 4 {
		t.Fatalf("expected 4 surviving outputs, got %d", got)
	}
}

func TestExecuteAllSegmentsFail(t *testing.T) {
	runner := &fakeRunner{fail: map[int]bool{1: true, 2: true, 3: true}}
	s := newTestScheduler(runner, 2)
	job := s.NewJob(42, "/in/video.mp4", "video.mp4", "fp", segments(3))

	s.Execute(context.Background(), job, nil)

	snapshot, _ := s.Get(job.ID)
	if snapshot.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", snapshot.Status)
	}
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	s := newTestScheduler(runner, 2)
	job := s.NewJob(42, "/in/video.mp4", "video.mp4", "fp", segments(6))

	s.Execute(context.Background(), job, nil)

	if peak := runner.peak.Load(); peak > 2 {
		t.Fatalf("concurrency exceeded bound: peak %d", peak)
	}
}

func TestCancelStopsPendingSegments(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s := newTestScheduler(runner, 1)
	job := s.NewJob(42, "/in/video.mp4", "video.mp4", "fp", segments(4))

	done := make(chan struct{})
	go func() {
		s.Execute(context.Background(), job, nil)
		close(done)
	}()

	// Wait for the first segment to start, then cancel.
	deadline := time.After(2 * time.Second)
	for runner.current.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first segment never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if !s.Cancel(job.ID) {
		t.Fatal("Cancel returned false for running job")
	}
	<-done

	snapshot, _ := s.Get(job.ID)
	if snapshot.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", snapshot.Status)
	}
	for _, r := range snapshot.Results {
		if r.Err != nil && !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("unexpected segment error: %v", r.Err)
		}
	}
}

func TestCancelUnknownJob(t *testing.T) {
	s := newTestScheduler(&fakeRunner{}, 1)
	if s.Cancel("nope") {
		t.Fatal("Cancel should fail for unknown job")
	}
}

func TestCancelFinishedJob(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(runner, 1)
	job := s.NewJob(42, "/in/video.mp4", "video.mp4", "fp", segments(1))
	s.Execute(context.Background(), job, nil)

	if s.Cancel(job.ID) {
		t.Fatal("Cancel should fail after the job finished")
	}
}

func TestForget(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(runner, 1)
	job := s.NewJob(42, "/in/video.mp4", "video.mp4", "fp", segments(1))
	s.Execute(context.Background(), job, nil)

	s.Forget(job.ID)
	if _, ok := s.Get(job.ID); ok {
		t.Fatal("job should be gone after Forget")
	}
}
