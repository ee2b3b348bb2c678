package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"clipd/internal/config"
	"clipd/internal/logging"
	"clipd/internal/service"
	"clipd/internal/testsupport"
)

func newTestDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*Daemon, *config.Config) {
	t.Helper()
	base := []testsupport.ConfigOption{testsupport.WithMediaTools(600)}
	cfg := testsupport.NewConfig(t, append(base, opts...)...)
	st := testsupport.MustOpenStore(t, cfg)
	pipeline := service.New(cfg, st, logging.NewNop())

	d, err := New(cfg, st, pipeline, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, cfg
}

func startDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
}

func waitForState(t *testing.T, d *Daemon, id string, states ...string) jobRecord {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := d.Job(id)
		if !ok {
			t.Fatalf("job %s vanished", id)
		}
		for _, state := range states {
			if record.State == state {
				return record
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	record, _ := d.Job(id)
	t.Fatalf("job %s stuck in state %s", id, record.State)
	return jobRecord{}
}

func TestDaemonSingleInstance(t *testing.T) {
	d, cfg := newTestDaemon(t)
	startDaemon(t, d)

	st2 := testsupport.MustOpenStore(t, cfg)
	pipeline2 := service.New(cfg, st2, logging.NewNop())
	second, err := New(cfg, st2, pipeline2, logging.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second daemon should fail to acquire the lock")
	}
}

func TestDaemonSubmitRunsBatch(t *testing.T) {
	d, _ := newTestDaemon(t)
	startDaemon(t, d)

	src := filepath.Join(t.TempDir(), "movie.mp4")
	testsupport.WriteFile(t, src, 2048)

	id, err := d.Submit(context.Background(), service.Request{
		OwnerID: 42,
		Source:  src,
		Ranges:  "0:10-0:30",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	record := waitForState(t, d, id, jobStateDone)
	if record.Submission == nil || record.Submission.JobID == "" {
		t.Fatalf("finished job missing submission: %+v", record)
	}
}

func TestDaemonSubmitRejectedBatch(t *testing.T) {
	d, _ := newTestDaemon(t)
	startDaemon(t, d)

	src := filepath.Join(t.TempDir(), "movie.mp4")
	testsupport.WriteFile(t, src, 2048)

	id, err := d.Submit(context.Background(), service.Request{
		OwnerID: 42,
		Source:  src,
		Ranges:  "not-a-range",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	record := waitForState(t, d, id, jobStateRejected)
	if record.Err == "" {
		t.Fatal("rejected job should carry an error message")
	}
}

func TestDaemonHTTPSubmitAndStatus(t *testing.T) {
	d, _ := newTestDaemon(t)
	startDaemon(t, d)
	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("api not listening")
	}

	src := filepath.Join(t.TempDir(), "movie.mp4")
	testsupport.WriteFile(t, src, 2048)

	body, _ := json.Marshal(submitPayload{
		OwnerID: 42,
		Source:  src,
		Ranges:  "0:10-0:30",
	})
	resp, err := http.Post(fmt.Sprintf("http://%s/api/jobs", addr), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var accepted map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	id := accepted["id"]
	if id == "" {
		t.Fatal("missing job id")
	}

	waitForState(t, d, id, jobStateDone)

	jobResp, err := http.Get(fmt.Sprintf("http://%s/api/jobs/%s", addr, id))
	if err != nil {
		t.Fatalf("GET /api/jobs/%s: %v", id, err)
	}
	defer jobResp.Body.Close()
	var view jobView
	if err := json.NewDecoder(jobResp.Body).Decode(&view); err != nil {
		t.Fatalf("decode job view: %v", err)
	}
	if view.State != jobStateDone {
		t.Fatalf("unexpected state %q", view.State)
	}
}

func TestDaemonHTTPAuth(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMediaTools(600))
	cfg.Paths.APIToken = "secret"
	st := testsupport.MustOpenStore(t, cfg)
	pipeline := service.New(cfg, st, logging.NewNop())
	authed, err := New(cfg, st, pipeline, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	startDaemon(t, authed)
	addr := authed.APIAddr()

	resp, err := http.Get(fmt.Sprintf("http://%s/api/status", addr))
	if err != nil {
		t.Fatalf("GET without token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s/api/status", addr), nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDaemonHTTPAssignsRequestID(t *testing.T) {
	d, _ := newTestDaemon(t)
	startDaemon(t, d)
	addr := d.APIAddr()

	resp, err := http.Get(fmt.Sprintf("http://%s/api/status", addr))
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a request id on the response")
	}

	second, err := http.Get(fmt.Sprintf("http://%s/api/status", addr))
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	second.Body.Close()
	if resp.Header.Get("X-Request-ID") == second.Header.Get("X-Request-ID") {
		t.Fatal("request ids should be unique per request")
	}
}

func TestDaemonCancelUnknownJob(t *testing.T) {
	d, _ := newTestDaemon(t)
	startDaemon(t, d)
	if d.CancelJob("missing") {
		t.Fatal("cancel should fail for unknown job")
	}
}
