package admission

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"clipd/internal/config"
	"clipd/internal/logging"
	"clipd/internal/store"
)

func newTestController(t *testing.T, maxRequests, maxActive int) *Controller {
	t.Helper()
	st, err := store.OpenPath(filepath.Join(t.TempDir(), "clipd.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Admission.RateLimitWindowMs = 60_000
	cfg.Admission.RateLimitMaxRequests = maxRequests
	cfg.Admission.MaxActiveJobs = maxActive
	return NewController(&cfg, st, logging.NewNop())
}

func TestAdmitWithinLimits(t *testing.T) {
	c := newTestController(t, 3, 2)
	ctx := context.Background()

	if err := c.Admit(ctx, 42, ""); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if err := c.Admit(ctx, 42, ""); err != nil {
		t.Fatalf("second Admit: %v", err)
	}
	if got := c.Active(42); got != 2 {
		t.Fatalf("expected 2 active jobs, got %d", got)
	}
}

func TestAdmitActiveJobCap(t *testing.T) {
	c := newTestController(t, 10, 1)
	ctx := context.Background()

	if err := c.Admit(ctx, 42, ""); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	err := c.Admit(ctx, 42, "")
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rejection.Reason != ReasonTooManyActiveJobs {
		t.Fatalf("unexpected reason: %s", rejection.Reason)
	}

	if err := c.Admit(ctx, 7, ""); err != nil {
		t.Fatalf("other owner should be unaffected: %v", err)
	}

	c.Release(42)
	if err := c.Admit(ctx, 42, ""); err != nil {
		t.Fatalf("Admit after release: %v", err)
	}
}

func TestAdmitRateLimit(t *testing.T) {
	c := newTestController(t, 2, 0)
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		if err := c.Admit(ctx, 42, ""); err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
	}

	err := c.Admit(ctx, 42, "")
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rejection.Reason != ReasonRateLimited {
		t.Fatalf("unexpected reason: %s", rejection.Reason)
	}
	if rejection.RetryAfter <= 0 || rejection.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry-after: %s", rejection.RetryAfter)
	}

	// The window slides: once the first request ages out, admission resumes.
	c.now = func() time.Time { return base.Add(61 * time.Second) }
	if err := c.Admit(ctx, 42, ""); err != nil {
		t.Fatalf("Admit after window slide: %v", err)
	}
}

func TestRateLimitSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "clipd.db")
	cfg := config.Default()
	cfg.Admission.RateLimitWindowMs = 60_000
	cfg.Admission.RateLimitMaxRequests = 1
	cfg.Admission.MaxActiveJobs = 0

	st, err := store.OpenPath(dbPath)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	c := NewController(&cfg, st, logging.NewNop())
	if err := c.Admit(context.Background(), 42, ""); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, err = store.OpenPath(dbPath)
	if err != nil {
		t.Fatalf("OpenPath reopen: %v", err)
	}
	defer st.Close()
	c = NewController(&cfg, st, logging.NewNop())

	err = c.Admit(context.Background(), 42, "")
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection after restart, got %v", err)
	}
	if rejection.Reason != ReasonRateLimited {
		t.Fatalf("unexpected reason: %s", rejection.Reason)
	}
}

func TestUnlimitedCapabilityBypassesRateLimit(t *testing.T) {
	c := newTestController(t, 1, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Admit(ctx, 42, "unlimited"); err != nil {
			t.Fatalf("Admit %d with unlimited capability: %v", i, err)
		}
	}

	// A plain owner still hits the request count already recorded.
	err := c.Admit(ctx, 42, "")
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection for plain owner, got %v", err)
	}
}

func TestDefaultPolicy(t *testing.T) {
	cases := []struct {
		capabilities string
		want         bool
	}{
		{"", false},
		{"unlimited", true},
		{"premium, unlimited", true},
		{"premium", false},
	}
	for _, tc := range cases {
		if got := DefaultPolicy(tc.capabilities); got != tc.want {
			t.Fatalf("DefaultPolicy(%q) = %v, want %v", tc.capabilities, got, tc.want)
		}
	}
}

func TestReleaseWithoutAdmit(t *testing.T) {
	c := newTestController(t, 1, 1)
	c.Release(42)
	if got := c.Active(42); got != 0 {
		t.Fatalf("expected 0 active jobs, got %d", got)
	}
}
