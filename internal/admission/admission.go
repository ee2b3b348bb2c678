// Package admission decides whether a new batch may enter the pipeline.
//
// Two gates apply per owner: a sliding-window request rate limit and a cap
// on concurrently active jobs. The request log is persisted so the rate
// limit survives restarts; active-job counts are in-memory because jobs do
// not survive a restart either.
package admission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"log/slog"

	"clipd/internal/config"
	"clipd/internal/logging"
	"clipd/internal/store"
)

// Reason classifies why admission was denied.
type Reason string

const (
	ReasonRateLimited       Reason = "rate_limited"
	ReasonTooManyActiveJobs Reason = "too_many_active_jobs"
)

// Rejection is the error returned when a request is denied.
type Rejection struct {
	Reason     Reason
	RetryAfter time.Duration
	Detail     string
}

func (r *Rejection) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("admission denied (%s): %s; retry in %s", r.Reason, r.Detail, r.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("admission denied (%s): %s", r.Reason, r.Detail)
}

// Policy decides whether an owner's capabilities exempt them from the
// request rate limit. The active-job cap always applies.
type Policy func(capabilities string) bool

// DefaultPolicy exempts owners carrying the "unlimited" capability.
func DefaultPolicy(capabilities string) bool {
	for _, capability := range strings.Split(capabilities, ",") {
		if strings.TrimSpace(capability) == "unlimited" {
			return true
		}
	}
	return false
}

// Controller enforces per-owner admission policy.
type Controller struct {
	store       *store.Store
	logger      *slog.Logger
	window      time.Duration
	maxRequests int
	maxActive   int
	policy      Policy
	now         func() time.Time

	mu     sync.Mutex
	active map[int64]int
}

// NewController builds a controller from configuration with DefaultPolicy.
func NewController(cfg *config.Config, st *store.Store, logger *slog.Logger) *Controller {
	return NewControllerWithPolicy(cfg, st, logger, DefaultPolicy)
}

// NewControllerWithPolicy builds a controller with a custom exemption policy.
func NewControllerWithPolicy(cfg *config.Config, st *store.Store, logger *slog.Logger, policy Policy) *Controller {
	return &Controller{
		store:       st,
		logger:      logging.NewComponentLogger(logger, "admission"),
		window:      time.Duration(cfg.Admission.RateLimitWindowMs) * time.Millisecond,
		maxRequests: cfg.Admission.RateLimitMaxRequests,
		maxActive:   cfg.Admission.MaxActiveJobs,
		policy:      policy,
		now:         time.Now,
		active:      make(map[int64]int),
	}
}

// Admit checks both gates and, on success, records the request and counts
// the owner's job as active until Release is called. Denials return a
// *Rejection; any other error is a storage failure.
func (c *Controller) Admit(ctx context.Context, ownerID int64, capabilities string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxActive > 0 && c.active[ownerID] >= c.maxActive {
		rejection := &Rejection{
			Reason: ReasonTooManyActiveJobs,
			Detail: fmt.Sprintf("owner %d already has %d active job(s)", ownerID, c.active[ownerID]),
		}
		c.logger.InfoContext(ctx, "admission denied",
			logging.Int64(logging.FieldOwnerID, ownerID),
			logging.String("reason", string(rejection.Reason)),
		)
		return rejection
	}

	now := c.now()
	cutoff := now.Add(-c.window)
	exempt := c.policy != nil && c.policy(capabilities)
	if c.maxRequests > 0 && !exempt {
		count, err := c.store.CountRequestsSince(ctx, ownerID, cutoff)
		if err != nil {
			return err
		}
		if count >= c.maxRequests {
			retryAfter := c.window
			if oldest, err := c.store.OldestRequestSince(ctx, ownerID, cutoff); err == nil && !oldest.IsZero() {
				retryAfter = oldest.Add(c.window).Sub(now)
				if retryAfter < 0 {
					retryAfter = 0
				}
			}
			rejection := &Rejection{
				Reason:     ReasonRateLimited,
				RetryAfter: retryAfter,
				Detail:     fmt.Sprintf("%d request(s) in the last %s", count, c.window),
			}
			c.logger.InfoContext(ctx, "admission denied",
				logging.Int64(logging.FieldOwnerID, ownerID),
				logging.String("reason", string(rejection.Reason)),
				logging.String("retry_after", retryAfter.String()),
			)
			return rejection
		}
	}

	if err := c.store.RecordRequest(ctx, ownerID, now); err != nil {
		return err
	}
	// Old rows never affect future decisions; prune lazily on the hot path.
	_ = c.store.PruneRequestsBefore(ctx, now.Add(-2*c.window))

	c.active[ownerID]++
	return nil
}

// Release marks one of the owner's active jobs as finished. Safe to call at
// most once per successful Admit; extra calls are ignored.
func (c *Controller) Release(ownerID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[ownerID] > 0 {
		c.active[ownerID]--
		if c.active[ownerID] == 0 {
			delete(c.active, ownerID)
		}
	}
}

// Active reports the owner's current active-job count.
func (c *Controller) Active(ownerID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[ownerID]
}
