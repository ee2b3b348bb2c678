package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"clipd/internal/config"
)

const userAgent = "clipd/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyJobStarted(ctx context.Context, sourceName string, segments int) error
	NotifyProgress(ctx context.Context, jobID string, done, total int) error
	NotifyJobCompleted(ctx context.Context, sourceName string, clips int, elapsed time.Duration) error
	NotifyJobPartiallyFailed(ctx context.Context, sourceName string, clips int, failed []int) error
	NotifyJobFailed(ctx context.Context, sourceName string) error
	NotifyJobCancelled(ctx context.Context, sourceName string) error
	NotifyError(ctx context.Context, err error, detail string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	step := cfg.Notifications.ProgressStepPercent
	if step <= 0 {
		step = 25
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		step:         step,
		limiter:      rate.NewLimiter(rate.Every(2*time.Second), 1),
		lastProgress: make(map[string]int),
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	step     int
	limiter  *rate.Limiter

	mu           sync.Mutex
	lastProgress map[string]int
}

func (n *ntfyService) NotifyJobStarted(ctx context.Context, sourceName string, segments int) error {
	data := payload{
		title:   "clipd - Batch Started",
		message: fmt.Sprintf("Cutting %d clip(s) from %s", segments, strings.TrimSpace(sourceName)),
		tags:    []string{"clipd", "job", "started"},
	}
	return n.send(ctx, data)
}

// NotifyProgress reports how far a job has come. Small movements below the
// configured percent step are skipped, as are events arriving faster than
// the limiter allows; the 100% event always goes out.
func (n *ntfyService) NotifyProgress(ctx context.Context, jobID string, done, total int) error {
	if total <= 0 {
		return nil
	}
	percent := done * 100 / total

	n.mu.Lock()
	last := n.lastProgress[jobID]
	if percent < 100 && percent-last < n.step {
		n.mu.Unlock()
		return nil
	}
	if percent >= 100 {
		delete(n.lastProgress, jobID)
	} else {
		n.lastProgress[jobID] = percent
	}
	n.mu.Unlock()

	if percent < 100 && !n.limiter.Allow() {
		return nil
	}

	data := payload{
		title:   "clipd - Progress",
		message: fmt.Sprintf("%d/%d segments done (%d%%)", done, total, percent),
		tags:    []string{"clipd", "job", "progress"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, sourceName string, clips int, elapsed time.Duration) error {
	data := payload{
		title:    "clipd - Batch Complete",
		message:  fmt.Sprintf("%d clip(s) from %s ready in %s", clips, strings.TrimSpace(sourceName), elapsed.Round(time.Second)),
		tags:     []string{"clipd", "job", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobPartiallyFailed(ctx context.Context, sourceName string, clips int, failed []int) error {
	labels := make([]string, len(failed))
	for i, index := range failed {
		labels[i] = fmt.Sprintf("%d", index)
	}
	data := payload{
		title: "clipd - Batch Partially Failed",
		message: fmt.Sprintf("%d clip(s) from %s ready; segment(s) %s failed",
			clips, strings.TrimSpace(sourceName), strings.Join(labels, ", ")),
		tags:     []string{"clipd", "job", "partial"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, sourceName string) error {
	data := payload{
		title:    "clipd - Batch Failed",
		message:  fmt.Sprintf("No clips could be produced from %s", strings.TrimSpace(sourceName)),
		tags:     []string{"clipd", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCancelled(ctx context.Context, sourceName string) error {
	data := payload{
		title:   "clipd - Batch Cancelled",
		message: fmt.Sprintf("Cancelled batch for %s", strings.TrimSpace(sourceName)),
		tags:    []string{"clipd", "job", "cancelled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, detail string) error {
	detail = strings.TrimSpace(detail)
	message := "An error occurred"
	if detail != "" {
		message = detail
	}
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	data := payload{
		title:    "clipd - Error",
		message:  message,
		tags:     []string{"clipd", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:   "clipd - Test",
		message: "Notifications are working",
		tags:    []string{"clipd", "test"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobStarted(context.Context, string, int) error                  { return nil }
func (noopService) NotifyProgress(context.Context, string, int, int) error               { return nil }
func (noopService) NotifyJobCompleted(context.Context, string, int, time.Duration) error { return nil }
func (noopService) NotifyJobPartiallyFailed(context.Context, string, int, []int) error   { return nil }
func (noopService) NotifyJobFailed(context.Context, string) error                        { return nil }
func (noopService) NotifyJobCancelled(context.Context, string) error                     { return nil }
func (noopService) NotifyError(context.Context, error, string) error                     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
