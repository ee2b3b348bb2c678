package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipd/internal/config"
)

// apiClient talks to a running daemon over its HTTP API.
type apiClient struct {
	base   string
	token  string
	client *http.Client
}

func newAPIClient(cfg *config.Config) (*apiClient, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api_bind is not configured; the daemon API is disabled")
	}
	return &apiClient{
		base:   "http://" + bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type daemonStatusView struct {
	Running     bool   `json:"running"`
	ActiveJobs  int    `json:"active_jobs"`
	TrackedJobs int    `json:"tracked_jobs"`
	DBPath      string `json:"db_path"`
}

type daemonJobView struct {
	ID            string   `json:"id"`
	OwnerID       int64    `json:"owner_id"`
	Source        string   `json:"source"`
	State         string   `json:"state"`
	Error         string   `json:"error,omitempty"`
	ArchivePath   string   `json:"archive_path,omitempty"`
	Files         []string `json:"files,omitempty"`
	FailedIndices []int    `json:"failed_indices,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	CreatedAt     string   `json:"created_at"`
	FinishedAt    string   `json:"finished_at,omitempty"`
}

func (c *apiClient) status(ctx context.Context) (*daemonStatusView, error) {
	var view daemonStatusView
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *apiClient) job(ctx context.Context, id string) (*daemonJobView, error) {
	var view daemonJobView
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+id, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *apiClient) cancelJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+id, nil, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon responded %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon responded %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
