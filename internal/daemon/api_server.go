package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"clipd/internal/config"
	"clipd/internal/logging"
	"clipd/internal/service"
	"clipd/internal/services"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// submitPayload is the POST /api/jobs request body.
type submitPayload struct {
	OwnerID   int64             `json:"owner_id"`
	Username  string            `json:"username,omitempty"`
	Source    string            `json:"source"`
	Ranges    string            `json:"ranges"`
	Operation string            `json:"operation,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// jobView is the wire representation of a tracked submission.
type jobView struct {
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

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.withRequestID(authMiddleware(srv.token, srv.handleStatus)))
	mux.HandleFunc("/api/jobs", srv.withRequestID(authMiddleware(srv.token, srv.handleJobs)))
	mux.HandleFunc("/api/jobs/", srv.withRequestID(authMiddleware(srv.token, srv.handleJob)))
	mux.HandleFunc("/api/cache", srv.withRequestID(authMiddleware(srv.token, srv.handleCache)))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// withRequestID assigns a correlation identifier to every API request. The
// identifier rides the request context into handler logging and submitted
// jobs, and is echoed back in the X-Request-ID header.
func (s *apiServer) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		ctx := services.WithRequestID(r.Context(), rid)
		w.Header().Set("X-Request-ID", rid)
		logging.WithContext(ctx, s.log()).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next(w, r.WithContext(ctx))
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":      status.Running,
		"active_jobs":  status.ActiveJobs,
		"tracked_jobs": status.TrackedJobs,
		"db_path":      status.DBPath,
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload submitPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Source == "" || strings.TrimSpace(payload.Ranges) == "" {
		s.writeError(w, http.StatusBadRequest, "source and ranges are required")
		return
	}

	id, err := s.daemon.Submit(r.Context(), service.Request{
		OwnerID:   payload.OwnerID,
		Username:  payload.Username,
		Source:    payload.Source,
		Ranges:    payload.Ranges,
		Operation: payload.Operation,
		Params:    payload.Params,
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, ok := s.daemon.Job(id)
		if !ok {
			s.writeError(w, http.StatusNotFound, "unknown job")
			return
		}
		s.writeJSON(w, http.StatusOK, viewOf(record))
	case http.MethodDelete:
		if !s.daemon.CancelJob(id) {
			s.writeError(w, http.StatusConflict, "job is not running")
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "state": "cancelling"})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.daemon.pipeline.Cache().Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func viewOf(record jobRecord) jobView {
	view := jobView{
		ID:        record.ID,
		OwnerID:   record.OwnerID,
		Source:    record.Source,
		State:     record.State,
		Error:     record.Err,
		CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !record.FinishedAt.IsZero() {
		view.FinishedAt = record.FinishedAt.UTC().Format(time.RFC3339)
	}
	if record.Submission != nil {
		view.ArchivePath = record.Submission.Package.ArchivePath
		view.Files = record.Submission.Package.Files
		view.FailedIndices = record.Submission.FailedIndices
		view.Warnings = record.Submission.Warnings
	}
	return view
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
