// Package server exposes the HTTP surface of the executor: task submission,
// record restore, the health probe and the telemetry read RPC.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/google/uuid"

	"github.com/asynctest/asynctest/internal/agent"
	"github.com/asynctest/asynctest/internal/config"
	"github.com/asynctest/asynctest/internal/logger"
	"github.com/asynctest/asynctest/internal/monitor"
	"github.com/asynctest/asynctest/internal/record"
	"github.com/asynctest/asynctest/internal/spec"
)

// Server wires the routes over the supervisor and the telemetry reader.
type Server struct {
	cfg    *config.Config
	agent  *agent.Agent
	reader *record.Reader
	http   *http.Server
}

func New(cfg *config.Config, ag *agent.Agent, reader *record.Reader) *Server {
	s := &Server{cfg: cfg, agent: ag, reader: reader}

	requestLogger := httplog.NewLogger("asynctest", httplog.Options{
		LogLevel: logLevel(cfg.Debug),
		Concise:  true,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(requestLogger))

	r.Get("/ping", s.handlePing)
	r.Post("/execute", s.handleExecute)
	r.Post("/restore_record", s.handleRestoreRecord)
	r.Post("/rpc/record", s.handleRecordRPC)

	s.http = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the context ends or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// handleExecute accepts one submission, validates it, and runs it in the
// background. The reply carries the short task handle the caller polls with.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	sub, err := spec.DecodeSubmission(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sub.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	handle := "task-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	runCtx := logger.WithLogger(context.Background(), logger.FromContext(r.Context()))
	go func() {
		if err := s.agent.Execute(runCtx, sub); err != nil {
			logger.Errorf(runCtx, "task %s failed to start: %v", handle, err)
		}
	}()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "success",
		"task":                handle,
		"record_backup_index": sub.Record.RecordBackupIndex,
	})
}

type restoreRequest struct {
	RecordBackupIndex string `json:"record_backup_index"`
}

func (s *Server) handleRestoreRecord(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.RecordBackupIndex == "" {
		writeError(w, http.StatusBadRequest, errors.New("record_backup_index is required"))
		return
	}
	if err := s.agent.Backup().Restore(r.Context(), req.RecordBackupIndex); err != nil {
		if errors.Is(err, record.ErrBackupNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// handlePing reports machine memory in megabytes with two decimals.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	stats, err := monitor.Memory()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleRecordRPC dispatches the telemetry read operations. The operation
// name and record namespace ride on the query string; operation parameters in
// the JSON body.
func (s *Server) handleRecordRPC(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	recordBackupIndex := r.URL.Query().Get("record_backup_index")
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	params := map[string]any{}
	if r.Body != nil {
		// An empty body is fine; operations validate their own parameters.
		_ = json.NewDecoder(r.Body).Decode(&params)
	}

	result, err := s.reader.Invoke(r.Context(), name, recordBackupIndex, params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   result,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": err.Error(),
	})
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
