// Package httpapi exposes the execution service over HTTP: a REST surface
// for running scripts and browsing history, a WebSocket endpoint streaming
// output fragments in real time, and the health and metrics endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/app/metrics"
	"github.com/dasudiy/scratchpadsharp/internal/app/services/executions"
	"github.com/dasudiy/scratchpadsharp/internal/app/storage"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/runner"
	"github.com/dasudiy/scratchpadsharp/pkg/logger"
)

type handler struct {
	svc *executions.Service
	log *logger.Logger
}

// NewHandler returns the router exposing the core REST API.
func NewHandler(svc *executions.Service, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Post("/executions", h.runExecution)
	r.Get("/executions", h.listExecutions)
	r.Get("/executions/stream", h.streamExecution)
	r.Get("/executions/{id}", h.getExecution)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	return metrics.InstrumentHandler(r)
}

// runRequest is the wire form of an execution submission.
type runRequest struct {
	Source           string            `json:"source"`
	TimeoutSeconds   float64           `json:"timeout_seconds,omitempty"`
	ConnectionString string            `json:"connection_string,omitempty"`
	DefaultImports   []string          `json:"default_imports,omitempty"`
	Packages         map[string]string `json:"packages,omitempty"`
}

func (req runRequest) toDomain() execution.Request {
	cfg := execution.Config{
		DefaultImports:   req.DefaultImports,
		Packages:         req.Packages,
		ConnectionString: req.ConnectionString,
	}
	if req.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(req.TimeoutSeconds * float64(time.Second))
	}
	return execution.Request{Source: req.Source, Config: cfg}
}

type runResponse struct {
	ID          string                 `json:"id,omitempty"`
	Success     bool                   `json:"success"`
	Output      string                 `json:"output"`
	ReturnValue interface{}            `json:"return_value,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Diagnostics []execution.Diagnostic `json:"diagnostics,omitempty"`
	DurationMS  int64                  `json:"duration_ms"`
}

func (h *handler) runExecution(w http.ResponseWriter, r *http.Request) {
	var payload runRequest
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, rec, err := h.svc.Run(r.Context(), r.RemoteAddr, payload.toDomain(), runner.Observers{})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, executions.ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		ID:          rec.ID,
		Success:     res.Success,
		Output:      res.Output,
		ReturnValue: res.ReturnValue,
		Error:       res.Error,
		Diagnostics: res.Diagnostics,
		DurationMS:  res.Duration.Milliseconds(),
	})
}

func (h *handler) getExecution(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	list, err := h.svc.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []execution.Record{}
	}
	writeJSON(w, http.StatusOK, list)
}

func decodeJSON(body io.Reader, v interface{}) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
