// Package httpapi is the thin REST surface in front of the
// dispatcher and jobstore. It owns no pipeline logic: every handler just
// validates input, enqueues a dispatcher.Job, or reads a run's pipeline.Status
// back out of the jobstore.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/streamscribe/streamscribe/internal/dashboard"
	"github.com/streamscribe/streamscribe/internal/dispatcher"
	"github.com/streamscribe/streamscribe/internal/jobstore"
	"github.com/streamscribe/streamscribe/internal/pipeline"
	"github.com/streamscribe/streamscribe/internal/serialize"
	"github.com/streamscribe/streamscribe/internal/types"
)

// IDGenerator produces a fresh run ID for each accepted submission.
type IDGenerator func() string

// Server wires the HTTP surface over a Dispatcher and Store.
type Server struct {
	dispatcher     *dispatcher.Dispatcher
	store          *jobstore.Store
	results        ResultStore
	newID          IDGenerator
	dashboard      dashboard.BaseURL
	metricsHandler http.Handler
	logger         *zap.Logger
}

// New builds a Server. newID must return a unique value per call; callers
// typically pass github.com/google/uuid.NewString or similar. The
// transcript.json/transcript.srt endpoints respond 501 until WithResults
// is used to attach a ResultStore.
func New(d *dispatcher.Dispatcher, store *jobstore.Store, newID IDGenerator, dashboardBase dashboard.BaseURL, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{dispatcher: d, store: store, newID: newID, dashboard: dashboardBase, logger: logger}
}

// WithResults attaches a ResultStore the transcript endpoints read
// completed merged segments from.
func (s *Server) WithResults(results ResultStore) *Server {
	s.results = results
	return s
}

// WithMetricsHandler mounts h at GET /metrics, typically a promhttp
// handler over the process's telemetry registry.
func (s *Server) WithMetricsHandler(h http.Handler) *Server {
	s.metricsHandler = h
	return s
}

// Routes builds the chi router exposing this server's endpoints.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/runs", s.createRun)
	r.Get("/runs/{runID}", s.getRun)
	r.Delete("/runs/{runID}", s.cancelRun)
	r.Get("/runs/{runID}/transcript.json", s.getTranscriptJSON)
	r.Get("/runs/{runID}/transcript.srt", s.getTranscriptSRT)
	r.Get("/runs/{runID}/dashboard", s.redirectDashboard)
	r.Get("/healthz", s.healthz)
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	return r
}

type createRunRequest struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Mode   string `json:"mode"` // "silence_aware" (default) or "overlap"
}

type createRunResponse struct {
	RunID        string `json:"runId"`
	DashboardURL string `json:"dashboardUrl"`
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.KindValidationError, "malformed request body")
		return
	}
	if req.Bucket == "" || req.Key == "" {
		writeError(w, http.StatusBadRequest, types.KindValidationError, "bucket and key are required")
		return
	}

	mode := types.ModeSilenceAware
	if req.Mode == "overlap" {
		mode = types.ModeOverlap
	}

	runID := s.newID()
	s.dispatcher.Submit(r.Context(), dispatcher.Job{
		RunID: runID,
		Req:   pipeline.Request{Bucket: req.Bucket, Key: req.Key, Mode: mode},
	})

	writeJSON(w, http.StatusAccepted, createRunResponse{
		RunID:        runID,
		DashboardURL: dashboard.URLForRun(s.dashboard, runID),
	})
}

type statusResponse struct {
	RunID      string  `json:"runId"`
	State      string  `json:"state"`
	Progress   float64 `json:"progress"`
	ChunkIndex int     `json:"chunkIndex,omitempty"`
	Error      *string `json:"error,omitempty"`
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	status, ok := s.store.Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, types.KindNotFound, "unknown run id")
		return
	}

	resp := statusResponse{
		RunID:      runID,
		State:      status.State.String(),
		Progress:   status.Progress,
		ChunkIndex: status.ChunkIndex,
	}
	if status.Err != nil {
		msg := status.Err.Error()
		resp.Error = &msg
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResultStore is the subset of a completed-run store the transcript
// handlers need. A finished run's merged segments live here between
// COMPLETED and a client fetching them; a deployment wires any
// implementation (in-memory, object-store-backed) in via WithResults.
type ResultStore interface {
	Get(runID string) ([]types.MergedSegment, bool)
}

func (s *Server) getTranscriptJSON(w http.ResponseWriter, r *http.Request) {
	segs, ok := s.completedSegments(w, r)
	if !ok {
		return
	}
	body, err := serialize.JSON(segs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.KindInternalInvariant, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) getTranscriptSRT(w http.ResponseWriter, r *http.Request) {
	segs, ok := s.completedSegments(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/x-subrip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(serialize.SRT(segs)))
}

// completedSegments resolves runID to its merged segments, writing the
// appropriate error response and returning ok=false if the run is unknown,
// incomplete, or no ResultStore is configured.
func (s *Server) completedSegments(w http.ResponseWriter, r *http.Request) ([]types.MergedSegment, bool) {
	runID := chi.URLParam(r, "runID")
	status, ok := s.store.Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, types.KindNotFound, "unknown run id")
		return nil, false
	}
	if status.State != types.StateCompleted {
		writeError(w, http.StatusConflict, types.KindValidationError, "run has not completed")
		return nil, false
	}
	if s.results == nil {
		writeError(w, http.StatusNotImplemented, types.KindInternalInvariant, "no result store configured")
		return nil, false
	}
	segs, ok := s.results.Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, types.KindNotFound, "transcript not retained")
		return nil, false
	}
	return segs, true
}

// cancelRun signals the run's context. The response is 202 because
// cancellation is asynchronous: in-flight external calls are allowed to
// finish before the run lands in FAILED/Cancelled.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if s.dispatcher.Cancel(runID) {
		writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID, "status": "cancelling"})
		return
	}

	if status, ok := s.store.Get(runID); ok && status.State.Terminal() {
		writeError(w, http.StatusConflict, types.KindValidationError, "run already finished")
		return
	}
	writeError(w, http.StatusNotFound, types.KindNotFound, "unknown run id")
}

func (s *Server) redirectDashboard(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, ok := s.store.Get(runID); !ok {
		writeError(w, http.StatusNotFound, types.KindNotFound, "unknown run id")
		return
	}
	http.Redirect(w, r, dashboard.URLForRun(s.dashboard, runID), http.StatusFound)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind types.Kind, message string) {
	writeJSON(w, status, errorResponse{Kind: kind.String(), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
