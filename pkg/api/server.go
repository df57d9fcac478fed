package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/NotCoffee418/panel_bridge/pkg/extractor"
	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/scheduler"
	"github.com/NotCoffee418/panel_bridge/pkg/telemetry"
	"github.com/NotCoffee418/panel_bridge/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultRequester = "api"

// JobService is the producer side of the scheduler.
type JobService interface {
	Submit(ctx context.Context, req types.NewJob) (*types.Job, error)
	Status(ctx context.Context, jobID string) (types.StatusView, error)
	QueueDepth() int
}

// Catalog is the read side of the store.
type Catalog interface {
	ListActions(ctx context.Context) ([]*types.ActionDefinition, error)
	GetActionBySlug(ctx context.Context, slug string) (*types.ActionDefinition, error)
	GetJob(ctx context.Context, id string) (*types.Job, error)
	ListJobs(ctx context.Context, filter types.JobFilter) ([]*types.Job, error)
}

// Server wires HTTP handlers for producers and job event subscribers.
type Server struct {
	jobs    JobService
	catalog Catalog
	hub     *Hub
	metrics *telemetry.Metrics
	logger  logger.Logger
}

func NewServer(jobs JobService, catalog Catalog, hub *Hub, metrics *telemetry.Metrics, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Server{
		jobs:    jobs,
		catalog: catalog,
		hub:     hub,
		metrics: metrics,
		logger:  log.With("component", "api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Mount("/metrics", s.metrics.Handler())
	}

	r.Get("/actions", s.handleListActions)
	r.Post("/actions/test-regex", s.handleTestRegex)
	r.Post("/actions/{slug}/jobs", s.handleRunAction)

	r.Post("/groups/{group}/read", s.handleReadGroup)
	r.Post("/groups/{group}/points/{point}/command", s.handleCommandPoint)

	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Get("/jobs/{id}/status", s.handleJobStatus)

	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.jobs.QueueDepth(),
	})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.catalog.ListActions(r.Context())
	if err != nil {
		s.internalError(w, "list actions", err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

type testRegexRequest struct {
	SampleText string `json:"sample_text"`
	Regex      string `json:"regex"`
}

func (s *Server) handleTestRegex(w http.ResponseWriter, r *http.Request) {
	var req testRegexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := extractor.TryPattern(req.SampleText, req.Regex)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type submitRequest struct {
	RequestedBy  string `json:"requested_by"`
	CommandType  string `json:"command_type"`
	CommandValue string `json:"command_value"`
}

func (s *Server) handleRunAction(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSubmit(w, r)
	if !ok {
		return
	}

	action, err := s.catalog.GetActionBySlug(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		s.internalError(w, "load action", err)
		return
	}

	s.submit(w, r, types.NewJob{
		Kind:        types.JobAction,
		ActionID:    &action.ID,
		RequestedBy: req.RequestedBy,
	})
}

func (s *Server) handleReadGroup(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSubmit(w, r)
	if !ok {
		return
	}
	group, ok := positiveParam(w, r, "group")
	if !ok {
		return
	}

	s.submit(w, r, types.NewJob{
		Kind:        types.JobReadGroup,
		RequestedBy: req.RequestedBy,
		Payload:     types.JobPayload{GroupNumber: group},
	})
}

func (s *Server) handleCommandPoint(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSubmit(w, r)
	if !ok {
		return
	}
	group, ok := positiveParam(w, r, "group")
	if !ok {
		return
	}
	point, ok := positiveParam(w, r, "point")
	if !ok {
		return
	}
	if req.CommandType == "" || req.CommandValue == "" {
		writeError(w, http.StatusBadRequest, "command_type and command_value are required")
		return
	}

	s.submit(w, r, types.NewJob{
		Kind:        types.JobCommandPoint,
		RequestedBy: req.RequestedBy,
		Payload: types.JobPayload{
			GroupNumber:  group,
			PointNumber:  point,
			CommandType:  req.CommandType,
			CommandValue: req.CommandValue,
		},
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req types.NewJob) {
	job, err := s.jobs.Submit(r.Context(), req)
	switch {
	case errors.Is(err, scheduler.ErrQueueFull):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "job": job})
	case errors.Is(err, scheduler.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.internalError(w, "submit job", err)
	default:
		writeJSON(w, http.StatusAccepted, job)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.JobFilter{
		Status: types.JobStatus(q.Get("status")),
		Kind:   types.JobKind(q.Get("kind")),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	jobs, err := s.catalog.ListJobs(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.catalog.GetJob(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.internalError(w, "load job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.jobs.Status(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, types.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.internalError(w, "load job status", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeSubmit accepts an empty body.
func decodeSubmit(w http.ResponseWriter, r *http.Request) (submitRequest, bool) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	if req.RequestedBy == "" {
		req.RequestedBy = defaultRequester
	}
	return req, true
}

func positiveParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 1 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
