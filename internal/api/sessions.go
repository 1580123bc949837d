package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/echolabs/echosim/internal/agent"
	"github.com/echolabs/echosim/internal/archive"
	"github.com/echolabs/echosim/internal/config"
	"github.com/echolabs/echosim/internal/domain"
	"github.com/echolabs/echosim/internal/engine"
	"github.com/echolabs/echosim/internal/evaluate"
	"github.com/echolabs/echosim/internal/scenario"
	"github.com/echolabs/echosim/internal/targeting"
)

// SessionStarts lets the handler signal session starts to a metrics
// collector without depending on one.
type SessionStarts interface {
	SessionStarted()
}

// SessionHandler runs and inspects simulation sessions over HTTP.
type SessionHandler struct {
	cfg      *config.Config
	port     agent.DecisionPort
	analyzer evaluate.Analyzer
	registry *engine.Registry
	repo     archive.Repository
	sink     engine.EventSink
	starts   SessionStarts
	log      *slog.Logger
}

// NewSessionHandler creates a session handler. sink and starts may be
// nil.
func NewSessionHandler(cfg *config.Config, port agent.DecisionPort, analyzer evaluate.Analyzer, registry *engine.Registry, repo archive.Repository, sink engine.EventSink, starts SessionStarts, log *slog.Logger) *SessionHandler {
	if sink == nil {
		sink = engine.NopSink{}
	}
	return &SessionHandler{
		cfg:      cfg,
		port:     port,
		analyzer: analyzer,
		registry: registry,
		repo:     repo,
		sink:     sink,
		starts:   starts,
		log:      log,
	}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{session_id}", h.GetSession)
		r.Get("/sessions/{session_id}/export", h.ExportSession)
		r.Get("/sessions/{session_id}/metrics", h.SessionMetrics)
		r.Get("/archive", h.ListArchive)
	})
}

type sessionSummary struct {
	SessionID string              `json:"session_id"`
	State     engine.SessionState `json:"state"`
	Round     int                 `json:"round"`
	Reason    engine.StopReason   `json:"stop_reason,omitempty"`
	Users     int                 `json:"users"`
	Post      domain.Post         `json:"post"`
}

// CreateSession accepts a scenario, starts its controller loop in the
// background, and responds immediately with the new session id.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var sc scenario.Scenario
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := sc.Validate(); err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	strategy, err := sc.BuildStrategy()
	if err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	sim := h.cfg.Simulation
	applyOverrides(&sim, sc.Overrides)

	agents := make([]*agent.Agent, len(sc.Users))
	for i, p := range sc.Users {
		agents[i] = agent.New(p, sim.UserMemoryLength, h.port)
	}

	sess, err := engine.NewSession(domain.Post{
		Title:   sc.Post.Title,
		Content: sc.Post.Content,
		Author:  sc.Post.Author,
	}, agents, strategy, sim.MaxRounds)
	if err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.registry.Add(sess)

	scheduler := engine.NewScheduler(sess.Store(), h.analyzer, h.log,
		sim.MaxConcurrentUsers, h.cfg.Oracle.RequestTimeout, sim.ActionTypes)
	controller := engine.NewController(scheduler, engine.ControllerConfig{
		Cutoff:                targeting.Cutoff{TopK: sim.DistributionTopK, ScoreFloor: sim.ScoreFloor},
		RedistributeEvery:     sim.RedistributeEvery,
		StopMetricThreshold:   sim.StopMetricThreshold,
		StopConsecutiveRounds: sim.StopConsecutiveRounds,
		Thresholds:            evaluate.DefaultThresholds(),
		RoundInterval:         sim.RoundInterval,
	}, h.sink, h.log)

	if h.starts != nil {
		h.starts.SessionStarted()
	}
	go h.run(controller, sess)

	JSON(w, http.StatusAccepted, map[string]string{
		"session_id": sess.ID(),
		"state":      string(sess.State()),
	})
}

// run owns the session until it terminates, then archives it. Detached
// from the creating request on purpose.
func (h *SessionHandler) run(controller *engine.Controller, sess *engine.Session) {
	if err := controller.Run(context.Background(), sess); err != nil {
		h.log.Error("session ended with error", "session_id", sess.ID(), "error", err)
	}
	if err := h.repo.SaveExport(context.Background(), sess.Export()); err != nil {
		h.log.Error("failed to archive session", "session_id", sess.ID(), "error", err)
	}
}

// ListSessions lists live sessions.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, _ *http.Request) {
	out := make([]sessionSummary, 0)
	for _, id := range h.registry.IDs() {
		sess, err := h.registry.Get(id)
		if err != nil {
			continue
		}
		out = append(out, summarize(sess))
	}
	JSON(w, http.StatusOK, out)
}

// GetSession reports the status of one live session, including the
// latest metrics.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	resp := struct {
		sessionSummary
		LastMetrics *domain.EvaluationMetrics `json:"last_metrics,omitempty"`
	}{sessionSummary: summarize(sess)}
	if m, ok := sess.LastMetrics(); ok {
		resp.LastMetrics = &m
	}
	JSON(w, http.StatusOK, resp)
}

// ExportSession returns the full export of a session, live or
// archived.
func (h *SessionHandler) ExportSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if sess, err := h.registry.Get(id); err == nil {
		JSON(w, http.StatusOK, sess.Export())
		return
	}
	export, err := h.repo.GetExport(r.Context(), id)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			Error(w, http.StatusNotFound, "unknown session "+id)
			return
		}
		h.log.Error("export lookup failed", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "export lookup failed")
		return
	}
	JSON(w, http.StatusOK, export)
}

// SessionMetrics returns the per-round metric sequence of a session.
func (h *SessionHandler) SessionMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if sess, err := h.registry.Get(id); err == nil {
		rounds := sess.Rounds()
		out := make([]domain.EvaluationMetrics, len(rounds))
		for i, rec := range rounds {
			out[i] = rec.Metrics
		}
		JSON(w, http.StatusOK, out)
		return
	}
	metrics, err := h.repo.RoundMetrics(r.Context(), id)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			Error(w, http.StatusNotFound, "unknown session "+id)
			return
		}
		h.log.Error("metrics lookup failed", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "metrics lookup failed")
		return
	}
	JSON(w, http.StatusOK, metrics)
}

// ListArchive lists archived sessions, newest first.
func (h *SessionHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.ListSessions(r.Context())
	if err != nil {
		h.log.Error("archive listing failed", "error", err)
		Error(w, http.StatusInternalServerError, "archive listing failed")
		return
	}
	if sessions == nil {
		sessions = []archive.SessionSummary{}
	}
	JSON(w, http.StatusOK, sessions)
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	id := chi.URLParam(r, "session_id")
	sess, err := h.registry.Get(id)
	if err != nil {
		Error(w, http.StatusNotFound, "unknown session "+id)
		return nil, false
	}
	return sess, true
}

func summarize(sess *engine.Session) sessionSummary {
	return sessionSummary{
		SessionID: sess.ID(),
		State:     sess.State(),
		Round:     sess.Round(),
		Reason:    sess.StopReason(),
		Users:     len(sess.Population()),
		Post:      sess.Post(),
	}
}

func applyOverrides(sim *config.SimulationConfig, o *scenario.Overrides) {
	if o == nil {
		return
	}
	if o.MaxRounds != nil && *o.MaxRounds > 0 {
		sim.MaxRounds = *o.MaxRounds
	}
	if o.DistributionTopK != nil && *o.DistributionTopK >= 0 {
		sim.DistributionTopK = *o.DistributionTopK
	}
	if o.ScoreFloor != nil && *o.ScoreFloor >= 0 {
		sim.ScoreFloor = *o.ScoreFloor
	}
	if o.RedistributeEvery != nil && *o.RedistributeEvery > 0 {
		sim.RedistributeEvery = *o.RedistributeEvery
	}
	if o.StopMetricThreshold != nil && *o.StopMetricThreshold >= 0 && *o.StopMetricThreshold <= 1 {
		sim.StopMetricThreshold = *o.StopMetricThreshold
	}
	if o.StopConsecutiveRounds != nil && *o.StopConsecutiveRounds > 0 {
		sim.StopConsecutiveRounds = *o.StopConsecutiveRounds
	}
}
