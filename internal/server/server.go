// Package server exposes optimization sessions as HTTP jobs: submit a
// geometry and target, poll for the aggregated result, cancel mid-run.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/molforge/RELAX/internal/config"
	"github.com/molforge/RELAX/internal/geometry"
	"github.com/molforge/RELAX/internal/logging"
	"github.com/molforge/RELAX/internal/optimize"
	"github.com/molforge/RELAX/internal/optimize/quasinewton"
	"github.com/molforge/RELAX/internal/optimize/steepest"
	"github.com/molforge/RELAX/internal/potential"
)

// Logger is the logging interface the server needs.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Server manages optimization jobs.
type Server struct {
	cfg       *config.Config
	logger    Logger
	registry  *jobRegistry
	metrics   *metrics
	evaluator potential.Evaluator
	slots     chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithEvaluator replaces the built-in Lennard-Jones evaluator, e.g. to plug
// in an external electronic-structure backend or a test double.
func WithEvaluator(ev potential.Evaluator) Option {
	return func(s *Server) { s.evaluator = ev }
}

// NewServer creates a server. Job metrics are registered on reg.
func NewServer(cfg *config.Config, logger Logger, reg prometheus.Registerer, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		registry:   newJobRegistry(),
		metrics:    newMetrics(reg),
		evaluator:  potential.NewLennardJones(),
		slots:      make(chan struct{}, cfg.Optimization.MaxConcurrentSessions),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes mounts the API on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimizations", s.handleSubmit)
		r.Get("/optimizations/{id}", s.handleStatus)
		r.Delete("/optimizations/{id}", s.handleCancel)
	})
}

// Close cancels every running job.
func (s *Server) Close() error {
	s.baseCancel()
	return nil
}

// optimizeRequest is the submission payload.
type optimizeRequest struct {
	// Symbols and Coordinates define the initial geometry; coordinates are
	// flattened [x0 y0 z0 x1 ...].
	Symbols     []string  `json:"symbols"`
	Coordinates []float64 `json:"coordinates"`
	// Target is "minimum" (default) or "transition_state".
	Target string `json:"target"`
	// Backend is "steepest" or "quasinewton"; empty takes the configured
	// default.
	Backend string `json:"backend"`
	// Preset names a convergence preset (QCHEM, GAU, ...); empty takes the
	// per-target default.
	Preset string `json:"preset"`
	// Criteria overrides individual thresholds by metric name.
	Criteria map[string]float64 `json:"criteria"`
	// MaxIterations bounds the run; nil takes the size-scaled default.
	MaxIterations *int `json:"max_iterations"`
	// HessianUpdate selects the quasi-newton update rule (bfgs, ms, powell,
	// none).
	HessianUpdate string `json:"hessian_update"`
	// TrustRadius caps the quasi-newton step norm when positive.
	TrustRadius float64 `json:"trust_radius"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg, backendName, err := s.buildSession(req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := optimize.NewSession(cfg)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	job := s.registry.create(cfg.Target.String(), backendName, cancel)

	s.logger.Info("optimization submitted", map[string]interface{}{
		"job_id":  job.ID,
		"target":  cfg.Target.String(),
		"backend": backendName,
		"n_atoms": cfg.InitialGeometry.NAtoms(),
	})

	go s.runJob(jobCtx, job.ID, backendName, session)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"id": job.ID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.registry.snapshot(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	found, cancelled := s.registry.cancelJob(id)
	if !found {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if !cancelled {
		s.respondError(w, http.StatusConflict, "job already finished")
		return
	}
	s.logger.Info("optimization cancelled", map[string]interface{}{"job_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// buildSession translates a request into a session configuration.
func (s *Server) buildSession(req optimizeRequest) (optimize.SessionConfig, string, error) {
	target, err := optimize.ParseTarget(req.Target)
	if err != nil {
		return optimize.SessionConfig{}, "", err
	}

	geom, err := geometry.New(req.Symbols, req.Coordinates)
	if err != nil {
		return optimize.SessionConfig{}, "", err
	}

	criteria := optimize.DefaultCriteria(target)
	presetName := req.Preset
	if presetName == "" && target == optimize.TargetMinimum {
		presetName = s.cfg.Optimization.DefaultPreset
	}
	if presetName != "" {
		preset, ok := optimize.Preset(presetName)
		if !ok {
			return optimize.SessionConfig{}, "", optimize.NewConfigurationError("unknown convergence preset %q", presetName)
		}
		criteria = preset
	}
	criteria, err = criteria.Override(req.Criteria)
	if err != nil {
		return optimize.SessionConfig{}, "", err
	}

	maxIterations := -1
	if req.MaxIterations != nil {
		maxIterations = *req.MaxIterations
	}
	if maxIterations > s.cfg.Optimization.MaxIterationsCap {
		maxIterations = s.cfg.Optimization.MaxIterationsCap
	}

	backendName := req.Backend
	if backendName == "" || backendName == "default" {
		backendName = s.cfg.Optimization.DefaultBackend
	}
	backend, err := s.newBackend(backendName, req)
	if err != nil {
		return optimize.SessionConfig{}, "", err
	}

	return optimize.SessionConfig{
		Target:          target,
		InitialGeometry: geom,
		Criteria:        criteria,
		MaxIterations:   maxIterations,
		Evaluator:       s.evaluator,
		Backend:         backend,
	}, backendName, nil
}

// newBackend builds a fresh backend instance; backend state is never shared
// between jobs.
func (s *Server) newBackend(name string, req optimizeRequest) (optimize.Backend, error) {
	switch name {
	case "steepest":
		return steepest.New(), nil
	case "quasinewton":
		rule, err := quasinewton.ParseUpdateRule(req.HessianUpdate)
		if err != nil {
			return nil, err
		}
		opts := []quasinewton.Option{quasinewton.WithUpdateRule(rule)}
		if req.TrustRadius > 0 {
			opts = append(opts, quasinewton.WithTrustRadius(req.TrustRadius))
		}
		return quasinewton.New(opts...), nil
	default:
		return nil, optimize.NewConfigurationError("unknown backend %q", name)
	}
}

// runJob executes one session, bounded by the concurrency slots.
func (s *Server) runJob(ctx context.Context, jobID, backendName string, session *optimize.Session) {
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.registry.finish(jobID, StatusCancelled, nil, ctx.Err().Error())
		return
	}

	s.registry.setRunning(jobID)
	s.metrics.running.Inc()
	defer s.metrics.running.Dec()

	result, err := session.Run(ctx)
	if err != nil {
		// Cancellation, or a configuration race; the job carries the message.
		s.registry.finish(jobID, StatusCancelled, nil, err.Error())
		s.logger.Warn("optimization aborted", map[string]interface{}{
			"job_id": jobID, "error": err.Error(),
		})
		return
	}

	bag := optimize.Aggregate(result)
	s.metrics.sessionsTotal.WithLabelValues(result.Reason.String(), backendName).Inc()
	s.metrics.iterations.Observe(float64(result.NIterations))

	status := StatusCompleted
	errMsg := ""
	if result.Err != nil {
		status = StatusFailed
		errMsg = result.Err.Error()
	}
	s.registry.finish(jobID, status, bag, errMsg)

	s.logger.Info("optimization finished", map[string]interface{}{
		"job_id":       jobID,
		"reason":       result.Reason.String(),
		"converged":    result.Converged,
		"n_iterations": result.NIterations,
	})
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
