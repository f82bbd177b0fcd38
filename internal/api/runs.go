// internal/api/runs.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/rampart/internal/capacity"
	"github.com/FairForge/rampart/internal/config"
)

// PlanRunner executes one capacity plan to completion. The engine satisfies
// it through an adapter in cmd; tests substitute fakes.
type PlanRunner interface {
	RunPlan(ctx context.Context, plan capacity.Plan) (*capacity.Report, error)
}

// PlanRunnerFunc adapts a function to PlanRunner.
type PlanRunnerFunc func(ctx context.Context, plan capacity.Plan) (*capacity.Report, error)

func (f PlanRunnerFunc) RunPlan(ctx context.Context, plan capacity.Plan) (*capacity.Report, error) {
	return f(ctx, plan)
}

// RunStatus is the lifecycle state of a capacity run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Run is one capacity run tracked by the control server.
type Run struct {
	ID         string           `json:"id"`
	Target     string           `json:"target"`
	Status     RunStatus        `json:"status"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	Error      string           `json:"error,omitempty"`
	Report     *capacity.Report `json:"report,omitempty"`

	cancel context.CancelFunc
}

var (
	errRunActive   = errors.New("a run is already active")
	errRunNotFound = errors.New("run not found")
	errRunFinished = errors.New("run already finished")
)

// registry tracks runs and enforces one active run at a time. Load tests
// saturate the target, so overlapping runs would corrupt each other's numbers.
type registry struct {
	mu       sync.Mutex
	runs     map[string]*Run
	order    []string
	activeID string
}

func newRegistry() *registry {
	return &registry{runs: make(map[string]*Run)}
}

func (g *registry) begin(target string, cancel context.CancelFunc) (Run, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.activeID != "" {
		return Run{}, errRunActive
	}

	run := &Run{
		ID:        uuid.New().String(),
		Target:    target,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
	}
	g.runs[run.ID] = run
	g.order = append(g.order, run.ID)
	g.activeID = run.ID

	return snapshot(run), nil
}

func (g *registry) finish(id string, report *capacity.Report, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	run, ok := g.runs[id]
	if !ok {
		return
	}

	now := time.Now().UTC()
	run.FinishedAt = &now
	run.cancel = nil

	switch {
	case err == nil:
		run.Status = StatusCompleted
		run.Report = report
	case errors.Is(err, context.Canceled):
		run.Status = StatusCancelled
		run.Error = err.Error()
	default:
		run.Status = StatusFailed
		run.Error = err.Error()
	}

	if g.activeID == id {
		g.activeID = ""
	}
}

func (g *registry) cancelRun(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	run, ok := g.runs[id]
	if !ok {
		return errRunNotFound
	}
	if run.Status != StatusRunning || run.cancel == nil {
		return errRunFinished
	}

	run.cancel()
	return nil
}

func (g *registry) cancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, run := range g.runs {
		if run.Status == StatusRunning && run.cancel != nil {
			run.cancel()
		}
	}
}

func (g *registry) get(id string) (Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	run, ok := g.runs[id]
	if !ok {
		return Run{}, false
	}
	return snapshot(run), true
}

// list returns runs in start order, reports stripped. Clients fetch the
// report through the detail endpoint.
func (g *registry) list() []Run {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Run, 0, len(g.order))
	for _, id := range g.order {
		snap := snapshot(g.runs[id])
		snap.Report = nil
		out = append(out, snap)
	}
	return out
}

// snapshot copies the run for use outside the registry lock. The report
// pointer is safe to share: it is set once on finish and never mutated.
func snapshot(run *Run) Run {
	snap := *run
	snap.cancel = nil
	return snap
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		http.Error(w, "run execution is not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}

	// Request bodies merge over the configured default plan, so a minimal
	// {"target":{"url":...}} runs with the standard ladder. A server can come
	// up without a configured plan; requests then merge over the default shape.
	base := s.defaults
	if base.Escalation.StepSeconds == 0 {
		base = capacity.Plan{
			HealthCheckSeconds: 1,
			Escalation:         capacity.DefaultEscalationConfig(),
			Endurance:          capacity.DefaultEnduranceConfig(),
			Spike:              capacity.DefaultSpikeConfig(),
		}
	}

	plan := base.Clone()
	if len(bytes.TrimSpace(body)) > 0 {
		if err := config.ValidatePlanJSON(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal(body, &plan); err != nil {
			http.Error(w, "invalid plan: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := plan.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())

	run, err := s.runs.begin(plan.Target.URL, cancel)
	if err != nil {
		cancel()
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	s.logger.Info("run started",
		zap.String("id", run.ID),
		zap.String("target", run.Target))

	go func() {
		defer cancel()
		report, runErr := s.runner.RunPlan(runCtx, plan)
		s.runs.finish(run.ID, report, runErr)
		if runErr != nil {
			s.logger.Error("run finished with error", zap.String("id", run.ID), zap.Error(runErr))
			return
		}
		s.logger.Info("run completed", zap.String("id", run.ID))
	}()

	s.writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runs.list())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, errRunNotFound.Error(), http.StatusNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, errRunNotFound.Error(), http.StatusNotFound)
		return
	}
	if run.Report == nil {
		http.Error(w, "run has no report yet", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(run.Report.Summary()))
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	err := s.runs.cancelRun(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, errRunNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, errRunFinished):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"cancelling"}`))
}
