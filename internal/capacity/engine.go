// Package capacity drives escalating load against a target service, finds its
// breaking point, and derives an operating capacity model with recommendations.
package capacity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Phase names used in PhaseError and logs.
const (
	PhaseHealthCheck = "health-check"
	PhaseEscalation  = "escalation"
	PhaseEndurance   = "endurance"
	PhaseSpike       = "spike"
)

// Run status labels reported to the Recorder.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// PhaseError identifies which phase aborted a run. Callers must treat it as
// "no result": the engine never emits a partial capacity model.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Plan describes one full capacity run against a target.
type Plan struct {
	Target             Target           `json:"target" yaml:"target"`
	Health             *Target          `json:"health,omitempty" yaml:"health,omitempty"`
	HealthCheckSeconds int              `json:"healthCheckSeconds" yaml:"health_check_seconds"`
	Escalation         EscalationConfig `json:"escalation" yaml:"escalation"`
	Endurance          EnduranceConfig  `json:"endurance" yaml:"endurance"`
	Spike              SpikeConfig      `json:"spike" yaml:"spike"`

	// ResourceDefaults is used for the model's per-user figures whenever no
	// resource monitor is wired or the monitor fails.
	ResourceDefaults ResourceUsage `json:"resourceDefaults" yaml:"resource_defaults"`
}

// DefaultPlan returns a plan with the standard ladder and phase sizing for the
// given target. The health probe reuses the target unless overridden.
func DefaultPlan(target Target) Plan {
	health := target
	return Plan{
		Target:             target,
		Health:             &health,
		HealthCheckSeconds: 1,
		Escalation:         DefaultEscalationConfig(),
		Endurance:          DefaultEnduranceConfig(),
		Spike:              DefaultSpikeConfig(),
	}
}

// Clone returns a deep copy. Merging overrides into a clone never touches the
// original's maps, slices or health pointer.
func (p Plan) Clone() Plan {
	out := p

	if p.Target.Headers != nil {
		out.Target.Headers = make(map[string]string, len(p.Target.Headers))
		for k, v := range p.Target.Headers {
			out.Target.Headers[k] = v
		}
	}

	if p.Health != nil {
		health := *p.Health
		if p.Health.Headers != nil {
			health.Headers = make(map[string]string, len(p.Health.Headers))
			for k, v := range p.Health.Headers {
				health.Headers[k] = v
			}
		}
		out.Health = &health
	}

	if p.Escalation.Levels != nil {
		out.Escalation.Levels = append([]int(nil), p.Escalation.Levels...)
	}

	return out
}

// Validate rejects plans the engine cannot run.
func (p Plan) Validate() error {
	if p.Target.URL == "" {
		return fmt.Errorf("target url is required")
	}
	if p.Health != nil && p.Health.URL == "" {
		return fmt.Errorf("health target url is required when a health probe is set")
	}
	if err := p.Escalation.Validate(); err != nil {
		return fmt.Errorf("escalation: %w", err)
	}
	if err := p.Endurance.Validate(); err != nil {
		return fmt.Errorf("endurance: %w", err)
	}
	if err := p.Spike.Validate(); err != nil {
		return fmt.Errorf("spike: %w", err)
	}
	return nil
}

// Engine sequences a full capacity run: health check, escalation, endurance,
// spike, model build, recommendations. Phases run strictly one after another;
// all run state lives in locals, so an Engine value holds nothing mutable
// between runs. One run at a time per target is the caller's contract.
type Engine struct {
	plan     Plan
	runner   Runner
	monitor  ResourceMonitor
	recorder Recorder
	sleeper  Sleeper
	logger   *zap.Logger
}

// NewEngine wires an engine. Monitor, recorder, sleeper and logger may be nil.
func NewEngine(plan Plan, runner Runner, monitor ResourceMonitor, recorder Recorder, sleeper Sleeper, logger *zap.Logger) *Engine {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if sleeper == nil {
		sleeper = NewSleeper()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		plan:     plan,
		runner:   runner,
		monitor:  monitor,
		recorder: recorder,
		sleeper:  sleeper,
		logger:   logger,
	}
}

// Run executes the whole sequence and assembles the report. It returns either
// a complete report or a PhaseError naming the phase that failed; never both.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if err := e.plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	started := time.Now()

	report, err := e.run(ctx)
	if err != nil {
		e.recorder.RecordRun(RunFailed, time.Since(started).Seconds())
		return nil, err
	}

	report.DurationSeconds = time.Since(started).Seconds()
	e.recorder.RecordRun(RunCompleted, report.DurationSeconds)
	return report, nil
}

func (e *Engine) run(ctx context.Context) (*Report, error) {
	if e.plan.Health != nil {
		if err := e.healthCheck(ctx); err != nil {
			return nil, &PhaseError{Phase: PhaseHealthCheck, Err: err}
		}
	}

	escalator := NewEscalator(e.plan.Escalation, e.runner, e.sleeper, e.recorder, e.logger)
	esc, err := escalator.Run(ctx, e.plan.Target)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseEscalation, Err: err}
	}

	usage := e.plan.ResourceDefaults
	var endurance *EnduranceResult
	var spike *SpikeResult

	if esc.MaxConcurrentUsers > 0 {
		analyzer := NewEnduranceAnalyzer(e.plan.Endurance, e.runner, e.monitor, e.plan.ResourceDefaults, e.logger)
		endurance, err = analyzer.Run(ctx, e.plan.Target, esc.MaxConcurrentUsers)
		if err != nil {
			return nil, &PhaseError{Phase: PhaseEndurance, Err: err}
		}
		if endurance != nil {
			usage = endurance.Resource
		}

		spiker := NewSpikeAnalyzer(e.plan.Spike, e.runner, e.sleeper, e.logger)
		spike, err = spiker.Run(ctx, e.plan.Target, esc.MaxConcurrentUsers)
		if err != nil {
			return nil, &PhaseError{Phase: PhaseSpike, Err: err}
		}
		if spike != nil {
			e.recorder.RecordElasticity(spike.Elasticity)
		}
	} else {
		e.logger.Warn("no level passed escalation, skipping endurance and spike phases")
	}

	model := BuildModel(esc, usage)
	e.recorder.RecordModel(model)

	return &Report{
		ID:              uuid.New().String(),
		GeneratedAt:     time.Now().UTC(),
		Target:          e.plan.Target.URL,
		Model:           model,
		Escalation:      esc.Steps,
		Endurance:       endurance,
		Spike:           spike,
		Recommendations: Recommend(model, endurance, spike),
	}, nil
}

// healthCheck probes the health target with a single connection before any
// load is generated. Any error or recorded failure aborts the run.
func (e *Engine) healthCheck(ctx context.Context) error {
	seconds := e.plan.HealthCheckSeconds
	if seconds <= 0 {
		seconds = 1
	}

	res, err := e.runner.Execute(ctx, *e.plan.Health, 1, seconds)
	if err != nil {
		return err
	}
	if res.Errors > 0 || res.Timeouts > 0 {
		return fmt.Errorf("target unhealthy: %d errors, %d timeouts", res.Errors, res.Timeouts)
	}

	e.logger.Info("health check passed",
		zap.String("url", e.plan.Health.URL),
		zap.Float64("latency_avg_ms", res.LatencyAvgMs))
	return nil
}
