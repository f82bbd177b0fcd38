// Package capacity drives escalating load against a target service, finds its
// breaking point, and derives an operating capacity model with recommendations.
package capacity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LatencyP95LimitMs is the highest p95 a level may show and still pass. A step
// is successful only with zero errors and a p95 strictly under this limit.
const LatencyP95LimitMs = 2000

// EscalationConfig defines the concurrency ladder for breaking-point
// discovery: ascending levels, a fixed duration per level, and the settle
// interval between levels.
type EscalationConfig struct {
	Levels        []int `json:"levels" yaml:"levels"`
	StepSeconds   int   `json:"stepSeconds" yaml:"step_seconds"`
	SettleSeconds int   `json:"settleSeconds" yaml:"settle_seconds"`
}

// DefaultEscalationConfig returns the standard ladder.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		Levels:        []int{10, 25, 50, 75, 100, 150, 200, 300, 500},
		StepSeconds:   30,
		SettleSeconds: 5,
	}
}

// Validate rejects ladders the escalator cannot walk. An empty level list is
// allowed and yields the degenerate zero-capacity outcome.
func (c EscalationConfig) Validate() error {
	if c.StepSeconds <= 0 {
		return fmt.Errorf("step duration must be positive, got %d", c.StepSeconds)
	}
	if c.SettleSeconds < 0 {
		return fmt.Errorf("settle interval must not be negative, got %d", c.SettleSeconds)
	}
	prev := 0
	for i, level := range c.Levels {
		if level <= prev {
			return fmt.Errorf("levels must be ascending and positive: level %d (%d) after %d", i, level, prev)
		}
		prev = level
	}
	return nil
}

// EscalationOutcome is everything escalation learned about the target. Later
// phases receive it by value; nothing here is shared mutable state.
type EscalationOutcome struct {
	Steps                 []EscalationStepResult
	BreakingPoint         *BreakingPoint
	MaxConcurrentUsers    int     // highest level that passed, 0 if none
	PeakRequestsPerSecond float64 // best RPS observed across passing levels
}

// Escalator walks the concurrency ladder until a level fails or the ladder is
// exhausted.
type Escalator struct {
	cfg      EscalationConfig
	runner   Runner
	sleeper  Sleeper
	recorder Recorder
	logger   *zap.Logger
}

// NewEscalator creates an escalator. Sleeper, recorder and logger may be nil.
func NewEscalator(cfg EscalationConfig, runner Runner, sleeper Sleeper, recorder Recorder, logger *zap.Logger) *Escalator {
	if sleeper == nil {
		sleeper = NewSleeper()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Escalator{
		cfg:      cfg,
		runner:   runner,
		sleeper:  sleeper,
		recorder: recorder,
		logger:   logger,
	}
}

// Run executes one level after another, strictly in order, settling between
// levels. It stops at the first level that fails the success criterion and
// records the breaking point. A runner error aborts the walk entirely.
func (e *Escalator) Run(ctx context.Context, target Target) (EscalationOutcome, error) {
	if err := e.cfg.Validate(); err != nil {
		return EscalationOutcome{}, err
	}

	out := EscalationOutcome{Steps: make([]EscalationStepResult, 0, len(e.cfg.Levels))}

	for i, level := range e.cfg.Levels {
		if i > 0 {
			settle := time.Duration(e.cfg.SettleSeconds) * time.Second
			if err := e.sleeper.Sleep(ctx, settle); err != nil {
				return EscalationOutcome{}, fmt.Errorf("settle before %d connections: %w", level, err)
			}
		}

		e.logger.Info("escalation step starting",
			zap.Int("connections", level),
			zap.Int("duration_seconds", e.cfg.StepSeconds))

		res, err := e.runner.Execute(ctx, target, level, e.cfg.StepSeconds)
		if err != nil {
			return EscalationOutcome{}, fmt.Errorf("load test at %d connections: %w", level, err)
		}

		step := EscalationStepResult{
			RequestResult: res,
			Connections:   level,
			Successful:    res.Errors == 0 && res.LatencyP95Ms < LatencyP95LimitMs,
		}
		out.Steps = append(out.Steps, step)
		e.recorder.RecordStep(step)

		if !step.Successful {
			bp := &BreakingPoint{
				Connections: level,
				Reason:      breakingReason(res),
				Detail:      step,
			}
			out.BreakingPoint = bp
			e.recorder.RecordBreakingPoint(*bp)
			e.logger.Warn("breaking point found",
				zap.Int("connections", level),
				zap.String("reason", string(bp.Reason)),
				zap.Int("errors", res.Errors),
				zap.Float64("latency_p95_ms", res.LatencyP95Ms))
			break
		}

		out.MaxConcurrentUsers = level
		if res.RequestsPerSecond > out.PeakRequestsPerSecond {
			out.PeakRequestsPerSecond = res.RequestsPerSecond
		}

		e.logger.Info("escalation step passed",
			zap.Int("connections", level),
			zap.Float64("rps", res.RequestsPerSecond),
			zap.Float64("latency_p95_ms", res.LatencyP95Ms))
	}

	return out, nil
}

// breakingReason classifies a failed step: errors dominate latency.
func breakingReason(r RequestResult) BreakingPointReason {
	if r.Errors > 0 {
		return ReasonErrors
	}
	return ReasonHighLatency
}
