// Package capacity drives escalating load against a target service, finds its
// breaking point, and derives an operating capacity model with recommendations.
package capacity

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Elasticity deductions. Scoring starts at 100; each violated condition
// deducts independently and the result is clamped to [0,100].
const (
	deductSpikeErrors      = 30 // spike produced more errors than normal load
	deductRecoveryDrift    = 20 // recovery RPS drifted more than 10% from normal
	deductSpikeLatency     = 25 // spike p95 exceeded 3x normal p95
	recoveryDriftTolerance = 0.1
	spikeLatencyRatio      = 3.0
)

// SpikeConfig sizes the three spike phases. Normal and spike connection counts
// are fractions of the capacity discovered during escalation; recovery reuses
// the normal count.
type SpikeConfig struct {
	PhaseSeconds   int     `json:"phaseSeconds" yaml:"phase_seconds"`
	PauseSeconds   int     `json:"pauseSeconds" yaml:"pause_seconds"`
	NormalFraction float64 `json:"normalFraction" yaml:"normal_fraction"`
	SpikeFraction  float64 `json:"spikeFraction" yaml:"spike_fraction"`
}

// DefaultSpikeConfig returns the standard half/one-and-a-half sizing with a
// ten-second pause between phases.
func DefaultSpikeConfig() SpikeConfig {
	return SpikeConfig{
		PhaseSeconds:   60,
		PauseSeconds:   10,
		NormalFraction: 0.5,
		SpikeFraction:  1.5,
	}
}

// Validate rejects unusable spike settings.
func (c SpikeConfig) Validate() error {
	if c.PhaseSeconds <= 0 {
		return fmt.Errorf("spike phase duration must be positive, got %d", c.PhaseSeconds)
	}
	if c.PauseSeconds < 0 {
		return fmt.Errorf("spike pause must not be negative, got %d", c.PauseSeconds)
	}
	if c.NormalFraction <= 0 || c.SpikeFraction <= 0 {
		return fmt.Errorf("spike fractions must be positive, got normal %g spike %g", c.NormalFraction, c.SpikeFraction)
	}
	return nil
}

// SpikePhase is one of the three spike test phases.
type SpikePhase struct {
	TestProfile
	Result RequestResult `json:"result"`
}

// SpikeResult carries the three phase results and the elasticity grade.
type SpikeResult struct {
	Normal     SpikePhase      `json:"normal"`
	Spike      SpikePhase      `json:"spike"`
	Recovery   SpikePhase      `json:"recovery"`
	Elasticity ElasticityScore `json:"elasticity"`
}

// SpikeAnalyzer measures how a target absorbs a burst and returns to baseline.
type SpikeAnalyzer struct {
	cfg     SpikeConfig
	runner  Runner
	sleeper Sleeper
	logger  *zap.Logger
}

// NewSpikeAnalyzer creates a spike analyzer. Sleeper and logger may be nil.
func NewSpikeAnalyzer(cfg SpikeConfig, runner Runner, sleeper Sleeper, logger *zap.Logger) *SpikeAnalyzer {
	if sleeper == nil {
		sleeper = NewSleeper()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SpikeAnalyzer{
		cfg:     cfg,
		runner:  runner,
		sleeper: sleeper,
		logger:  logger,
	}
}

// Run executes normal, spike and recovery phases in order with a fixed pause
// between them. Returns nil when maxUsers leaves nothing to test.
func (a *SpikeAnalyzer) Run(ctx context.Context, target Target, maxUsers int) (*SpikeResult, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	normalConns := scaled(maxUsers, a.cfg.NormalFraction)
	spikeConns := scaled(maxUsers, a.cfg.SpikeFraction)
	if normalConns <= 0 || spikeConns <= 0 {
		return nil, nil
	}

	phases := []struct {
		name    string
		profile TestProfile
	}{
		{"normal", TestProfile{Connections: normalConns, DurationSeconds: a.cfg.PhaseSeconds}},
		{"spike", TestProfile{Connections: spikeConns, DurationSeconds: a.cfg.PhaseSeconds}},
		{"recovery", TestProfile{Connections: normalConns, DurationSeconds: a.cfg.PhaseSeconds}},
	}

	results := make([]RequestResult, len(phases))
	pause := time.Duration(a.cfg.PauseSeconds) * time.Second

	for i, phase := range phases {
		if i > 0 {
			if err := a.sleeper.Sleep(ctx, pause); err != nil {
				return nil, fmt.Errorf("pause before %s phase: %w", phase.name, err)
			}
		}

		a.logger.Info("spike phase starting",
			zap.String("phase", phase.name),
			zap.Int("connections", phase.profile.Connections),
			zap.Int("duration_seconds", phase.profile.DurationSeconds))

		res, err := a.runner.Execute(ctx, target, phase.profile.Connections, phase.profile.DurationSeconds)
		if err != nil {
			return nil, fmt.Errorf("%s phase at %d connections: %w", phase.name, phase.profile.Connections, err)
		}
		results[i] = res
	}

	score := scoreElasticity(results[0], results[1], results[2])

	a.logger.Info("spike analysis complete",
		zap.Int("elasticity_score", score.Score),
		zap.Float64("normal_rps", score.Breakdown.NormalRps),
		zap.Float64("spike_rps", score.Breakdown.SpikeRps),
		zap.Float64("recovery_rps", score.Breakdown.RecoveryRps))

	return &SpikeResult{
		Normal:     SpikePhase{TestProfile: phases[0].profile, Result: results[0]},
		Spike:      SpikePhase{TestProfile: phases[1].profile, Result: results[1]},
		Recovery:   SpikePhase{TestProfile: phases[2].profile, Result: results[2]},
		Elasticity: score,
	}, nil
}

// scoreElasticity grades spike absorption. Each deduction is independent; the
// score never leaves [0,100].
func scoreElasticity(normal, spike, recovery RequestResult) ElasticityScore {
	score := 100

	if spike.Errors > normal.Errors {
		score -= deductSpikeErrors
	}

	drift := math.Abs(recovery.RequestsPerSecond - normal.RequestsPerSecond)
	if drift > recoveryDriftTolerance*normal.RequestsPerSecond {
		score -= deductRecoveryDrift
	}

	if spike.LatencyP95Ms > spikeLatencyRatio*normal.LatencyP95Ms {
		score -= deductSpikeLatency
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return ElasticityScore{
		Score: score,
		Breakdown: ElasticityBreakdown{
			NormalRps:        normal.RequestsPerSecond,
			SpikeRps:         spike.RequestsPerSecond,
			RecoveryRps:      recovery.RequestsPerSecond,
			SpikeErrors:      spike.Errors,
			RecoveryDeltaRps: drift,
		},
	}
}
