// Package capacity drives escalating load against a target service, finds its
// breaking point, and derives an operating capacity model with recommendations.
package capacity

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// degradationTailRatio flags sustained-load degradation: a p95 more than this
// many times the mean latency is treated as a symptom of degradation.
const degradationTailRatio = 2.0

// EnduranceConfig sizes the sustained-load run. The connection count is a
// fraction of the capacity discovered during escalation.
type EnduranceConfig struct {
	DurationSeconds  int     `json:"durationSeconds" yaml:"duration_seconds"`
	CapacityFraction float64 `json:"capacityFraction" yaml:"capacity_fraction"`
}

// DefaultEnduranceConfig returns the standard ten-minute soak at 70% of
// discovered capacity.
func DefaultEnduranceConfig() EnduranceConfig {
	return EnduranceConfig{
		DurationSeconds:  600,
		CapacityFraction: 0.7,
	}
}

// Validate rejects unusable endurance settings.
func (c EnduranceConfig) Validate() error {
	if c.DurationSeconds <= 0 {
		return fmt.Errorf("endurance duration must be positive, got %d", c.DurationSeconds)
	}
	if c.CapacityFraction <= 0 {
		return fmt.Errorf("endurance capacity fraction must be positive, got %g", c.CapacityFraction)
	}
	return nil
}

// EnduranceResult is what one sustained run showed. Advisory only: it feeds
// recommendations and never changes the discovered capacity.
type EnduranceResult struct {
	TestProfile
	Result                 RequestResult `json:"result"`
	PerformanceDegradation bool          `json:"performanceDegradation"`
	MemoryLeak             bool          `json:"memoryLeak"`
	Resource               ResourceUsage `json:"resource"`
}

// EnduranceAnalyzer runs one long test at a fraction of discovered capacity
// and collects degradation and resource-growth signals.
type EnduranceAnalyzer struct {
	cfg      EnduranceConfig
	runner   Runner
	monitor  ResourceMonitor
	fallback ResourceUsage
	logger   *zap.Logger
}

// NewEnduranceAnalyzer creates an endurance analyzer. The monitor may be nil;
// fallback supplies the resource figures used when the monitor is absent or
// fails.
func NewEnduranceAnalyzer(cfg EnduranceConfig, runner Runner, monitor ResourceMonitor, fallback ResourceUsage, logger *zap.Logger) *EnduranceAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EnduranceAnalyzer{
		cfg:      cfg,
		runner:   runner,
		monitor:  monitor,
		fallback: fallback,
		logger:   logger,
	}
}

// Run sustains load at round(fraction x maxUsers) connections for the
// configured duration. Returns nil when maxUsers leaves nothing to sustain.
// Monitor failures are advisory; only a runner error is fatal.
func (a *EnduranceAnalyzer) Run(ctx context.Context, target Target, maxUsers int) (*EnduranceResult, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	connections := scaled(maxUsers, a.cfg.CapacityFraction)
	if connections <= 0 {
		return nil, nil
	}
	profile := TestProfile{Connections: connections, DurationSeconds: a.cfg.DurationSeconds}

	a.logger.Info("endurance run starting",
		zap.Int("connections", profile.Connections),
		zap.Int("duration_seconds", profile.DurationSeconds))

	sampling := false
	if a.monitor != nil {
		if err := a.monitor.Begin(ctx); err != nil {
			a.logger.Warn("resource monitor failed to start, using configured defaults", zap.Error(err))
		} else {
			sampling = true
		}
	}

	res, err := a.runner.Execute(ctx, target, profile.Connections, profile.DurationSeconds)
	if err != nil {
		if sampling {
			// Stop the monitor's sampling goroutine; the run is aborting anyway.
			_, _ = a.monitor.End(ctx, connections)
		}
		return nil, fmt.Errorf("sustained load at %d connections: %w", connections, err)
	}

	usage := a.fallback
	if sampling {
		u, err := a.monitor.End(ctx, connections)
		if err != nil {
			a.logger.Warn("resource monitor failed, using configured defaults", zap.Error(err))
		} else {
			usage = u
		}
	}

	degraded := res.LatencyP95Ms > degradationTailRatio*res.LatencyAvgMs

	if degraded || usage.MemoryLeak {
		a.logger.Warn("endurance signals detected",
			zap.Bool("performance_degradation", degraded),
			zap.Bool("memory_leak", usage.MemoryLeak),
			zap.Float64("memory_growth_pct", usage.MemoryGrowthPct))
	}

	return &EnduranceResult{
		TestProfile:            profile,
		Result:                 res,
		PerformanceDegradation: degraded,
		MemoryLeak:             usage.MemoryLeak,
		Resource:               usage,
	}, nil
}
