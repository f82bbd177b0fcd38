// Package capacity drives escalating load against a target service, finds its
// breaking point, and derives an operating capacity model with recommendations.
package capacity

import "math"

// Threshold fractions of discovered capacity. These are the model contract,
// not a tuning surface.
const (
	optimalFraction   = 0.7
	safetyFraction    = 0.2
	scaleUpFraction   = 0.6
	scaleDownFraction = 0.3
)

// scaled returns round(fraction x base) for sizing test runs.
func scaled(base int, fraction float64) int {
	if base <= 0 {
		return 0
	}
	return int(math.Round(fraction * float64(base)))
}

// flooredShare returns floor(fraction x base) for deriving model thresholds.
func flooredShare(base int, fraction float64) int {
	if base <= 0 {
		return 0
	}
	return int(math.Floor(fraction * float64(base)))
}

// BuildModel derives the operating capacity model from the escalation outcome
// and the measured resource usage. Pure function of its arguments: identical
// inputs always produce identical models. With zero discovered capacity every
// threshold stays zero and the model is marked not viable; it never scales
// zero into misleading non-zero values.
func BuildModel(esc EscalationOutcome, usage ResourceUsage) CapacityModel {
	model := CapacityModel{
		MaxConcurrentUsers:    esc.MaxConcurrentUsers,
		PeakRequestsPerSecond: esc.PeakRequestsPerSecond,
		BreakingPoint:         esc.BreakingPoint,
		MemoryPerUserMB:       usage.MemoryPerUserMB,
		CPUPerUserPct:         usage.CPUPerUserPct,
	}

	if esc.MaxConcurrentUsers <= 0 {
		return model
	}

	model.Viable = true
	model.OptimalConnections = flooredShare(esc.MaxConcurrentUsers, optimalFraction)
	model.SafetyMargin = flooredShare(esc.MaxConcurrentUsers, safetyFraction)
	model.ScaleUpThreshold = flooredShare(esc.MaxConcurrentUsers, scaleUpFraction)
	model.ScaleDownThreshold = flooredShare(esc.MaxConcurrentUsers, scaleDownFraction)

	// Tiny capacities floor both thresholds to the same value; the ordering
	// scaleDown < scaleUp <= max must hold for every viable model.
	if model.ScaleUpThreshold < 1 {
		model.ScaleUpThreshold = 1
	}
	if model.ScaleDownThreshold >= model.ScaleUpThreshold {
		model.ScaleDownThreshold = model.ScaleUpThreshold - 1
	}

	return model
}
