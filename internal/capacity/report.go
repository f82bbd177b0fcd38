// Package capacity drives escalating load against a target service, finds its
// breaking point, and derives an operating capacity model with recommendations.
package capacity

import (
	"fmt"
	"strings"
	"time"
)

// Report is the single structured object a run emits. It serializes to JSON
// as-is; Summary renders the same fields as plain text.
type Report struct {
	ID              string                 `json:"id"`
	GeneratedAt     time.Time              `json:"generatedAt"`
	Target          string                 `json:"target"`
	Model           CapacityModel          `json:"capacityModel"`
	Escalation      []EscalationStepResult `json:"escalationResults"`
	Endurance       *EnduranceResult       `json:"enduranceResult"`
	Spike           *SpikeResult           `json:"spikeResult"`
	Recommendations []Recommendation       `json:"recommendations"`
	DurationSeconds float64                `json:"durationSeconds"`
}

// categoryOrder fixes the rendering order of recommendation groups.
var categoryOrder = []RecommendationCategory{
	CategoryInfrastructure,
	CategoryApplication,
	CategoryScaling,
	CategoryMonitoring,
}

// Summary renders the report as plain text. It reads only the report fields;
// no numbers are computed here.
func (r *Report) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Capacity Report %s ===\n", r.ID)
	fmt.Fprintf(&b, "Target: %s\n", r.Target)
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Run duration: %.1fs\n\n", r.DurationSeconds)

	b.WriteString("--- Capacity Model ---\n")
	if !r.Model.Viable {
		b.WriteString("No viable capacity found: no concurrency level passed.\n")
	}
	fmt.Fprintf(&b, "Max concurrent users: %d\n", r.Model.MaxConcurrentUsers)
	fmt.Fprintf(&b, "Peak throughput: %.1f req/s\n", r.Model.PeakRequestsPerSecond)
	fmt.Fprintf(&b, "Optimal connections: %d\n", r.Model.OptimalConnections)
	fmt.Fprintf(&b, "Safety margin: %d\n", r.Model.SafetyMargin)
	fmt.Fprintf(&b, "Scale up above: %d\n", r.Model.ScaleUpThreshold)
	fmt.Fprintf(&b, "Scale down below: %d\n", r.Model.ScaleDownThreshold)
	if r.Model.MemoryPerUserMB > 0 || r.Model.CPUPerUserPct > 0 {
		fmt.Fprintf(&b, "Per user: %.2f MB memory, %.2f%% CPU\n", r.Model.MemoryPerUserMB, r.Model.CPUPerUserPct)
	}

	if bp := r.Model.BreakingPoint; bp != nil {
		b.WriteString("\n--- Breaking Point ---\n")
		fmt.Fprintf(&b, "Failed at %d connections (%s)\n", bp.Connections, bp.Reason)
		fmt.Fprintf(&b, "Errors: %d, p95: %.0fms, rps: %.1f\n",
			bp.Detail.Errors, bp.Detail.LatencyP95Ms, bp.Detail.RequestsPerSecond)
	}

	if len(r.Escalation) > 0 {
		b.WriteString("\n--- Escalation Steps ---\n")
		for _, step := range r.Escalation {
			status := "pass"
			if !step.Successful {
				status = "fail"
			}
			fmt.Fprintf(&b, "%5d connections: %8.1f req/s, p95 %6.0fms, errors %d [%s]\n",
				step.Connections, step.RequestsPerSecond, step.LatencyP95Ms, step.Errors, status)
		}
	}

	if r.Endurance != nil {
		b.WriteString("\n--- Endurance ---\n")
		fmt.Fprintf(&b, "%d connections for %ds: %.1f req/s, avg %.0fms, p95 %.0fms\n",
			r.Endurance.Connections, r.Endurance.DurationSeconds,
			r.Endurance.Result.RequestsPerSecond, r.Endurance.Result.LatencyAvgMs, r.Endurance.Result.LatencyP95Ms)
		fmt.Fprintf(&b, "Performance degradation: %t\n", r.Endurance.PerformanceDegradation)
		fmt.Fprintf(&b, "Memory leak: %t (growth %.1f%%)\n", r.Endurance.MemoryLeak, r.Endurance.Resource.MemoryGrowthPct)
	}

	if r.Spike != nil {
		b.WriteString("\n--- Spike ---\n")
		fmt.Fprintf(&b, "Elasticity score: %d/100\n", r.Spike.Elasticity.Score)
		fmt.Fprintf(&b, "Normal:   %d connections, %.1f req/s, p95 %.0fms, errors %d\n",
			r.Spike.Normal.Connections, r.Spike.Normal.Result.RequestsPerSecond,
			r.Spike.Normal.Result.LatencyP95Ms, r.Spike.Normal.Result.Errors)
		fmt.Fprintf(&b, "Spike:    %d connections, %.1f req/s, p95 %.0fms, errors %d\n",
			r.Spike.Spike.Connections, r.Spike.Spike.Result.RequestsPerSecond,
			r.Spike.Spike.Result.LatencyP95Ms, r.Spike.Spike.Result.Errors)
		fmt.Fprintf(&b, "Recovery: %d connections, %.1f req/s, p95 %.0fms, errors %d\n",
			r.Spike.Recovery.Connections, r.Spike.Recovery.Result.RequestsPerSecond,
			r.Spike.Recovery.Result.LatencyP95Ms, r.Spike.Recovery.Result.Errors)
	}

	if len(r.Recommendations) > 0 {
		b.WriteString("\n--- Recommendations ---\n")
		for _, category := range categoryOrder {
			for _, rec := range r.Recommendations {
				if rec.Category == category {
					fmt.Fprintf(&b, "[%s] %s\n", rec.Category, rec.Message)
				}
			}
		}
	}

	return b.String()
}
