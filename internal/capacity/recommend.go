// Package capacity drives escalating load against a target service, finds its
// breaking point, and derives an operating capacity model with recommendations.
package capacity

import "fmt"

// Rule thresholds for the recommendation table.
const (
	lowCapacityUsers    = 100 // below this, the target needs more resources
	poorElasticityScore = 70  // below this, spikes are not absorbed cleanly
)

// Recommend maps the capacity model and analyzer findings onto a deterministic
// rule table. Output order is the table order, grouped by category:
// infrastructure, application, scaling, monitoring. Messages are templates
// with the computed numbers interpolated; nothing is generated.
func Recommend(model CapacityModel, endurance *EnduranceResult, spike *SpikeResult) []Recommendation {
	recs := make([]Recommendation, 0, 8)

	if model.MaxConcurrentUsers < lowCapacityUsers {
		recs = append(recs, Recommendation{
			Category: CategoryInfrastructure,
			Message: fmt.Sprintf("Capacity tops out at %d concurrent users. Upgrade instance resources or add replicas before taking production traffic.",
				model.MaxConcurrentUsers),
		})
	}

	if bp := model.BreakingPoint; bp != nil {
		switch bp.Reason {
		case ReasonErrors:
			recs = append(recs, Recommendation{
				Category: CategoryInfrastructure,
				Message: fmt.Sprintf("Service returned %d errors at %d connections. Review error handling and connection and memory allocation under load.",
					bp.Detail.Errors, bp.Connections),
			})
		case ReasonHighLatency:
			recs = append(recs, Recommendation{
				Category: CategoryInfrastructure,
				Message: fmt.Sprintf("P95 latency reached %.0fms at %d connections. Optimize slow queries and add caching on hot paths.",
					bp.Detail.LatencyP95Ms, bp.Connections),
			})
		}
	}

	if endurance != nil && endurance.MemoryLeak {
		recs = append(recs, Recommendation{
			Category: CategoryApplication,
			Message: fmt.Sprintf("Memory grew %.1f%% during the endurance window. Investigate object retention and memory management.",
				endurance.Resource.MemoryGrowthPct),
		})
	}

	if endurance != nil && endurance.PerformanceDegradation {
		recs = append(recs, Recommendation{
			Category: CategoryApplication,
			Message: fmt.Sprintf("P95 latency (%.0fms) ran more than twice the average (%.0fms) under sustained load. Investigate resource cleanup and connection pooling.",
				endurance.Result.LatencyP95Ms, endurance.Result.LatencyAvgMs),
		})
	}

	if spike != nil && spike.Elasticity.Score < poorElasticityScore {
		recs = append(recs, Recommendation{
			Category: CategoryScaling,
			Message: fmt.Sprintf("Elasticity score %d/100: throughput did not recover cleanly after the spike. Scale out ahead of anticipated traffic bursts.",
				spike.Elasticity.Score),
		})
	}

	recs = append(recs, Recommendation{
		Category: CategoryScaling,
		Message: fmt.Sprintf("Scale up above %d concurrent connections and back down below %d. Keep a safety margin of %d connections.",
			model.ScaleUpThreshold, model.ScaleDownThreshold, model.SafetyMargin),
	})

	recs = append(recs, Recommendation{
		Category: CategoryMonitoring,
		Message: fmt.Sprintf("Alert when p95 latency exceeds %dms, error rate exceeds 1%%, memory grows steadily, or concurrent connections exceed %d.",
			LatencyP95LimitMs, model.ScaleUpThreshold),
	})

	return recs
}
