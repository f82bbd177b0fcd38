// Package capacity drives escalating load against a target service, finds its
// breaking point, and derives an operating capacity model with recommendations.
package capacity

// Target describes one request shape to test. Request shapes (health path,
// generation path, authenticated paths) are supplied by the caller.
type Target struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method" yaml:"method"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`
}

// TestProfile sizes a single load test. Phase results embed it to record what
// they actually ran at.
type TestProfile struct {
	Connections     int `json:"connections"`
	DurationSeconds int `json:"durationSeconds"`
}

// RequestResult captures the outcome of one load test execution. Produced once
// per test, never mutated afterwards.
type RequestResult struct {
	RequestsPerSecond     float64 `json:"requestsPerSecond"`
	LatencyAvgMs          float64 `json:"latencyAvgMs"`
	LatencyP95Ms          float64 `json:"latencyP95Ms"`
	LatencyP99Ms          float64 `json:"latencyP99Ms"`
	Errors                int     `json:"errors"`
	Timeouts              int     `json:"timeouts"`
	ThroughputBytesPerSec float64 `json:"throughputBytesPerSec"`
}

// EscalationStepResult is the outcome of one concurrency level during
// escalation. Successful means zero errors and a p95 under the latency limit.
type EscalationStepResult struct {
	RequestResult
	Connections int  `json:"connections"`
	Successful  bool `json:"successful"`
}

// BreakingPointReason classifies why a level failed.
type BreakingPointReason string

const (
	ReasonErrors      BreakingPointReason = "ERRORS"
	ReasonHighLatency BreakingPointReason = "HIGH_LATENCY"
)

// BreakingPoint records the first concurrency level that failed the success
// criterion. Absent when every level passed.
type BreakingPoint struct {
	Connections int                  `json:"connections"`
	Reason      BreakingPointReason  `json:"reason"`
	Detail      EscalationStepResult `json:"detail"`
}

// CapacityModel is the derived set of operating thresholds for a target.
// Recomputed once per run and never mutated after the builder returns.
type CapacityModel struct {
	MaxConcurrentUsers    int            `json:"maxConcurrentUsers"`
	PeakRequestsPerSecond float64        `json:"peakRequestsPerSecond"`
	BreakingPoint         *BreakingPoint `json:"breakingPoint"`
	OptimalConnections    int            `json:"optimalConnections"`
	SafetyMargin          int            `json:"safetyMargin"`
	ScaleUpThreshold      int            `json:"scaleUpThreshold"`
	ScaleDownThreshold    int            `json:"scaleDownThreshold"`
	MemoryPerUserMB       float64        `json:"memoryPerUserMB"`
	CPUPerUserPct         float64        `json:"cpuPerUserPct"`
	Viable                bool           `json:"viable"`
}

// ElasticityBreakdown carries the raw numbers behind an elasticity score.
type ElasticityBreakdown struct {
	NormalRps        float64 `json:"normalRps"`
	SpikeRps         float64 `json:"spikeRps"`
	RecoveryRps      float64 `json:"recoveryRps"`
	SpikeErrors      int     `json:"spikeErrors"`
	RecoveryDeltaRps float64 `json:"recoveryDeltaRps"`
}

// ElasticityScore grades how well a target absorbed a traffic spike and
// returned to baseline. Always within [0,100].
type ElasticityScore struct {
	Score     int                 `json:"score"`
	Breakdown ElasticityBreakdown `json:"breakdown"`
}

// RecommendationCategory groups recommendations at output time.
type RecommendationCategory string

const (
	CategoryInfrastructure RecommendationCategory = "INFRASTRUCTURE"
	CategoryApplication    RecommendationCategory = "APPLICATION"
	CategoryScaling        RecommendationCategory = "SCALING"
	CategoryMonitoring     RecommendationCategory = "MONITORING"
)

// Recommendation is one human-actionable finding.
type Recommendation struct {
	Category RecommendationCategory `json:"category"`
	Message  string                 `json:"message"`
}

// ResourceUsage is what a resource monitor observed over a test window.
type ResourceUsage struct {
	MemoryLeak      bool    `json:"memoryLeak" yaml:"memory_leak"`
	MemoryGrowthPct float64 `json:"memoryGrowthPct" yaml:"memory_growth_pct"`
	MemoryPerUserMB float64 `json:"memoryPerUserMB" yaml:"memory_per_user_mb"`
	CPUPerUserPct   float64 `json:"cpuPerUserPct" yaml:"cpu_per_user_pct"`
}
