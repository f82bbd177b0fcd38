// internal/metrics/recorder.go
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/FairForge/rampart/internal/capacity"
)

var (
	// Run outcomes
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rampart_runs_total",
			Help: "Capacity runs by final status",
		},
		[]string{"status"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rampart_run_duration_seconds",
			Help:    "Wall time of a complete capacity run",
			Buckets: prometheus.ExponentialBuckets(30, 2, 8),
		},
	)

	// Escalation steps
	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rampart_escalation_steps_total",
			Help: "Escalation steps by outcome",
		},
		[]string{"outcome"},
	)

	stepRPS = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rampart_step_requests_per_second",
			Help: "Throughput measured at each concurrency level",
		},
		[]string{"connections"},
	)

	stepLatencyP95 = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rampart_step_latency_p95_ms",
			Help: "P95 latency measured at each concurrency level",
		},
		[]string{"connections"},
	)

	stepErrors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rampart_step_errors",
			Help: "Errors observed at each concurrency level",
		},
		[]string{"connections"},
	)

	// Breaking point
	breakingPointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rampart_breaking_points_total",
			Help: "Breaking points by reason",
		},
		[]string{"reason"},
	)

	breakingPointConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rampart_breaking_point_connections",
			Help: "Concurrency level of the most recent breaking point",
		},
	)

	// Derived capacity figures
	elasticityScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rampart_elasticity_score",
			Help: "Spike elasticity score out of 100",
		},
	)

	capacityMaxUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rampart_capacity_max_users",
			Help: "Highest concurrency level the target sustained",
		},
	)

	capacityPeakRPS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rampart_capacity_peak_rps",
			Help: "Peak throughput across passing levels",
		},
	)

	capacityOptimal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rampart_capacity_optimal_connections",
			Help: "Recommended operating concurrency",
		},
	)

	capacityScaleUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rampart_capacity_scale_up_threshold",
			Help: "Concurrency above which to add instances",
		},
	)

	capacityScaleDown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rampart_capacity_scale_down_threshold",
			Help: "Concurrency below which to remove instances",
		},
	)
)

// Recorder publishes run progress to Prometheus.
type Recorder struct{}

// NewRecorder creates a Prometheus-backed run recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordStep publishes the figures for one escalation level.
func (r *Recorder) RecordStep(step capacity.EscalationStepResult) {
	outcome := "pass"
	if !step.Successful {
		outcome = "fail"
	}
	stepsTotal.WithLabelValues(outcome).Inc()

	conns := strconv.Itoa(step.Connections)
	stepRPS.WithLabelValues(conns).Set(step.RequestsPerSecond)
	stepLatencyP95.WithLabelValues(conns).Set(step.LatencyP95Ms)
	stepErrors.WithLabelValues(conns).Set(float64(step.Errors))
}

// RecordBreakingPoint publishes where and why the target broke.
func (r *Recorder) RecordBreakingPoint(bp capacity.BreakingPoint) {
	breakingPointsTotal.WithLabelValues(string(bp.Reason)).Inc()
	breakingPointConnections.Set(float64(bp.Connections))
}

// RecordElasticity publishes the spike elasticity score.
func (r *Recorder) RecordElasticity(score capacity.ElasticityScore) {
	elasticityScore.Set(float64(score.Score))
}

// RecordModel publishes the derived capacity figures.
func (r *Recorder) RecordModel(model capacity.CapacityModel) {
	capacityMaxUsers.Set(float64(model.MaxConcurrentUsers))
	capacityPeakRPS.Set(model.PeakRequestsPerSecond)
	capacityOptimal.Set(float64(model.OptimalConnections))
	capacityScaleUp.Set(float64(model.ScaleUpThreshold))
	capacityScaleDown.Set(float64(model.ScaleDownThreshold))
}

// RecordRun publishes the final status and duration of a run.
func (r *Recorder) RecordRun(status string, durationSeconds float64) {
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(durationSeconds)
}
