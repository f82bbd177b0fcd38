// internal/metrics/recorder_test.go
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/FairForge/rampart/internal/capacity"
)

func TestRecorder_RecordStep(t *testing.T) {
	rec := NewRecorder()

	initialPass := testutil.ToFloat64(stepsTotal.WithLabelValues("pass"))
	initialFail := testutil.ToFloat64(stepsTotal.WithLabelValues("fail"))

	rec.RecordStep(capacity.EscalationStepResult{
		Connections: 50,
		Successful:  true,
		RequestResult: capacity.RequestResult{
			RequestsPerSecond: 480,
			LatencyP95Ms:      120,
		},
	})
	rec.RecordStep(capacity.EscalationStepResult{
		Connections: 100,
		Successful:  false,
		RequestResult: capacity.RequestResult{
			RequestsPerSecond: 310,
			LatencyP95Ms:      2400,
			Errors:            5,
		},
	})

	assert.Equal(t, initialPass+1, testutil.ToFloat64(stepsTotal.WithLabelValues("pass")))
	assert.Equal(t, initialFail+1, testutil.ToFloat64(stepsTotal.WithLabelValues("fail")))
	assert.Equal(t, 480.0, testutil.ToFloat64(stepRPS.WithLabelValues("50")))
	assert.Equal(t, 2400.0, testutil.ToFloat64(stepLatencyP95.WithLabelValues("100")))
	assert.Equal(t, 5.0, testutil.ToFloat64(stepErrors.WithLabelValues("100")))
}

func TestRecorder_RecordBreakingPoint(t *testing.T) {
	rec := NewRecorder()

	initial := testutil.ToFloat64(breakingPointsTotal.WithLabelValues("ERRORS"))

	rec.RecordBreakingPoint(capacity.BreakingPoint{
		Connections: 100,
		Reason:      capacity.ReasonErrors,
	})

	assert.Equal(t, initial+1, testutil.ToFloat64(breakingPointsTotal.WithLabelValues("ERRORS")))
	assert.Equal(t, 100.0, testutil.ToFloat64(breakingPointConnections))
}

func TestRecorder_RecordElasticity(t *testing.T) {
	rec := NewRecorder()

	rec.RecordElasticity(capacity.ElasticityScore{Score: 75})

	assert.Equal(t, 75.0, testutil.ToFloat64(elasticityScore))
}

func TestRecorder_RecordModel(t *testing.T) {
	rec := NewRecorder()

	rec.RecordModel(capacity.CapacityModel{
		MaxConcurrentUsers:    50,
		PeakRequestsPerSecond: 480,
		OptimalConnections:    35,
		ScaleUpThreshold:      30,
		ScaleDownThreshold:    15,
	})

	assert.Equal(t, 50.0, testutil.ToFloat64(capacityMaxUsers))
	assert.Equal(t, 480.0, testutil.ToFloat64(capacityPeakRPS))
	assert.Equal(t, 35.0, testutil.ToFloat64(capacityOptimal))
	assert.Equal(t, 30.0, testutil.ToFloat64(capacityScaleUp))
	assert.Equal(t, 15.0, testutil.ToFloat64(capacityScaleDown))
}

func TestRecorder_RecordRun(t *testing.T) {
	rec := NewRecorder()

	initialCompleted := testutil.ToFloat64(runsTotal.WithLabelValues("completed"))
	initialFailed := testutil.ToFloat64(runsTotal.WithLabelValues("failed"))

	rec.RecordRun("completed", 812.4)
	rec.RecordRun("failed", 3.2)

	assert.Equal(t, initialCompleted+1, testutil.ToFloat64(runsTotal.WithLabelValues("completed")))
	assert.Equal(t, initialFailed+1, testutil.ToFloat64(runsTotal.WithLabelValues("failed")))
}

func TestRecorder_ImplementsRecorder(t *testing.T) {
	var _ capacity.Recorder = NewRecorder()
}
