// Package capacity drives escalating load against a target service, finds its
// breaking point, and derives an operating capacity model with recommendations.
package capacity

import "context"

// Runner executes one load test and reports what it measured. The engine never
// generates traffic itself. A returned error means the runner could not run
// the test at all (transport or process failure) and is fatal for the run;
// application-level failures belong inside the RequestResult.
type Runner interface {
	Execute(ctx context.Context, target Target, connections, durationSeconds int) (RequestResult, error)
}

// ResourceMonitor observes the target's resource consumption across a test
// window. Begin starts the sampling window, End closes it and reports usage
// for the given user count. Monitors own their sampling concurrency; the
// engine only brackets the window. Optional: a nil monitor or a monitor error
// falls back to configured defaults and the run proceeds.
type ResourceMonitor interface {
	Begin(ctx context.Context) error
	End(ctx context.Context, users int) (ResourceUsage, error)
}

// Recorder receives run observations for metrics export. Implementations must
// be cheap; calls happen inline between test phases.
type Recorder interface {
	RecordStep(step EscalationStepResult)
	RecordBreakingPoint(bp BreakingPoint)
	RecordElasticity(score ElasticityScore)
	RecordModel(model CapacityModel)
	RecordRun(status string, durationSeconds float64)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

func (NopRecorder) RecordStep(EscalationStepResult) {}

func (NopRecorder) RecordBreakingPoint(BreakingPoint) {}

func (NopRecorder) RecordElasticity(ElasticityScore) {}

func (NopRecorder) RecordModel(CapacityModel) {}

func (NopRecorder) RecordRun(string, float64) {}
