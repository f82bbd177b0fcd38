package capacity

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// runnerFunc adapts a closure to the Runner interface.
type runnerFunc func(ctx context.Context, target Target, connections, durationSeconds int) (RequestResult, error)

func (f runnerFunc) Execute(ctx context.Context, target Target, connections, durationSeconds int) (RequestResult, error) {
	return f(ctx, target, connections, durationSeconds)
}

type runnerCall struct {
	url         string
	connections int
	seconds     int
}

type scriptedCall struct {
	connections int
	result      RequestResult
	err         error
}

// scriptRunner serves canned results in call order, failing the test when the
// engine asks for a different connection count than the script expects.
type scriptRunner struct {
	t      *testing.T
	script []scriptedCall
	calls  []runnerCall
	next   int
}

func (s *scriptRunner) Execute(_ context.Context, target Target, connections, durationSeconds int) (RequestResult, error) {
	s.calls = append(s.calls, runnerCall{url: target.URL, connections: connections, seconds: durationSeconds})
	if s.next >= len(s.script) {
		s.t.Fatalf("unexpected call %d with %d connections", s.next, connections)
	}
	call := s.script[s.next]
	s.next++
	if call.connections != connections {
		s.t.Fatalf("call %d: got %d connections, want %d", s.next-1, connections, call.connections)
	}
	return call.result, call.err
}

// fakeSleeper records requested delays without waiting.
type fakeSleeper struct {
	slept []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return ctx.Err()
}

// fakeRecorder captures every observation.
type fakeRecorder struct {
	steps      []EscalationStepResult
	breaking   []BreakingPoint
	elasticity []ElasticityScore
	models     []CapacityModel
	runs       []string
}

func (r *fakeRecorder) RecordStep(s EscalationStepResult) { r.steps = append(r.steps, s) }

func (r *fakeRecorder) RecordBreakingPoint(bp BreakingPoint) { r.breaking = append(r.breaking, bp) }

func (r *fakeRecorder) RecordElasticity(s ElasticityScore) { r.elasticity = append(r.elasticity, s) }

func (r *fakeRecorder) RecordModel(m CapacityModel) { r.models = append(r.models, m) }

func (r *fakeRecorder) RecordRun(status string, _ float64) { r.runs = append(r.runs, status) }

// fakeMonitor returns a fixed usage and records the window it was asked about.
type fakeMonitor struct {
	usage    ResourceUsage
	beginErr error
	endErr   error
	begun    bool
	ended    bool
	endUsers int
}

func (m *fakeMonitor) Begin(context.Context) error {
	m.begun = true
	return m.beginErr
}

func (m *fakeMonitor) End(_ context.Context, users int) (ResourceUsage, error) {
	m.ended = true
	m.endUsers = users
	if m.endErr != nil {
		return ResourceUsage{}, m.endErr
	}
	return m.usage, nil
}

// passing builds a result that satisfies the success criterion.
func passing(rps float64) RequestResult {
	return RequestResult{
		RequestsPerSecond:     rps,
		LatencyAvgMs:          40,
		LatencyP95Ms:          120,
		LatencyP99Ms:          250,
		ThroughputBytesPerSec: rps * 2048,
	}
}

func errScript(connections int) scriptedCall {
	return scriptedCall{connections: connections, err: fmt.Errorf("connection refused")}
}
