package capacity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSpikeRunsThreePhases(t *testing.T) {
	cfg := SpikeConfig{PhaseSeconds: 60, PauseSeconds: 10, NormalFraction: 0.5, SpikeFraction: 1.5}

	runner := &scriptRunner{t: t, script: []scriptedCall{
		{connections: 25, result: passing(250)},
		{connections: 75, result: passing(700)},
		{connections: 25, result: passing(245)},
	}}
	sleeper := &fakeSleeper{}

	analyzer := NewSpikeAnalyzer(cfg, runner, sleeper, zap.NewNop())
	res, err := analyzer.Run(context.Background(), Target{URL: "http://api.test/v1/generate"}, 50)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 25, res.Normal.Connections)
	assert.Equal(t, 75, res.Spike.Connections)
	assert.Equal(t, 25, res.Recovery.Connections)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, sleeper.slept)

	for _, call := range runner.calls {
		assert.Equal(t, 60, call.seconds)
	}
}

func TestSpikePerfectElasticity(t *testing.T) {
	cfg := SpikeConfig{PhaseSeconds: 30, PauseSeconds: 10, NormalFraction: 0.5, SpikeFraction: 1.5}

	// No extra errors, recovery within 5% of normal, spike p95 exactly twice
	// normal: no deduction fires.
	normal := RequestResult{RequestsPerSecond: 200, LatencyAvgMs: 50, LatencyP95Ms: 100}
	spike := RequestResult{RequestsPerSecond: 350, LatencyAvgMs: 90, LatencyP95Ms: 200}
	recovery := RequestResult{RequestsPerSecond: 192, LatencyAvgMs: 52, LatencyP95Ms: 104}

	runner := &scriptRunner{t: t, script: []scriptedCall{
		{connections: 25, result: normal},
		{connections: 75, result: spike},
		{connections: 25, result: recovery},
	}}

	analyzer := NewSpikeAnalyzer(cfg, runner, &fakeSleeper{}, zap.NewNop())
	res, err := analyzer.Run(context.Background(), Target{URL: "http://api.test"}, 50)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 100, res.Elasticity.Score)
	assert.InDelta(t, 200.0, res.Elasticity.Breakdown.NormalRps, 0.001)
	assert.InDelta(t, 350.0, res.Elasticity.Breakdown.SpikeRps, 0.001)
	assert.InDelta(t, 192.0, res.Elasticity.Breakdown.RecoveryRps, 0.001)
	assert.InDelta(t, 8.0, res.Elasticity.Breakdown.RecoveryDeltaRps, 0.001)
	assert.Equal(t, 0, res.Elasticity.Breakdown.SpikeErrors)
}

func TestScoreElasticityDeductions(t *testing.T) {
	base := func() (RequestResult, RequestResult, RequestResult) {
		normal := RequestResult{RequestsPerSecond: 200, LatencyAvgMs: 50, LatencyP95Ms: 100}
		spike := RequestResult{RequestsPerSecond: 350, LatencyAvgMs: 90, LatencyP95Ms: 250}
		recovery := RequestResult{RequestsPerSecond: 198, LatencyAvgMs: 52, LatencyP95Ms: 105}
		return normal, spike, recovery
	}

	t.Run("spike errors deduct 30", func(t *testing.T) {
		normal, spike, recovery := base()
		spike.Errors = 3
		score := scoreElasticity(normal, spike, recovery)
		assert.Equal(t, 70, score.Score)
		assert.Equal(t, 3, score.Breakdown.SpikeErrors)
	})

	t.Run("recovery drift deducts 20", func(t *testing.T) {
		normal, spike, recovery := base()
		recovery.RequestsPerSecond = 150 // 25% below normal
		score := scoreElasticity(normal, spike, recovery)
		assert.Equal(t, 80, score.Score)
		assert.InDelta(t, 50.0, score.Breakdown.RecoveryDeltaRps, 0.001)
	})

	t.Run("drift above normal also deducts", func(t *testing.T) {
		normal, spike, recovery := base()
		recovery.RequestsPerSecond = 245 // 22.5% above normal
		score := scoreElasticity(normal, spike, recovery)
		assert.Equal(t, 80, score.Score)
	})

	t.Run("slow spike deducts 25", func(t *testing.T) {
		normal, spike, recovery := base()
		spike.LatencyP95Ms = 301 // just past 3x normal
		score := scoreElasticity(normal, spike, recovery)
		assert.Equal(t, 75, score.Score)
	})

	t.Run("spike p95 exactly 3x does not deduct", func(t *testing.T) {
		normal, spike, recovery := base()
		spike.LatencyP95Ms = 300
		score := scoreElasticity(normal, spike, recovery)
		assert.Equal(t, 100, score.Score)
	})

	t.Run("all deductions stack to 25", func(t *testing.T) {
		normal, spike, recovery := base()
		spike.Errors = 10
		spike.LatencyP95Ms = 900
		recovery.RequestsPerSecond = 100
		score := scoreElasticity(normal, spike, recovery)
		assert.Equal(t, 25, score.Score)
	})

	t.Run("score stays within bounds", func(t *testing.T) {
		normal, spike, recovery := base()
		spike.Errors = 1000
		spike.LatencyP95Ms = 100000
		recovery.RequestsPerSecond = 0
		score := scoreElasticity(normal, spike, recovery)
		assert.GreaterOrEqual(t, score.Score, 0)
		assert.LessOrEqual(t, score.Score, 100)
	})
}

func TestScoreElasticityMonotonicity(t *testing.T) {
	normal := RequestResult{RequestsPerSecond: 200, LatencyAvgMs: 50, LatencyP95Ms: 100}
	cleanSpike := RequestResult{RequestsPerSecond: 300, LatencyAvgMs: 70, LatencyP95Ms: 150}
	cleanRecovery := RequestResult{RequestsPerSecond: 200, LatencyAvgMs: 50, LatencyP95Ms: 100}

	clean := scoreElasticity(normal, cleanSpike, cleanRecovery).Score

	// Violating any single condition never raises the score.
	badErr := cleanSpike
	badErr.Errors = 1
	assert.LessOrEqual(t, scoreElasticity(normal, badErr, cleanRecovery).Score, clean)

	badLatency := cleanSpike
	badLatency.LatencyP95Ms = 500
	assert.LessOrEqual(t, scoreElasticity(normal, badLatency, cleanRecovery).Score, clean)

	badRecovery := cleanRecovery
	badRecovery.RequestsPerSecond = 120
	assert.LessOrEqual(t, scoreElasticity(normal, cleanSpike, badRecovery).Score, clean)
}

func TestSpikeRunnerErrorAborts(t *testing.T) {
	cfg := SpikeConfig{PhaseSeconds: 30, PauseSeconds: 10, NormalFraction: 0.5, SpikeFraction: 1.5}

	runner := &scriptRunner{t: t, script: []scriptedCall{
		{connections: 25, result: passing(200)},
		errScript(75),
	}}

	analyzer := NewSpikeAnalyzer(cfg, runner, &fakeSleeper{}, zap.NewNop())
	res, err := analyzer.Run(context.Background(), Target{URL: "http://api.test"}, 50)

	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "spike phase")
}

func TestSpikeSkipsWithoutCapacity(t *testing.T) {
	cfg := SpikeConfig{PhaseSeconds: 30, PauseSeconds: 10, NormalFraction: 0.5, SpikeFraction: 1.5}

	runner := runnerFunc(func(_ context.Context, _ Target, _, _ int) (RequestResult, error) {
		t.Fatal("runner must not be called when capacity is zero")
		return RequestResult{}, nil
	})

	analyzer := NewSpikeAnalyzer(cfg, runner, &fakeSleeper{}, zap.NewNop())
	res, err := analyzer.Run(context.Background(), Target{URL: "http://api.test"}, 0)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSpikeConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  SpikeConfig
		ok   bool
	}{
		{"defaults", DefaultSpikeConfig(), true},
		{"zero phase", SpikeConfig{PhaseSeconds: 0, PauseSeconds: 10, NormalFraction: 0.5, SpikeFraction: 1.5}, false},
		{"negative pause", SpikeConfig{PhaseSeconds: 30, PauseSeconds: -1, NormalFraction: 0.5, SpikeFraction: 1.5}, false},
		{"zero fraction", SpikeConfig{PhaseSeconds: 30, PauseSeconds: 10, NormalFraction: 0, SpikeFraction: 1.5}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
