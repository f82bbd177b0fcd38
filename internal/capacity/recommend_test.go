package capacity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findByCategory(recs []Recommendation, category RecommendationCategory) []Recommendation {
	var out []Recommendation
	for _, rec := range recs {
		if rec.Category == category {
			out = append(out, rec)
		}
	}
	return out
}

func TestRecommendLowCapacity(t *testing.T) {
	model := BuildModel(EscalationOutcome{MaxConcurrentUsers: 50}, ResourceUsage{})

	recs := Recommend(model, nil, nil)

	infra := findByCategory(recs, CategoryInfrastructure)
	require.Len(t, infra, 1)
	assert.Contains(t, infra[0].Message, "50 concurrent users")
}

func TestRecommendHighCapacitySkipsUpgrade(t *testing.T) {
	model := BuildModel(EscalationOutcome{MaxConcurrentUsers: 300}, ResourceUsage{})

	recs := Recommend(model, nil, nil)

	assert.Empty(t, findByCategory(recs, CategoryInfrastructure))
}

func TestRecommendBreakingPointReasons(t *testing.T) {
	t.Run("errors", func(t *testing.T) {
		detail := EscalationStepResult{Connections: 100}
		detail.Errors = 5
		model := BuildModel(EscalationOutcome{
			MaxConcurrentUsers: 150,
			BreakingPoint:      &BreakingPoint{Connections: 100, Reason: ReasonErrors, Detail: detail},
		}, ResourceUsage{})

		recs := Recommend(model, nil, nil)
		infra := findByCategory(recs, CategoryInfrastructure)
		require.Len(t, infra, 1)
		assert.Contains(t, infra[0].Message, "5 errors")
		assert.Contains(t, infra[0].Message, "100 connections")
	})

	t.Run("high latency", func(t *testing.T) {
		detail := EscalationStepResult{Connections: 200}
		detail.LatencyP95Ms = 2400
		model := BuildModel(EscalationOutcome{
			MaxConcurrentUsers: 150,
			BreakingPoint:      &BreakingPoint{Connections: 200, Reason: ReasonHighLatency, Detail: detail},
		}, ResourceUsage{})

		recs := Recommend(model, nil, nil)
		infra := findByCategory(recs, CategoryInfrastructure)
		require.Len(t, infra, 1)
		assert.Contains(t, infra[0].Message, "2400ms")
		assert.Contains(t, infra[0].Message, "caching")
	})
}

func TestRecommendApplicationSignals(t *testing.T) {
	model := BuildModel(EscalationOutcome{MaxConcurrentUsers: 200}, ResourceUsage{})

	endurance := &EnduranceResult{
		Result:                 RequestResult{LatencyAvgMs: 80, LatencyP95Ms: 400},
		PerformanceDegradation: true,
		MemoryLeak:             true,
		Resource:               ResourceUsage{MemoryLeak: true, MemoryGrowthPct: 31.2},
	}

	recs := Recommend(model, endurance, nil)
	app := findByCategory(recs, CategoryApplication)
	require.Len(t, app, 2)
	assert.Contains(t, app[0].Message, "31.2%")
	assert.Contains(t, app[1].Message, "connection pooling")
}

func TestRecommendAlwaysEmitsScalingAndMonitoring(t *testing.T) {
	model := BuildModel(EscalationOutcome{MaxConcurrentUsers: 500}, ResourceUsage{})

	recs := Recommend(model, nil, nil)

	scaling := findByCategory(recs, CategoryScaling)
	require.Len(t, scaling, 1)
	assert.Contains(t, scaling[0].Message, "300") // scale up threshold
	assert.Contains(t, scaling[0].Message, "150") // scale down threshold
	assert.Contains(t, scaling[0].Message, "100") // safety margin

	monitoring := findByCategory(recs, CategoryMonitoring)
	require.Len(t, monitoring, 1)
	assert.Contains(t, monitoring[0].Message, "2000ms")
	assert.Contains(t, monitoring[0].Message, "1%")
	assert.Contains(t, monitoring[0].Message, "300")
}

func TestRecommendPoorElasticity(t *testing.T) {
	model := BuildModel(EscalationOutcome{MaxConcurrentUsers: 400}, ResourceUsage{})

	spike := &SpikeResult{Elasticity: ElasticityScore{Score: 45}}
	recs := Recommend(model, nil, spike)

	scaling := findByCategory(recs, CategoryScaling)
	require.Len(t, scaling, 2)
	assert.Contains(t, scaling[0].Message, "45/100")

	// A clean spike run adds nothing.
	clean := &SpikeResult{Elasticity: ElasticityScore{Score: 100}}
	recs = Recommend(model, nil, clean)
	assert.Len(t, findByCategory(recs, CategoryScaling), 1)
}

func TestRecommendNoViableCapacity(t *testing.T) {
	model := BuildModel(EscalationOutcome{}, ResourceUsage{})

	recs := Recommend(model, nil, nil)

	infra := findByCategory(recs, CategoryInfrastructure)
	require.NotEmpty(t, infra)
	assert.Contains(t, infra[0].Message, "0 concurrent users")

	// Scaling and monitoring rows still emit, with zeroed numbers.
	assert.NotEmpty(t, findByCategory(recs, CategoryScaling))
	assert.NotEmpty(t, findByCategory(recs, CategoryMonitoring))
}

func TestRecommendCategoryOrder(t *testing.T) {
	detail := EscalationStepResult{Connections: 75}
	detail.Errors = 2
	model := BuildModel(EscalationOutcome{
		MaxConcurrentUsers: 50,
		BreakingPoint:      &BreakingPoint{Connections: 75, Reason: ReasonErrors, Detail: detail},
	}, ResourceUsage{})
	endurance := &EnduranceResult{MemoryLeak: true, Resource: ResourceUsage{MemoryGrowthPct: 12}}

	recs := Recommend(model, endurance, nil)

	rank := map[RecommendationCategory]int{
		CategoryInfrastructure: 0,
		CategoryApplication:    1,
		CategoryScaling:        2,
		CategoryMonitoring:     3,
	}
	for i := 1; i < len(recs); i++ {
		assert.LessOrEqual(t, rank[recs[i-1].Category], rank[recs[i].Category],
			"recommendations out of category order: %s before %s", recs[i-1].Category, recs[i].Category)
	}
}

func TestRecommendMessagesAreTemplated(t *testing.T) {
	model := BuildModel(EscalationOutcome{MaxConcurrentUsers: 50}, ResourceUsage{})

	first := Recommend(model, nil, nil)
	second := Recommend(model, nil, nil)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
		assert.False(t, strings.Contains(first[i].Message, "%!"), "broken template in %q", first[i].Message)
	}
}
