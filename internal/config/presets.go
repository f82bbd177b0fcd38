package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FairForge/rampart/internal/capacity"
)

// presets are named load shapes for common situations. They replace
// the plan's escalation ladder and phase durations; everything else in
// the plan is left alone.
var presets = map[string]func(*capacity.Plan){
	// Quick sanity pass against a dev deployment.
	"light": func(p *capacity.Plan) {
		p.Escalation.Levels = []int{5, 10, 25}
		p.Escalation.StepSeconds = 15
		p.Escalation.SettleSeconds = 5
		p.Endurance.DurationSeconds = 120
		p.Spike.PhaseSeconds = 30
	},

	// The standard ladder.
	"medium": func(p *capacity.Plan) {
		p.Escalation = capacity.DefaultEscalationConfig()
		p.Endurance = capacity.DefaultEnduranceConfig()
		p.Spike = capacity.DefaultSpikeConfig()
	},

	// Production-scale services.
	"heavy": func(p *capacity.Plan) {
		p.Escalation.Levels = []int{50, 100, 200, 400, 800, 1600}
		p.Escalation.StepSeconds = 45
		p.Escalation.SettleSeconds = 10
		p.Endurance.DurationSeconds = 1200
	},

	// Push until something gives.
	"stress": func(p *capacity.Plan) {
		p.Escalation.Levels = []int{100, 250, 500, 1000, 2000, 5000}
		p.Escalation.StepSeconds = 60
		p.Escalation.SettleSeconds = 10
		p.Endurance.DurationSeconds = 1800
	},

	// Short ladder, violent burst.
	"spike": func(p *capacity.Plan) {
		p.Escalation.Levels = []int{10, 50, 100}
		p.Escalation.StepSeconds = 20
		p.Escalation.SettleSeconds = 5
		p.Spike.SpikeFraction = 2.0
		p.Spike.PauseSeconds = 5
	},
}

// ApplyPreset overlays a named preset onto the plan.
func ApplyPreset(plan *capacity.Plan, name string) error {
	apply, ok := presets[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unknown preset %q (have %s)", name, strings.Join(PresetNames(), ", "))
	}
	apply(plan)
	return nil
}

// PresetNames lists the available presets in stable order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
