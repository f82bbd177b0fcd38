// internal/resource/static.go
package resource

import (
	"context"

	"github.com/FairForge/rampart/internal/capacity"
)

// StaticMonitor reports fixed per-user figures for targets that expose
// no stats endpoint. It never detects leaks.
type StaticMonitor struct {
	usage capacity.ResourceUsage
}

// NewStaticMonitor builds a monitor that always reports usage.
func NewStaticMonitor(usage capacity.ResourceUsage) *StaticMonitor {
	usage.MemoryLeak = false
	usage.MemoryGrowthPct = 0
	return &StaticMonitor{usage: usage}
}

// Begin is a no-op.
func (m *StaticMonitor) Begin(ctx context.Context) error { return nil }

// End returns the configured figures regardless of user count.
func (m *StaticMonitor) End(ctx context.Context, users int) (capacity.ResourceUsage, error) {
	return m.usage, nil
}
