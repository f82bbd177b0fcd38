package resource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/rampart/internal/capacity"
)

const mb = 1024 * 1024

func statsServer(heap func(call int64) uint64, cpu float64) *httptest.Server {
	var calls atomic.Int64
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1) - 1
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"heapAllocBytes":%d,"cpuPercent":%g}`, heap(n), cpu)
	}))
}

func TestHTTPMonitorDetectsGrowingHeap(t *testing.T) {
	srv := statsServer(func(call int64) uint64 {
		return uint64(100*mb + call*20*mb)
	}, 40)
	defer srv.Close()

	m := NewHTTPMonitor(HTTPConfig{StatsURL: srv.URL}, srv.Client(), zap.NewNop())
	m.interval = 20 * time.Millisecond

	require.NoError(t, m.Begin(context.Background()))
	require.Eventually(t, func() bool { return len(m.Samples()) >= 4 }, 2*time.Second, 5*time.Millisecond)

	usage, err := m.End(context.Background(), 10)
	require.NoError(t, err)

	assert.True(t, usage.MemoryLeak, "steadily growing heap should read as a leak")
	assert.Greater(t, usage.MemoryGrowthPct, 10.0)
	assert.Greater(t, usage.MemoryPerUserMB, 0.0)
	assert.InDelta(t, 4.0, usage.CPUPerUserPct, 0.001)
	assert.GreaterOrEqual(t, len(m.Samples()), 2)
}

func TestHTTPMonitorFlatHeapIsNotALeak(t *testing.T) {
	srv := statsServer(func(int64) uint64 { return 100 * mb }, 50)
	defer srv.Close()

	m := NewHTTPMonitor(HTTPConfig{StatsURL: srv.URL}, srv.Client(), zap.NewNop())
	m.interval = 20 * time.Millisecond

	require.NoError(t, m.Begin(context.Background()))
	require.Eventually(t, func() bool { return len(m.Samples()) >= 2 }, 2*time.Second, 5*time.Millisecond)

	usage, err := m.End(context.Background(), 10)
	require.NoError(t, err)

	assert.False(t, usage.MemoryLeak)
	assert.InDelta(t, 0.0, usage.MemoryGrowthPct, 0.001)
	assert.InDelta(t, 10.0, usage.MemoryPerUserMB, 0.001)
	assert.InDelta(t, 5.0, usage.CPUPerUserPct, 0.001)
}

func TestHTTPMonitorReportsWhenEveryPollFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewHTTPMonitor(HTTPConfig{StatsURL: srv.URL}, srv.Client(), zap.NewNop())
	m.interval = 20 * time.Millisecond

	require.NoError(t, m.Begin(context.Background()))
	time.Sleep(60 * time.Millisecond)

	_, err := m.End(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no resource samples")
}

func TestHTTPMonitorLifecycle(t *testing.T) {
	srv := statsServer(func(int64) uint64 { return mb }, 1)
	defer srv.Close()

	m := NewHTTPMonitor(HTTPConfig{StatsURL: srv.URL}, srv.Client(), zap.NewNop())
	m.interval = 20 * time.Millisecond

	_, err := m.End(context.Background(), 1)
	assert.Error(t, err, "End before Begin must fail")

	require.NoError(t, m.Begin(context.Background()))
	assert.Error(t, m.Begin(context.Background()), "second Begin must fail while running")
	require.Eventually(t, func() bool { return len(m.Samples()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = m.End(context.Background(), 1)
	require.NoError(t, err)

	// The monitor is reusable once stopped.
	require.NoError(t, m.Begin(context.Background()))
	require.Eventually(t, func() bool { return len(m.Samples()) >= 1 }, 2*time.Second, 5*time.Millisecond)
	_, err = m.End(context.Background(), 1)
	require.NoError(t, err)
}

func TestHTTPConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     HTTPConfig
		wantErr bool
	}{
		{"valid", HTTPConfig{StatsURL: "http://api.test/stats", IntervalSeconds: 5}, false},
		{"missing url", HTTPConfig{}, true},
		{"bad scheme", HTTPConfig{StatsURL: "ftp://api.test/stats"}, true},
		{"negative interval", HTTPConfig{StatsURL: "http://api.test/stats", IntervalSeconds: -1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReduce(t *testing.T) {
	at := func(heapMB uint64, cpu float64) Sample {
		return Sample{Timestamp: time.Now(), HeapAllocBytes: heapMB * mb, CPUPercent: cpu}
	}

	t.Run("growing heap leaks", func(t *testing.T) {
		usage := reduce([]Sample{at(100, 10), at(110, 30), at(125, 20)}, 10)

		assert.True(t, usage.MemoryLeak)
		assert.InDelta(t, 25.0, usage.MemoryGrowthPct, 0.001)
		assert.InDelta(t, 12.5, usage.MemoryPerUserMB, 0.001)
		assert.InDelta(t, 3.0, usage.CPUPerUserPct, 0.001)
	})

	t.Run("round trip back to start is not a leak", func(t *testing.T) {
		usage := reduce([]Sample{at(100, 10), at(140, 10), at(100, 10)}, 10)

		assert.False(t, usage.MemoryLeak)
		assert.InDelta(t, 0.0, usage.MemoryGrowthPct, 0.001)
	})

	t.Run("small growth is noise", func(t *testing.T) {
		usage := reduce([]Sample{at(100, 10), at(102, 10), at(105, 10)}, 10)

		assert.False(t, usage.MemoryLeak)
		assert.InDelta(t, 5.0, usage.MemoryGrowthPct, 0.001)
	})

	t.Run("single sample", func(t *testing.T) {
		usage := reduce([]Sample{at(100, 10)}, 10)

		assert.False(t, usage.MemoryLeak)
		assert.InDelta(t, 0.0, usage.MemoryGrowthPct, 0.001)
		assert.InDelta(t, 10.0, usage.MemoryPerUserMB, 0.001)
	})

	t.Run("zero users yields no per-user figures", func(t *testing.T) {
		usage := reduce([]Sample{at(100, 10), at(200, 10)}, 0)

		assert.InDelta(t, 0.0, usage.MemoryPerUserMB, 0.001)
		assert.InDelta(t, 0.0, usage.CPUPerUserPct, 0.001)
	})
}

func TestHeapSlope(t *testing.T) {
	at := func(heap uint64) Sample { return Sample{HeapAllocBytes: heap} }

	assert.Greater(t, heapSlope([]Sample{at(10), at(20), at(30)}), 0.0)
	assert.Less(t, heapSlope([]Sample{at(30), at(20), at(10)}), 0.0)
	assert.InDelta(t, 0.0, heapSlope([]Sample{at(10), at(10), at(10)}), 0.001)
	assert.InDelta(t, 0.0, heapSlope([]Sample{at(10)}), 0.001)
}

func TestStaticMonitor(t *testing.T) {
	m := NewStaticMonitor(capacity.ResourceUsage{
		MemoryLeak:      true, // forced off for static figures
		MemoryGrowthPct: 42,
		MemoryPerUserMB: 0.5,
		CPUPerUserPct:   0.1,
	})

	require.NoError(t, m.Begin(context.Background()))

	usage, err := m.End(context.Background(), 99)
	require.NoError(t, err)

	assert.False(t, usage.MemoryLeak)
	assert.InDelta(t, 0.0, usage.MemoryGrowthPct, 0.001)
	assert.InDelta(t, 0.5, usage.MemoryPerUserMB, 0.001)
	assert.InDelta(t, 0.1, usage.CPUPerUserPct, 0.001)
}
