// internal/resource/monitor.go

// Package resource samples the target's resource usage while load runs,
// then reduces the samples to the per-user figures the capacity model needs.
package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/rampart/internal/capacity"
)

const (
	defaultSampleInterval = 5 * time.Second
	defaultPollTimeout    = 10 * time.Second

	// Heap growth below this percentage is treated as noise, not a leak.
	leakGrowthPct = 10.0
)

// Sample captures the target's resource usage at a point in time.
type Sample struct {
	Timestamp      time.Time
	HeapAllocBytes uint64
	CPUPercent     float64
}

// statsPayload is the JSON shape the target's stats endpoint exposes.
type statsPayload struct {
	HeapAllocBytes uint64  `json:"heapAllocBytes"`
	CPUPercent     float64 `json:"cpuPercent"`
}

// HTTPConfig describes the stats endpoint to poll.
type HTTPConfig struct {
	StatsURL        string            `json:"statsUrl" yaml:"stats_url"`
	IntervalSeconds int               `json:"intervalSeconds" yaml:"interval_seconds"`
	Headers         map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Validate checks the endpoint URL and interval.
func (c HTTPConfig) Validate() error {
	if c.StatsURL == "" {
		return fmt.Errorf("stats url is required")
	}
	u, err := url.Parse(c.StatsURL)
	if err != nil {
		return fmt.Errorf("parse stats url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("stats url scheme must be http or https, got %q", u.Scheme)
	}
	if c.IntervalSeconds < 0 {
		return fmt.Errorf("interval seconds must not be negative")
	}
	return nil
}

// HTTPMonitor polls a JSON stats endpoint on the target while a load
// phase runs. Poll failures are logged and skipped; the monitor only
// errors when the whole run produced no usable sample.
type HTTPMonitor struct {
	cfg      HTTPConfig
	client   *http.Client
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	samples  []Sample
	failures int
}

// NewHTTPMonitor builds a monitor for the given stats endpoint. A nil
// client gets a short poll timeout of its own.
func NewHTTPMonitor(cfg HTTPConfig, client *http.Client, logger *zap.Logger) *HTTPMonitor {
	if client == nil {
		client = &http.Client{Timeout: defaultPollTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	return &HTTPMonitor{
		cfg:      cfg,
		client:   client,
		interval: interval,
		logger:   logger,
	}
}

// Begin starts sampling in its own goroutine until End is called.
func (m *HTTPMonitor) Begin(ctx context.Context) error {
	if err := m.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid monitor config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor already running")
	}

	pollCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.samples = nil
	m.failures = 0

	go m.loop(pollCtx, m.done)
	return nil
}

func (m *HTTPMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.poll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *HTTPMonitor) poll(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.StatsURL, nil)
	if err != nil {
		m.recordFailure(err)
		return
	}
	for k, v := range m.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.recordFailure(err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		m.recordFailure(fmt.Errorf("stats endpoint returned %d", resp.StatusCode))
		return
	}

	var payload statsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		m.recordFailure(fmt.Errorf("decode stats: %w", err))
		return
	}

	m.mu.Lock()
	m.samples = append(m.samples, Sample{
		Timestamp:      time.Now(),
		HeapAllocBytes: payload.HeapAllocBytes,
		CPUPercent:     payload.CPUPercent,
	})
	m.mu.Unlock()
}

func (m *HTTPMonitor) recordFailure(err error) {
	m.mu.Lock()
	m.failures++
	count := m.failures
	m.mu.Unlock()

	m.logger.Warn("resource sample failed",
		zap.String("url", m.cfg.StatsURL),
		zap.Int("failures", count),
		zap.Error(err))
}

// End stops sampling and reduces the collected samples to usage figures
// for the given user count.
func (m *HTTPMonitor) End(ctx context.Context, users int) (capacity.ResourceUsage, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return capacity.ResourceUsage{}, fmt.Errorf("monitor not running")
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return capacity.ResourceUsage{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false

	if len(m.samples) == 0 {
		return capacity.ResourceUsage{}, fmt.Errorf("no resource samples collected (%d polls failed)", m.failures)
	}

	return reduce(m.samples, users), nil
}

// Samples returns a copy of the samples collected so far.
func (m *HTTPMonitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

// reduce turns a sample series into the usage figures the model consumes.
func reduce(samples []Sample, users int) capacity.ResourceUsage {
	first := float64(samples[0].HeapAllocBytes)
	last := float64(samples[len(samples)-1].HeapAllocBytes)

	var peakHeap float64
	var peakCPU float64
	for _, s := range samples {
		if h := float64(s.HeapAllocBytes); h > peakHeap {
			peakHeap = h
		}
		if s.CPUPercent > peakCPU {
			peakCPU = s.CPUPercent
		}
	}

	var growth float64
	if first > 0 {
		growth = (last - first) / first * 100
	}

	usage := capacity.ResourceUsage{
		MemoryGrowthPct: growth,
		MemoryLeak:      growth > leakGrowthPct && heapSlope(samples) > 0,
	}
	if users > 0 {
		usage.MemoryPerUserMB = peakHeap / (1024 * 1024) / float64(users)
		usage.CPUPerUserPct = peakCPU / float64(users)
	}
	return usage
}

// heapSlope fits a least squares line through the heap series. A noisy
// but flat heap has slope near zero even when last > first.
func heapSlope(samples []Sample) float64 {
	n := float64(len(samples))
	if n < 2 {
		return 0
	}

	var sumX, sumY float64
	for i, s := range samples {
		sumX += float64(i)
		sumY += float64(s.HeapAllocBytes)
	}
	meanX := sumX / n
	meanY := sumY / n

	var num, den float64
	for i, s := range samples {
		dx := float64(i) - meanX
		num += dx * (float64(s.HeapAllocBytes) - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}
