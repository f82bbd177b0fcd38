// Package loadgen implements the HTTP load generator the capacity engine
// drives. Concurrency within a single test lives entirely here; the engine
// only decides connection counts and durations.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FairForge/rampart/internal/capacity"
)

const defaultTimeout = 30 * time.Second

// Options tunes the HTTP runner.
type Options struct {
	Timeout time.Duration // per-request timeout, defaults to 30s
	MaxRPS  float64       // global request rate cap across all connections, 0 = unlimited
	Client  *http.Client  // base client, e.g. with an authenticating transport
}

// HTTPRunner opens N concurrent connections against a target and measures
// throughput, latency distribution and failures for a fixed window.
type HTTPRunner struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPRunner builds a runner. The base client is copied so the per-request
// timeout never leaks back into the caller's client.
func NewHTTPRunner(opts Options, logger *zap.Logger) *HTTPRunner {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := opts.Client
	if base == nil {
		base = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        512,
				MaxIdleConnsPerHost: 512,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	client := *base
	client.Timeout = opts.Timeout
	if client.Timeout <= 0 {
		client.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if opts.MaxRPS > 0 {
		burst := int(opts.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), burst)
	}

	return &HTTPRunner{
		client:  &client,
		limiter: limiter,
		logger:  logger,
	}
}

// workerStats collects per-connection samples; merged after the window closes
// so workers never share state during the run.
type workerStats struct {
	latenciesMs []float64 // completed responses only
	requests    int
	errors      int
	timeouts    int
	bytes       int64
}

// Execute runs one load test: connections workers issue requests against the
// target until the window closes. Responses with status 400 and above count
// as errors, timed-out requests as timeouts; both are data in the result.
// An error return means the test could not run at all.
func (r *HTTPRunner) Execute(ctx context.Context, target capacity.Target, connections, durationSeconds int) (capacity.RequestResult, error) {
	if connections <= 0 {
		return capacity.RequestResult{}, fmt.Errorf("connections must be positive, got %d", connections)
	}
	if durationSeconds <= 0 {
		return capacity.RequestResult{}, fmt.Errorf("duration must be positive, got %d", durationSeconds)
	}
	if err := validateTarget(target); err != nil {
		return capacity.RequestResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return capacity.RequestResult{}, err
	}

	window := time.Duration(durationSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	r.logger.Debug("load window opening",
		zap.String("url", target.URL),
		zap.Int("connections", connections),
		zap.Duration("window", window))

	stats := make([]workerStats, connections)
	var wg sync.WaitGroup
	started := time.Now()

	for i := 0; i < connections; i++ {
		wg.Add(1)
		go func(s *workerStats) {
			defer wg.Done()
			r.work(runCtx, target, s)
		}(&stats[i])
	}
	wg.Wait()

	elapsed := time.Since(started).Seconds()

	merged := workerStats{}
	for i := range stats {
		merged.latenciesMs = append(merged.latenciesMs, stats[i].latenciesMs...)
		merged.requests += stats[i].requests
		merged.errors += stats[i].errors
		merged.timeouts += stats[i].timeouts
		merged.bytes += stats[i].bytes
	}

	if merged.requests == 0 {
		if err := ctx.Err(); err != nil {
			return capacity.RequestResult{}, err
		}
		return capacity.RequestResult{}, fmt.Errorf("no request completed within the %s window against %s", window, target.URL)
	}

	avg, p95, p99 := latencyStats(merged.latenciesMs)

	return capacity.RequestResult{
		RequestsPerSecond:     float64(merged.requests) / elapsed,
		LatencyAvgMs:          avg,
		LatencyP95Ms:          p95,
		LatencyP99Ms:          p99,
		Errors:                merged.errors,
		Timeouts:              merged.timeouts,
		ThroughputBytesPerSec: float64(merged.bytes) / elapsed,
	}, nil
}

// work is one connection's request loop.
func (r *HTTPRunner) work(ctx context.Context, target capacity.Target, s *workerStats) {
	for {
		if ctx.Err() != nil {
			return
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
		}

		start := time.Now()
		status, bytes, err := r.once(ctx, target)
		latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

		if err != nil {
			// The window closing mid-flight is not a sample.
			if ctx.Err() != nil {
				return
			}
			s.requests++
			if isTimeout(err) {
				s.timeouts++
			} else {
				s.errors++
			}
			continue
		}

		s.requests++
		s.latenciesMs = append(s.latenciesMs, latencyMs)
		s.bytes += bytes
		if status >= http.StatusBadRequest {
			s.errors++
		}
	}
}

// once issues a single request and drains the response.
func (r *HTTPRunner) once(ctx context.Context, target capacity.Target) (int, int64, error) {
	method := target.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if target.Body != "" {
		body = strings.NewReader(target.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URL, body)
	if err != nil {
		return 0, 0, err
	}
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return resp.StatusCode, n, err
	}
	return resp.StatusCode, n, nil
}

func validateTarget(target capacity.Target) error {
	if target.URL == "" {
		return fmt.Errorf("target url is required")
	}
	u, err := url.Parse(target.URL)
	if err != nil {
		return fmt.Errorf("invalid target url %q: %w", target.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target url %q must be http or https", target.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("target url %q has no host", target.URL)
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// latencyStats sorts a copy and reads the percentile indexes.
func latencyStats(latenciesMs []float64) (avg, p95, p99 float64) {
	if len(latenciesMs) == 0 {
		return 0, 0, 0
	}

	sorted := make([]float64, len(latenciesMs))
	copy(sorted, latenciesMs)
	sort.Float64s(sorted)

	var total float64
	for _, l := range sorted {
		total += l
	}
	avg = total / float64(len(sorted))
	p95 = sorted[len(sorted)*95/100]
	p99 = sorted[len(sorted)*99/100]
	return avg, p95, p99
}
