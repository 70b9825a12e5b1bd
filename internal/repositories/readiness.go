package repositories

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/acai-counter/pos/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// Probe checks one backend. A nil Check is reported as an error when collected.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// ReadinessOption customises the probe runner.
type ReadinessOption func(*probeRunner)

// WithProbeTimeout overrides the timeout used for probes that omit their own.
func WithProbeTimeout(timeout time.Duration) ReadinessOption {
	return func(r *probeRunner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithProbeClock injects a clock for tests.
func WithProbeClock(clock func() time.Time) ReadinessOption {
	return func(r *probeRunner) {
		if clock != nil {
			r.now = clock
		}
	}
}

type probeRunner struct {
	probes  []Probe
	timeout time.Duration
	now     func() time.Time
}

var _ ReadinessRepository = (*probeRunner)(nil)

// NewReadinessRepository runs the given probes concurrently on every Collect. An empty probe
// list always reports ok, which is the case for the in-memory backend.
func NewReadinessRepository(probes []Probe, opts ...ReadinessOption) (ReadinessRepository, error) {
	for _, probe := range probes {
		if strings.TrimSpace(probe.Name) == "" {
			return nil, errors.New("readiness: probe name is required")
		}
	}
	runner := &probeRunner{
		probes:  append([]Probe(nil), probes...),
		timeout: defaultProbeTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	return runner, nil
}

func (r *probeRunner) Collect(ctx context.Context) (domain.ReadinessReport, error) {
	if ctx == nil {
		return domain.ReadinessReport{}, errors.New("readiness: context is required")
	}

	checks := make(map[string]domain.DependencyHealth, len(r.probes))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, probe := range r.probes {
		wg.Add(1)
		go func(probe Probe) {
			defer wg.Done()
			result := r.run(ctx, probe)
			mu.Lock()
			checks[probe.Name] = result
			mu.Unlock()
		}(probe)
	}
	wg.Wait()

	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusError:
			status = domain.HealthStatusError
		case domain.HealthStatusDegraded:
			if status == domain.HealthStatusOK {
				status = domain.HealthStatusDegraded
			}
		}
	}

	return domain.ReadinessReport{Status: status, Checks: checks, GeneratedAt: r.now()}, nil
}

func (r *probeRunner) run(ctx context.Context, probe Probe) domain.DependencyHealth {
	start := r.now()
	if probe.Check == nil {
		return domain.DependencyHealth{Status: domain.HealthStatusError, Detail: "probe missing check", CheckedAt: start}
	}

	timeout := probe.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := probe.Check(probeCtx)
	end := r.now()
	result := domain.DependencyHealth{Status: domain.HealthStatusOK, Detail: "ok", Latency: end.Sub(start), CheckedAt: end}

	switch {
	case err == nil && probeCtx.Err() == nil:
	case errors.Is(err, context.DeadlineExceeded) || (err == nil && probeCtx.Err() != nil):
		result.Status = domain.HealthStatusError
		result.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		result.Status = domain.HealthStatusError
		result.Detail = "cancelled"
	default:
		result.Status = domain.HealthStatusDegraded
		result.Detail = err.Error()
	}
	return result
}
