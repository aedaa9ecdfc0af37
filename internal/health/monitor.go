// Package health runs periodic liveness probes against the engine's
// dependencies (ledger endpoint, database, optional enrichment services) and
// keeps the latest per-dependency status for the health endpoint.
package health

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds probe scheduling parameters.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// Status is the latest observed state of one dependency.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

type target struct {
	name      string
	probe     Probe
	failCount int
	status    Status
}

// Monitor runs the probe loop and serves status snapshots.
type Monitor struct {
	mu      sync.Mutex
	targets []*target
	cfg     Config
	logger  *zap.Logger
}

// New creates a Monitor. Zero config fields get working defaults.
func New(cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Monitor{cfg: cfg, logger: logger}
}

// Register adds a named dependency probe. Dependencies start out healthy
// until the first probe says otherwise.
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets = append(m.targets, &target{
		name:   name,
		probe:  probe,
		status: Status{Name: name, Healthy: true},
	})
}

// Start runs the probe loop until quit is signalled.
func (m *Monitor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CheckInterval-time.Second)
			m.CheckAll(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// CheckAll probes every registered dependency once, concurrently.
func (m *Monitor) CheckAll(ctx context.Context) {
	m.mu.Lock()
	targets := make([]*target, len(m.targets))
	copy(targets, m.targets)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t *target) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
			err := t.probe(probeCtx)
			cancel()

			now := time.Now().UTC()

			m.mu.Lock()
			defer m.mu.Unlock()

			if err == nil {
				if t.failCount >= m.cfg.FailThreshold {
					m.logger.Info("dependency recovered", zap.String("dependency", t.name))
				}
				t.failCount = 0
				t.status = Status{Name: t.name, Healthy: true, CheckedAt: now}
				return
			}

			t.failCount++
			t.status.CheckedAt = now
			t.status.LastError = err.Error()
			if t.failCount == m.cfg.FailThreshold {
				// Transition: healthy → unhealthy (exactly at threshold).
				t.status.Healthy = false
				m.logger.Warn("dependency unhealthy",
					zap.String("dependency", t.name),
					zap.Int("fail_count", t.failCount),
					zap.Error(err),
				)
			}
		}(t)
	}
	wg.Wait()
}

// Snapshot returns the latest status of every dependency and whether all of
// them are healthy.
func (m *Monitor) Snapshot() ([]Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := true
	out := make([]Status, len(m.targets))
	for i, t := range m.targets {
		out[i] = t.status
		if !t.status.Healthy {
			all = false
		}
	}
	return out, all
}
