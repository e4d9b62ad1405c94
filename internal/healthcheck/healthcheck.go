package healthcheck

import (
	"context"
	"sync"
	"time"

	"github.com/docbridge/docbridge/internal/logging"
)

// Prober is the availability check the monitor runs.
type Prober interface {
	CheckAvailability(ctx context.Context) (string, error)
}

// Result is the outcome of one probe.
type Result struct {
	Healthy   bool      `json:"healthy"`
	Version   string    `json:"version,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor probes the document server in the background and caches the last
// result for the settings surface.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration

	mu   sync.RWMutex
	last Result
}

func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  15 * time.Second,
	}
}

// Run probes on a fixed interval until ctx is cancelled. The first probe is
// immediate so startup logs show document server state right away.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs a single probe and records the result.
func (m *Monitor) Check(ctx context.Context) Result {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	result := Result{CheckedAt: time.Now()}
	version, err := m.prober.CheckAvailability(probeCtx)
	if err != nil {
		result.Error = err.Error()
		logging.Logf("[HEALTH] document server unavailable: %v", err)
	} else {
		result.Healthy = true
		result.Version = version
	}

	m.mu.Lock()
	wasHealthy := m.last.Healthy
	m.last = result
	m.mu.Unlock()

	if result.Healthy && !wasHealthy {
		logging.Logf("[HEALTH] document server available (version %s)", version)
	}
	return result
}

// Last returns the most recent probe result.
func (m *Monitor) Last() Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
