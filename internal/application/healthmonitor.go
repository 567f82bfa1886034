package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/passkeywallet/internal/domain/model"
)

const (
	defaultHealthInterval = 30 * time.Second
	// degradedDivisor shortens the probe interval while no provider is
	// reachable so recovery is noticed quickly.
	degradedDivisor   = 4
	minHealthInterval = time.Second
)

// HealthMonitor probes the paymaster providers in the background, keeping
// the provider gauges current and logging reachability changes. HTTP health
// checks still probe live; the monitor only observes.
type HealthMonitor struct {
	paymaster *PaymasterService
	interval  time.Duration
	logger    *slog.Logger
	refreshCh chan chan model.ProviderHealth

	mu          sync.RWMutex
	last        model.ProviderHealth
	lastChecked time.Time
}

// NewHealthMonitor creates a HealthMonitor probing every interval while at
// least one provider is reachable.
func NewHealthMonitor(paymaster *PaymasterService, interval time.Duration, logger *slog.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthMonitor{
		paymaster: paymaster,
		interval:  interval,
		logger:    logger,
		refreshCh: make(chan chan model.ProviderHealth),
	}
}

// Start runs an immediate probe and then probes on a schedule that tightens
// while degraded. It also serves manual refresh requests. Start blocks until
// the context is canceled.
func (m *HealthMonitor) Start(ctx context.Context) {
	health := m.check(ctx)

	timer := time.NewTimer(m.nextInterval(health))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return
		case <-timer.C:
			health = m.check(ctx)
			timer.Reset(m.nextInterval(health))
		case done := <-m.refreshCh:
			health = m.check(ctx)
			done <- health
		}
	}
}

// Refresh triggers a probe outside the schedule and waits for its result.
func (m *HealthMonitor) Refresh(ctx context.Context) (model.ProviderHealth, error) {
	done := make(chan model.ProviderHealth, 1)

	select {
	case m.refreshCh <- done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case health := <-done:
		return health, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Last returns a copy of the most recent probe result and when it ran. The
// map is nil before the first probe completes.
func (m *HealthMonitor) Last() (model.ProviderHealth, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return nil, time.Time{}
	}
	out := make(model.ProviderHealth, len(m.last))
	for name, ok := range m.last {
		out[name] = ok
	}
	return out, m.lastChecked
}

func (m *HealthMonitor) check(ctx context.Context) model.ProviderHealth {
	health := m.paymaster.Health(ctx)

	m.mu.Lock()
	previous := m.last
	m.last = health
	m.lastChecked = time.Now()
	m.mu.Unlock()

	for name, ok := range health {
		was, seen := previous[name]
		switch {
		case !seen && !ok:
			m.logger.Warn("paymaster provider unreachable", "provider", name)
		case seen && was && !ok:
			m.logger.Warn("paymaster provider became unreachable", "provider", name)
		case seen && !was && ok:
			m.logger.Info("paymaster provider recovered", "provider", name)
		}
	}
	return health
}

// nextInterval is the configured interval, or a quarter of it while no
// provider is reachable.
func (m *HealthMonitor) nextInterval(health model.ProviderHealth) time.Duration {
	if len(health) == 0 || health.Usable() {
		return m.interval
	}
	return max(m.interval/degradedDivisor, minHealthInterval)
}
