// Package session owns browser session lifecycles: creation with retry,
// liveness probing, failure classification and rotation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
)

// Factory creates a fresh browser session.
type Factory func(ctx context.Context) (Driver, error)

// Manager hands out sessions and decides when they must be replaced.
// It is safe for concurrent use, though each Handle is not.
type Manager struct {
	cfg     config.SessionConfig
	factory Factory
	nextID  atomic.Int64

	// memUsed returns the used fraction of host memory.
	memUsed func() (float64, error)
	now     func() time.Time
}

// NewManager creates a Manager that builds sessions with factory.
func NewManager(cfg config.SessionConfig, factory Factory) *Manager {
	if cfg.MaxCreateAttempts < 1 {
		cfg.MaxCreateAttempts = 1
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &Manager{
		cfg:     cfg,
		factory: factory,
		memUsed: hostMemoryUsed,
		now:     time.Now,
	}
}

// Acquire creates a fresh session, retrying with linearly growing backoff.
// MaxCreateAttempts counts every attempt including the first; after that
// many failures it returns an error matching models.ErrAcquisitionExhausted.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxCreateAttempts; attempt++ {
		d, err := m.factory(ctx)
		if err == nil {
			h := newHandle(m.nextID.Add(1), d, m.now())
			metricSessionsCreated.Inc()
			slog.Debug("session acquired", "session", h.ID, "attempt", attempt)
			return h, nil
		}
		lastErr = err
		metricSessionCreateFailures.Inc()
		slog.Warn("session creation failed",
			"attempt", attempt,
			"maxAttempts", m.cfg.MaxCreateAttempts,
			"error", err,
		)
		if attempt == m.cfg.MaxCreateAttempts {
			break
		}
		if err := sleep(ctx, time.Duration(attempt)*m.cfg.BackoffStep); err != nil {
			return nil, err
		}
	}
	return nil, models.NewScrapeError(
		models.ErrCodeAcquisition,
		fmt.Sprintf("no session after %d attempts", m.cfg.MaxCreateAttempts),
		lastErr,
	)
}

// HealthCheck probes h and returns its resulting state. A failed probe
// marks the handle Unhealthy for good.
func (m *Manager) HealthCheck(ctx context.Context, h *Handle) State {
	if s := h.State(); s != StateHealthy {
		return s
	}
	if h.driver.Crashed() {
		m.markUnhealthy(h, "crash observed")
		return h.State()
	}
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	if err := h.driver.Probe(probeCtx); err != nil {
		if ctx.Err() != nil {
			return h.State()
		}
		m.markUnhealthy(h, err.Error())
	}
	return h.State()
}

// Release tears h down. Teardown errors are logged and swallowed.
func (m *Manager) Release(h *Handle) {
	if h == nil || !h.advance(StateTerminated) {
		return
	}
	if err := h.driver.Close(); err != nil {
		slog.Debug("session teardown failed", "session", h.ID, "error", err)
	}
	slog.Debug("session released", "session", h.ID, "uses", h.Uses())
}

// Classify turns a raw driver error raised while using h into a typed error.
//
//   - crash observed: TRANSPORT_FATAL, and h becomes Unhealthy
//   - deadline exceeded: NAVIGATION_TIMEOUT without probing, since a page
//     still loading may answer slowly; HealthCheck judges it next step
//   - the page no longer answers a probe: TRANSPORT_FATAL, h Unhealthy
//   - anything else: STRATEGY_LOCAL, unless it is already typed
func (m *Manager) Classify(h *Handle, err error) error {
	if err == nil {
		return nil
	}
	if models.IsTransportFatal(err) {
		m.markUnhealthy(h, err.Error())
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if h.driver.Crashed() {
		m.markUnhealthy(h, "crash observed")
		return models.NewScrapeError(models.ErrCodeTransportFatal, "browser crashed", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeNavTimeout, "deadline exceeded", err)
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout)
	defer cancel()
	if probeErr := h.driver.Probe(probeCtx); probeErr != nil {
		m.markUnhealthy(h, probeErr.Error())
		return models.NewScrapeError(models.ErrCodeTransportFatal, "session stopped responding", err)
	}
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return err
	}
	return models.NewScrapeError(models.ErrCodeStrategy, "driver call failed", err)
}

// ShouldRotate reports whether h has served enough navigations, is too old,
// or the host is under memory pressure.
func (m *Manager) ShouldRotate(h *Handle) bool {
	if m.cfg.RotateAfter > 0 && h.Uses() >= m.cfg.RotateAfter {
		return true
	}
	if m.cfg.MaxAge > 0 && m.now().Sub(h.created) >= m.cfg.MaxAge {
		return true
	}
	if m.cfg.MemThreshold > 0 && m.memUsed != nil {
		if used, err := m.memUsed(); err == nil && used >= m.cfg.MemThreshold {
			slog.Info("session rotation forced by memory pressure", "session", h.ID, "memUsed", used)
			return true
		}
	}
	return false
}

func (m *Manager) markUnhealthy(h *Handle, reason string) {
	if h.advance(StateUnhealthy) {
		metricSessionsUnhealthy.Inc()
		slog.Warn("session marked unhealthy", "session", h.ID, "reason", reason)
	}
}

func hostMemoryUsed() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent / 100, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
