package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
)

type fakeDriver struct {
	probeErr error
	crashed  atomic.Bool
	closeErr error
	closed   atomic.Int32
}

func (f *fakeDriver) Navigate(context.Context, string) error { return nil }
func (f *fakeDriver) StopLoading(context.Context) error      { return nil }
func (f *fakeDriver) Probe(context.Context) error            { return f.probeErr }
func (f *fakeDriver) Crashed() bool                          { return f.crashed.Load() }
func (f *fakeDriver) Close() error {
	f.closed.Add(1)
	return f.closeErr
}

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		MaxCreateAttempts: 3,
		BackoffStep:       time.Millisecond,
		RotateAfter:       10,
		MaxAge:            time.Hour,
		ProbeTimeout:      time.Second,
	}
}

func newTestManager(factory Factory) *Manager {
	m := NewManager(testConfig(), factory)
	m.memUsed = func() (float64, error) { return 0.1, nil }
	return m
}

func TestAcquire_RetriesThenSucceeds(t *testing.T) {
	var calls int
	m := newTestManager(func(context.Context) (Driver, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("chrome failed to start")
		}
		return &fakeDriver{}, nil
	})

	h, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, StateHealthy, h.State())
	require.Zero(t, h.Uses())
}

func TestAcquire_Exhausted(t *testing.T) {
	var calls int
	m := newTestManager(func(context.Context) (Driver, error) {
		calls++
		return nil, errors.New("no chrome")
	})

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, models.ErrAcquisitionExhausted)
	require.Equal(t, 3, calls)
}

func TestAcquire_AttemptsIncludeTheFirst(t *testing.T) {
	for _, attempts := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("%d attempts", attempts), func(t *testing.T) {
			var calls int
			cfg := testConfig()
			cfg.MaxCreateAttempts = attempts
			m := NewManager(cfg, func(context.Context) (Driver, error) {
				calls++
				return nil, errors.New("no chrome")
			})

			_, err := m.Acquire(context.Background())
			require.ErrorIs(t, err, models.ErrAcquisitionExhausted)
			require.Equal(t, attempts, calls)
		})
	}
}

func TestAcquire_CancelledDuringBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.BackoffStep = time.Hour
	m := NewManager(cfg, func(context.Context) (Driver, error) {
		return nil, errors.New("no chrome")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquire_FreshHandleEachTime(t *testing.T) {
	m := newTestManager(func(context.Context) (Driver, error) { return &fakeDriver{}, nil })
	a, err := m.Acquire(context.Background())
	require.NoError(t, err)
	b, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NotSame(t, a, b)
	require.NotEqual(t, a.ID, b.ID)
}

func TestHealthCheck(t *testing.T) {
	d := &fakeDriver{}
	m := newTestManager(func(context.Context) (Driver, error) { return d, nil })
	h, err := m.Acquire(context.Background())
	require.NoError(t, err)

	require.Equal(t, StateHealthy, m.HealthCheck(context.Background(), h))

	d.probeErr = errors.New("target closed")
	require.Equal(t, StateUnhealthy, m.HealthCheck(context.Background(), h))

	// Unhealthy is terminal even once the probe recovers.
	d.probeErr = nil
	require.Equal(t, StateUnhealthy, m.HealthCheck(context.Background(), h))
}

func TestHealthCheck_Crash(t *testing.T) {
	d := &fakeDriver{}
	d.crashed.Store(true)
	m := newTestManager(func(context.Context) (Driver, error) { return d, nil })
	h, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateUnhealthy, m.HealthCheck(context.Background(), h))
}

func TestRelease_SwallowsErrorsAndIsIdempotent(t *testing.T) {
	d := &fakeDriver{closeErr: errors.New("already dead")}
	m := newTestManager(func(context.Context) (Driver, error) { return d, nil })
	h, err := m.Acquire(context.Background())
	require.NoError(t, err)

	m.Release(h)
	m.Release(h)
	m.Release(nil)

	require.Equal(t, StateTerminated, h.State())
	require.EqualValues(t, 1, d.closed.Load())
	require.Equal(t, StateTerminated, m.HealthCheck(context.Background(), h))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		probeErr  error
		crashed   bool
		err       error
		wantCode  string
		wantState State
	}{
		{"deadline on live page", nil, false, context.DeadlineExceeded, models.ErrCodeNavTimeout, StateHealthy},
		{"deadline on busy page", errors.New("probe timed out"), false, context.DeadlineExceeded, models.ErrCodeNavTimeout, StateHealthy},
		{"deadline after crash", nil, true, context.DeadlineExceeded, models.ErrCodeTransportFatal, StateUnhealthy},
		{"dead page", errors.New("websocket closed"), false, errors.New("eval failed"), models.ErrCodeTransportFatal, StateUnhealthy},
		{"crash event", nil, true, errors.New("eval failed"), models.ErrCodeTransportFatal, StateUnhealthy},
		{"ordinary error", nil, false, errors.New("element not found"), models.ErrCodeStrategy, StateHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDriver{probeErr: tt.probeErr}
			d.crashed.Store(tt.crashed)
			m := newTestManager(func(context.Context) (Driver, error) { return d, nil })
			h, err := m.Acquire(context.Background())
			require.NoError(t, err)

			got := m.Classify(h, tt.err)
			require.Error(t, got)
			require.Equal(t, tt.wantCode, models.CodeOf(got))
			require.Equal(t, tt.wantState, h.State())
			require.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	m := newTestManager(func(context.Context) (Driver, error) { return &fakeDriver{}, nil })
	h, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Classify(h, nil))
}

func TestShouldRotate(t *testing.T) {
	m := newTestManager(func(context.Context) (Driver, error) { return &fakeDriver{}, nil })
	h, err := m.Acquire(context.Background())
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		h.RecordUse()
	}
	require.False(t, m.ShouldRotate(h))
	h.RecordUse()
	require.True(t, m.ShouldRotate(h))
}

func TestShouldRotate_AgeAndMemory(t *testing.T) {
	m := newTestManager(func(context.Context) (Driver, error) { return &fakeDriver{}, nil })
	h, err := m.Acquire(context.Background())
	require.NoError(t, err)

	m.now = func() time.Time { return h.Created().Add(2 * time.Hour) }
	require.True(t, m.ShouldRotate(h))

	m.now = time.Now
	m.cfg.MemThreshold = 0.8
	m.memUsed = func() (float64, error) { return 0.95, nil }
	require.True(t, m.ShouldRotate(h))

	m.memUsed = func() (float64, error) { return 0, errors.New("no /proc") }
	require.False(t, m.ShouldRotate(h))
}

func TestIsTrackerHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"www.google-analytics.com", true},
		{"cdn.cookielaw.org", true},
		{"doubleclick.net", true},
		{"tickets.example.com", false},
		{"analytics.com", false},
	}
	for _, tt := range tests {
		if got := isTrackerHost(tt.host); got != tt.want {
			t.Errorf("isTrackerHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}
