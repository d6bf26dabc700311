package session

import (
	"context"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a session. States only move forward:
// Healthy -> Unhealthy -> Terminated.
type State int32

const (
	StateHealthy State = iota
	StateUnhealthy
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Driver is one live browser session.
type Driver interface {
	// Navigate loads url and waits for the load event or ctx expiry.
	Navigate(ctx context.Context, url string) error

	// StopLoading cancels in-flight resource loading.
	StopLoading(ctx context.Context) error

	// Probe runs a cheap round trip through the page.
	Probe(ctx context.Context) error

	// Crashed reports whether the renderer or browser has been observed dying.
	Crashed() bool

	Close() error
}

// Handle wraps a Driver with lifecycle metadata. A handle is owned by a
// single orchestrator and must not be shared across concurrent navigations.
type Handle struct {
	ID      int64
	driver  Driver
	created time.Time
	uses    atomic.Int32
	state   atomic.Int32
}

func newHandle(id int64, d Driver, now time.Time) *Handle {
	return &Handle{ID: id, driver: d, created: now}
}

// Driver returns the underlying browser session.
func (h *Handle) Driver() Driver { return h.driver }

// Created returns the creation time.
func (h *Handle) Created() time.Time { return h.created }

// Uses returns the number of navigations performed.
func (h *Handle) Uses() int { return int(h.uses.Load()) }

// RecordUse counts one navigation.
func (h *Handle) RecordUse() { h.uses.Add(1) }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// advance moves the state forward to s. Backward moves are ignored.
func (h *Handle) advance(s State) bool {
	for {
		cur := h.state.Load()
		if State(cur) >= s {
			return false
		}
		if h.state.CompareAndSwap(cur, int32(s)) {
			return true
		}
	}
}
