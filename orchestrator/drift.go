package orchestrator

import (
	"sync"
	"time"

	"github.com/use-agent/pricewatch/simhash"
)

type driftEntry struct {
	fingerprint uint64
	expiresAt   time.Time
}

// DriftTracker remembers each target's last markup fingerprint so layout
// changes that may break extraction get noticed. Entries expire after the
// configured TTL and are pruned periodically.
type DriftTracker struct {
	store     sync.Map // target URL (string) -> *driftEntry
	ttl       time.Duration
	threshold int
	done      chan struct{}
	stopOnce  sync.Once
}

// NewDriftTracker starts a tracker and its hourly cleanup goroutine.
func NewDriftTracker(ttl time.Duration, threshold int) *DriftTracker {
	dt := &DriftTracker{
		ttl:       ttl,
		threshold: threshold,
		done:      make(chan struct{}),
	}
	go dt.cleanupLoop()
	return dt
}

// Observe records fp for url and reports the distance to the previous
// fingerprint and whether it crossed the threshold. A zero fp is ignored.
func (dt *DriftTracker) Observe(url string, fp uint64) (distance int, drifted bool) {
	if fp == 0 {
		return 0, false
	}
	now := time.Now()
	if val, ok := dt.store.Load(url); ok {
		prev := val.(*driftEntry)
		if now.Before(prev.expiresAt) {
			distance = simhash.Distance(prev.fingerprint, fp)
			drifted = simhash.Drifted(prev.fingerprint, fp, dt.threshold)
		}
	}
	dt.store.Store(url, &driftEntry{fingerprint: fp, expiresAt: now.Add(dt.ttl)})
	return distance, drifted
}

// Forget drops the fingerprint for url.
func (dt *DriftTracker) Forget(url string) {
	dt.store.Delete(url)
}

// Stop terminates the background cleanup goroutine. It is safe to call twice.
func (dt *DriftTracker) Stop() {
	dt.stopOnce.Do(func() { close(dt.done) })
}

// cleanupLoop runs every hour, deleting expired entries.
func (dt *DriftTracker) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-dt.done:
			return
		case <-ticker.C:
			now := time.Now()
			dt.store.Range(func(key, value any) bool {
				if now.After(value.(*driftEntry).expiresAt) {
					dt.store.Delete(key)
				}
				return true
			})
		}
	}
}
