package models

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// PriceRecord is one persisted observation. Records are append-only.
// JSON keys follow the historical prices.json layout.
type PriceRecord struct {
	RunID      string    `json:"run_id,omitempty"`
	TargetName string    `json:"match_name"`
	TargetURL  string    `json:"match_url"`
	Category   string    `json:"category"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	CapturedAt time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// RunBatch identifies one run. Every record produced by the run shares
// its ID and CapturedAt.
type RunBatch struct {
	ID         string
	Source     string
	CapturedAt time.Time
}

// NewRunBatch starts a batch stamped with now.
func NewRunBatch(source string, now time.Time) RunBatch {
	return RunBatch{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Source:     source,
		CapturedAt: now.UTC().Truncate(time.Second),
	}
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

// RunSummary is the outcome of one orchestrator run.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Status    RunStatus `json:"status"`
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	NoPrice   int       `json:"no_price"`
	Failed    int       `json:"failed"`
	Records   int       `json:"records"`
	Rotations int       `json:"rotations"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// TargetSummary describes a target present in the store.
type TargetSummary struct {
	Name     string    `json:"match_name"`
	URL      string    `json:"match_url"`
	Records  int       `json:"records"`
	LastSeen time.Time `json:"last_seen"`
}
