// Package orchestrator runs the per-target pipeline over a target list:
// session upkeep, navigation, extraction, aggregation and persistence,
// with bounded retries and session rotation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/session"
	"github.com/use-agent/pricewatch/storage"
)

var tracer = otel.Tracer("github.com/use-agent/pricewatch/orchestrator")

// Sessions is the part of session.Manager the orchestrator drives.
type Sessions interface {
	Acquire(ctx context.Context) (*session.Handle, error)
	HealthCheck(ctx context.Context, h *session.Handle) session.State
	ShouldRotate(h *session.Handle) bool
	Release(h *session.Handle)
}

// Navigator loads a target into a session.
type Navigator interface {
	Navigate(ctx context.Context, h *session.Handle, target models.Target) error
}

// Extractor reads prices from the page loaded in a session.
type Extractor interface {
	Extract(ctx context.Context, h *session.Handle) (*models.ExtractionResult, error)
}

// Aggregator materializes records from one page visit.
type Aggregator interface {
	Aggregate(res *models.ExtractionResult, target models.Target, run models.RunBatch) []models.PriceRecord
}

// Notifier is told about finished runs.
type Notifier interface {
	RunCompleted(ctx context.Context, summary models.RunSummary) error
}

// Deps are the collaborators of one Orchestrator. Drift and Notifier are
// optional.
type Deps struct {
	Sessions   Sessions
	Navigator  Navigator
	Extractor  Extractor
	Aggregator Aggregator
	Store      storage.Appender
	Drift      *DriftTracker
	Notifier   Notifier
}

// Orchestrator runs targets sequentially on one session at a time. A
// single Orchestrator must not run twice concurrently.
type Orchestrator struct {
	cfg    config.RunConfig
	source string
	deps   Deps
	now    func() time.Time

	mu     sync.Mutex
	status models.RunStatus
	last   models.RunSummary
}

// New builds an Orchestrator for one source.
func New(cfg config.RunConfig, source string, deps Deps) *Orchestrator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Orchestrator{
		cfg:    cfg,
		source: source,
		deps:   deps,
		now:    time.Now,
		status: models.RunIdle,
	}
}

// Status returns the current run state.
func (o *Orchestrator) Status() models.RunStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// LastSummary returns the summary of the most recent finished run.
func (o *Orchestrator) LastSummary() models.RunSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *Orchestrator) setStatus(s models.RunStatus) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
}

type outcome string

const (
	outcomeSucceeded outcome = "succeeded"
	outcomeNoPrice   outcome = "no_price"
	outcomeFailed    outcome = "failed"
	outcomeSkipped   outcome = "skipped"
)

// runState is the mutable state of one run.
type runState struct {
	batch   models.RunBatch
	summary *models.RunSummary
	handle  *session.Handle
}

// Run processes targets in order. Individual target failures never stop
// the run; it ends early only on cancellation, or with an error matching
// models.ErrRunAborted after AbortAfter consecutive targets could not get
// a session. The summary is valid in every case.
func (o *Orchestrator) Run(ctx context.Context, targets []models.Target) (models.RunSummary, error) {
	start := o.now()
	batch := models.NewRunBatch(o.source, start)
	summary := models.RunSummary{
		RunID:     batch.ID,
		Source:    o.source,
		Status:    models.RunRunning,
		StartedAt: start,
	}
	st := &runState{batch: batch, summary: &summary}

	ctx, span := tracer.Start(ctx, "pricewatch.run", trace.WithAttributes(
		attribute.String("pricewatch.run_id", batch.ID),
		attribute.String("pricewatch.source", o.source),
		attribute.Int("pricewatch.targets", len(targets)),
	))
	defer span.End()

	o.setStatus(models.RunRunning)
	metricRunsActive.Inc()
	defer metricRunsActive.Dec()

	slog.Info("run started",
		"run", batch.ID,
		"source", o.source,
		"targets", len(targets),
	)

	var runErr error
	exhausted := 0
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if i > 0 {
			if err := pause(ctx, o.cfg.Pacing); err != nil {
				runErr = err
				break
			}
			if o.cfg.RotateEvery > 0 && i%o.cfg.RotateEvery == 0 && st.handle != nil {
				o.rotate(st, "schedule")
			}
		}

		summary.Attempted++
		out, err := o.processTarget(ctx, st, target)
		metricTargets.WithLabelValues(o.source, string(out)).Inc()

		if out == outcomeSkipped {
			exhausted++
		} else {
			exhausted = 0
		}

		switch out {
		case outcomeSucceeded:
			summary.Succeeded++
		case outcomeNoPrice:
			summary.NoPrice++
		default:
			summary.Failed++
		}

		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		if out == outcomeFailed || out == outcomeSkipped {
			slog.Warn("target failed",
				"run", batch.ID,
				"target", target.Name,
				"outcome", out,
				"error", err,
			)
		}
		if o.cfg.AbortAfter > 0 && exhausted >= o.cfg.AbortAfter {
			runErr = models.NewScrapeError(models.ErrCodeRunAborted,
				fmt.Sprintf("no session for %d consecutive targets", exhausted), err)
			break
		}
	}

	if st.handle != nil {
		o.deps.Sessions.Release(st.handle)
		st.handle = nil
	}

	summary.EndedAt = o.now()
	summary.Status = models.RunCompleted
	if runErr != nil {
		summary.Status = models.RunAborted
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	span.SetAttributes(
		attribute.Int("pricewatch.succeeded", summary.Succeeded),
		attribute.Int("pricewatch.records", summary.Records),
	)
	metricRunDuration.WithLabelValues(o.source, string(summary.Status)).Observe(summary.EndedAt.Sub(start).Seconds())

	o.mu.Lock()
	o.status = summary.Status
	o.last = summary
	o.mu.Unlock()

	slog.Info("run finished",
		"run", batch.ID,
		"source", o.source,
		"status", summary.Status,
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"noPrice", summary.NoPrice,
		"failed", summary.Failed,
		"records", summary.Records,
		"rotations", summary.Rotations,
		"elapsed", summary.EndedAt.Sub(start).Round(time.Second),
	)

	if o.deps.Notifier != nil {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		if err := o.deps.Notifier.RunCompleted(notifyCtx, summary); err != nil {
			slog.Warn("run notification failed", "run", batch.ID, "error", err)
		}
		cancel()
	}
	return summary, runErr
}

// processTarget makes up to MaxAttempts attempts at one target.
func (o *Orchestrator) processTarget(ctx context.Context, st *runState, target models.Target) (outcome, error) {
	ctx, span := tracer.Start(ctx, "pricewatch.target", trace.WithAttributes(
		attribute.String("pricewatch.target", target.Name),
		attribute.String("pricewatch.url", target.URL),
	))
	defer span.End()

	emptyRetries := o.cfg.EmptyRetries
	var lastErr error
	empty := false
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if err := o.ensureSession(ctx, st); err != nil {
			span.RecordError(err)
			if errors.Is(err, models.ErrAcquisitionExhausted) {
				return outcomeSkipped, err
			}
			return outcomeFailed, err
		}

		records, err := o.visit(ctx, st, target)
		if err != nil {
			if ctx.Err() != nil {
				return outcomeFailed, ctx.Err()
			}
			span.RecordError(err)
			lastErr, empty = err, false
			switch {
			case models.IsTransportFatal(err):
				slog.Warn("session lost, rotating",
					"target", target.Name,
					"attempt", attempt,
					"error", err,
				)
				o.rotate(st, "fatal")
			case models.CodeOf(err) == models.ErrCodeInvalidInput,
				models.CodeOf(err) == models.ErrCodeStore:
				return outcomeFailed, err
			default:
				slog.Info("attempt failed",
					"target", target.Name,
					"attempt", attempt,
					"error", err,
				)
			}
			continue
		}

		if len(records) == 0 {
			lastErr, empty = nil, true
			if emptyRetries > 0 {
				emptyRetries--
				slog.Debug("no price found, retrying", "target", target.Name, "attempt", attempt)
				continue
			}
			break
		}

		st.summary.Records += len(records)
		metricRecords.WithLabelValues(o.source).Add(float64(len(records)))
		span.SetAttributes(attribute.Int("pricewatch.records", len(records)))
		return outcomeSucceeded, nil
	}

	if empty {
		slog.Info("no price found", "target", target.Name)
		return outcomeNoPrice, nil
	}
	span.SetStatus(codes.Error, "attempts exhausted")
	return outcomeFailed, lastErr
}

// visit runs one attempt on the current session and persists the result.
func (o *Orchestrator) visit(ctx context.Context, st *runState, target models.Target) ([]models.PriceRecord, error) {
	if err := o.deps.Navigator.Navigate(ctx, st.handle, target); err != nil {
		return nil, err
	}
	res, err := o.deps.Extractor.Extract(ctx, st.handle)
	if err != nil {
		return nil, err
	}

	if o.deps.Drift != nil && res != nil {
		if dist, drifted := o.deps.Drift.Observe(target.URL, res.Fingerprint); drifted {
			metricDrift.Inc()
			slog.Warn("page markup changed",
				"target", target.Name,
				"url", target.URL,
				"distance", dist,
			)
		}
	}

	records := o.deps.Aggregator.Aggregate(res, target, st.batch)
	if len(records) == 0 {
		return nil, nil
	}
	if err := o.deps.Store.Append(ctx, records); err != nil {
		if models.CodeOf(err) == "" {
			err = models.NewScrapeError(models.ErrCodeStore, "append records", err)
		}
		return nil, err
	}
	for _, r := range records {
		slog.Debug("price recorded",
			"target", r.TargetName,
			"category", r.Category,
			"price", r.Price,
			"currency", r.Currency,
		)
	}
	return records, nil
}

// ensureSession leaves a healthy, non-expired session in st.
func (o *Orchestrator) ensureSession(ctx context.Context, st *runState) error {
	if st.handle != nil {
		switch {
		case o.deps.Sessions.ShouldRotate(st.handle):
			o.rotate(st, "limit")
		case o.deps.Sessions.HealthCheck(ctx, st.handle) != session.StateHealthy:
			o.rotate(st, "unhealthy")
		}
	}
	if st.handle != nil {
		return nil
	}
	h, err := o.deps.Sessions.Acquire(ctx)
	if err != nil {
		return err
	}
	st.handle = h
	return nil
}

// rotate releases the current session; the next attempt acquires a new one.
func (o *Orchestrator) rotate(st *runState, reason string) {
	if st.handle == nil {
		return
	}
	o.deps.Sessions.Release(st.handle)
	st.handle = nil
	st.summary.Rotations++
	metricRotations.WithLabelValues(reason).Inc()
	slog.Debug("session rotated", "reason", reason)
}

func pause(ctx context.Context, d time.Duration) error {
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
