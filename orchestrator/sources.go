package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/pricewatch/models"
)

// Job is one source's target list and the orchestrator that runs it. Jobs
// must not share an Orchestrator or a session manager.
type Job struct {
	Orchestrator *Orchestrator
	Targets      []models.Target
}

// RunAll runs every job concurrently. A failing source does not cancel the
// others; the first error is returned alongside every summary, in job order.
func RunAll(ctx context.Context, jobs []Job) ([]models.RunSummary, error) {
	summaries := make([]models.RunSummary, len(jobs))
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			s, err := job.Orchestrator.Run(ctx, job.Targets)
			summaries[i] = s
			if err != nil {
				return fmt.Errorf("source %s: %w", job.Orchestrator.source, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return summaries, err
}

// Every calls fn immediately and then every interval until ctx is done.
// Errors from fn are logged and do not stop the schedule. A non-positive
// interval runs fn once.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	for {
		started := time.Now()
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if interval <= 0 {
				return err
			}
			slog.Error("scheduled run failed", "error", err)
		}
		if interval <= 0 {
			return nil
		}

		next := interval - time.Since(started)
		if next < 0 {
			next = 0
		}
		slog.Info("next run scheduled", "in", next.Round(time.Second))
		if err := pause(ctx, next); err != nil {
			return err
		}
	}
}
