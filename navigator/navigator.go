// Package navigator loads target pages inside a session with a forced
// display currency and a hard load ceiling.
package navigator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/session"
)

// Classifier turns raw driver errors into typed errors.
type Classifier interface {
	Classify(h *session.Handle, err error) error
}

// Navigator drives one page load per call.
type Navigator struct {
	cfg      config.NavigatorConfig
	currency string
	sessions Classifier
}

// New returns a Navigator forcing currency through cfg.CurrencyParam.
func New(cfg config.NavigatorConfig, currency string, sessions Classifier) *Navigator {
	return &Navigator{cfg: cfg, currency: currency, sessions: sessions}
}

// Navigate loads target in h.
//
//  1. Force currency  – append the currency parameter to the URL
//  2. Load            – bounded by LoadTimeout; hitting it is not an error
//  3. Settle          – fixed wait for client rendering, within the ceiling
//  4. Stop loading    – cancel trailing requests so extraction sees a still page
//
// A transport-fatal failure is returned as such; the caller must rotate.
// Other load failures return NAVIGATION_FAILED and the session stays usable.
func (n *Navigator) Navigate(ctx context.Context, h *session.Handle, target models.Target) error {
	u, err := models.WithParam(target.URL, n.cfg.CurrencyParam, n.currency)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeInvalidInput, "bad target url", err)
	}

	loadCtx, cancel := context.WithTimeout(ctx, n.cfg.LoadTimeout)
	defer cancel()

	start := time.Now()
	navErr := h.Driver().Navigate(loadCtx, u)
	h.RecordUse()

	if navErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		classified := n.sessions.Classify(h, navErr)
		switch {
		case models.IsTransportFatal(classified):
			return classified
		case models.IsTimeout(classified) || errors.Is(loadCtx.Err(), context.DeadlineExceeded):
			slog.Info("page load hit ceiling, continuing with partial page",
				"target", target.Name,
				"url", u,
				"ceiling", n.cfg.LoadTimeout,
			)
		default:
			return models.NewScrapeError(models.ErrCodeNavigation, "page load failed", classified)
		}
	}

	settle := n.cfg.SettleDelay
	if deadline, ok := loadCtx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < settle {
			settle = remaining
		}
	}
	if err := wait(ctx, settle); err != nil {
		return err
	}

	stopCtx, stopCancel := context.WithTimeout(ctx, 5*time.Second)
	defer stopCancel()
	if err := h.Driver().StopLoading(stopCtx); err != nil {
		if classified := n.sessions.Classify(h, err); models.IsTransportFatal(classified) {
			return classified
		}
		slog.Debug("stop loading failed", "target", target.Name, "error", err)
	}

	slog.Debug("page ready",
		"target", target.Name,
		"session", h.ID,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
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
