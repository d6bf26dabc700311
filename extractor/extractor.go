// Package extractor runs an ordered cascade of price strategies over a
// rendered event page. A tier resolved by one strategy is never handed
// to a later one on the same visit.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/currency"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/session"
	"github.com/use-agent/pricewatch/simhash"
)

// Opener builds the Page view of a session.
type Opener func(h *session.Handle) (Page, error)

// Extractor resolves per-tier prices on a page.
type Extractor struct {
	tiers      []Tier
	strategies []Strategy
	norm       *currency.Normalizer
	minPrice   float64
	maxPrice   float64
	open       Opener
}

// New builds an Extractor with the default strategy cascade. open may be
// nil when only ExtractPage is used.
func New(cfg config.ExtractorConfig, pricing config.PricingConfig, open Opener) (*Extractor, error) {
	tiers, err := CompileTiers(cfg.Tiers)
	if err != nil {
		return nil, err
	}
	e := NewWithStrategies(tiers, nil, pricing, open)
	e.strategies = DefaultStrategies(cfg, tiers, e.plausible)
	return e, nil
}

// NewWithStrategies builds an Extractor running strategies in order.
func NewWithStrategies(tiers []Tier, strategies []Strategy, pricing config.PricingConfig, open Opener) *Extractor {
	return &Extractor{
		tiers:      tiers,
		strategies: strategies,
		norm:       currency.NewNormalizer(pricing),
		minPrice:   pricing.MinPrice,
		maxPrice:   pricing.MaxPrice,
		open:       open,
	}
}

// Tiers returns the compiled tiers in configuration order.
func (e *Extractor) Tiers() []Tier { return e.tiers }

// Extract runs the cascade against the page currently loaded in h.
func (e *Extractor) Extract(ctx context.Context, h *session.Handle) (*models.ExtractionResult, error) {
	if e.open == nil {
		return nil, fmt.Errorf("extractor: no page opener configured")
	}
	p, err := e.open(h)
	if err != nil {
		return nil, err
	}
	return e.ExtractPage(ctx, p)
}

// ExtractPage runs the cascade against p. Strategy failures count as
// "nothing found"; only transport-fatal errors and cancellation stop it.
func (e *Extractor) ExtractPage(ctx context.Context, p Page) (*models.ExtractionResult, error) {
	pageURL, err := p.URL(ctx)
	if err != nil && models.IsTransportFatal(err) {
		return nil, err
	}
	res := models.NewExtractionResult(pageURL)

	if markup, err := p.HTML(ctx); err == nil {
		res.Fingerprint = simhash.FingerprintDOM(markup)
	} else if models.IsTransportFatal(err) {
		return res, err
	}

	for _, s := range e.strategies {
		pending := e.pending(res)
		if len(pending) == 0 {
			break
		}

		amounts, err := runStrategy(ctx, s, p, pending)
		accepted := e.accept(res, s.Name(), pending, amounts)

		if err != nil {
			if models.IsTransportFatal(err) {
				return res, err
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			metricStrategyFailures.WithLabelValues(s.Name()).Inc()
			slog.Debug("strategy failed",
				"strategy", s.Name(),
				"url", pageURL,
				"error", err,
			)
		}
		if accepted > 0 {
			slog.Debug("strategy resolved tiers",
				"strategy", s.Name(),
				"url", pageURL,
				"candidates", accepted,
			)
		}
	}
	return res, nil
}

func (e *Extractor) pending(res *models.ExtractionResult) []Tier {
	out := make([]Tier, 0, len(e.tiers))
	for _, t := range e.tiers {
		if !res.Resolved(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

// accept normalizes and range-checks amounts, adding survivors to res.
// Amounts for tiers outside pending are dropped.
func (e *Extractor) accept(res *models.ExtractionResult, strategy string, pending []Tier, amounts []Amount) int {
	allowed := make(map[string]bool, len(pending))
	for _, t := range pending {
		allowed[t.Name] = true
	}
	n := 0
	for _, a := range amounts {
		if !allowed[a.Tier] {
			continue
		}
		v, ok := e.normalize(a.Money)
		if !ok {
			continue
		}
		if !res.Resolved(a.Tier) {
			metricStrategyResolutions.WithLabelValues(strategy).Inc()
		}
		res.Add(models.Candidate{
			Tier:        a.Tier,
			Amount:      v,
			RawAmount:   a.Value,
			RawCurrency: a.Currency,
			Strategy:    strategy,
		})
		n++
	}
	return n
}

// normalize converts m into the target currency and reports whether the
// result lies inside the plausible price range.
func (e *Extractor) normalize(m Money) (float64, bool) {
	v := e.norm.Normalize(m.Value, m.Currency)
	return v, v >= e.minPrice && v <= e.maxPrice
}

func (e *Extractor) plausible(m Money) bool {
	_, ok := e.normalize(m)
	return ok
}

// runStrategy converts a strategy panic into an ordinary failure.
func runStrategy(ctx context.Context, s Strategy, p Page, tiers []Tier) (amounts []Amount, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("strategy panicked",
				"strategy", s.Name(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			amounts, err = nil, models.NewScrapeError(models.ErrCodeStrategy, fmt.Sprintf("%s panicked: %v", s.Name(), r), nil)
		}
	}()
	return s.Resolve(ctx, p, tiers)
}
