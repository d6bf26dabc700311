package extractor

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
)

// Amount is a raw price a strategy attributes to a tier.
type Amount struct {
	Tier string
	Money
}

// Strategy resolves prices for the tiers it is given. It is only ever
// called with tiers no earlier strategy resolved on the same page visit.
// Returned amounts are unvalidated; the Extractor normalizes and filters.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, p Page, tiers []Tier) ([]Amount, error)
}

// StructuredLabel reads accessibility labels such as
// aria-label="Category 2, from $340".
type StructuredLabel struct {
	// Known lists every configured tier; labels of resolved tiers still
	// bound the segments of pending ones.
	Known []Tier
}

func (StructuredLabel) Name() string { return "structured-label" }

func (s StructuredLabel) Resolve(ctx context.Context, p Page, tiers []Tier) ([]Amount, error) {
	labels, err := p.Labels(ctx)
	if err != nil {
		return nil, err
	}
	var out []Amount
	for _, label := range labels {
		for _, t := range tiers {
			if !t.Match(label) {
				continue
			}
			if m, ok := amountNear(label, known(s.Known, tiers), t); ok {
				out = append(out, Amount{Tier: t.Name, Money: m})
			}
		}
	}
	return out, nil
}

// AnchorContext climbs from each element naming a tier through its
// ancestors and stops at the first level holding an amount.
type AnchorContext struct {
	Depth int
	Known []Tier
}

func (AnchorContext) Name() string { return "anchor-context" }

func (s AnchorContext) Resolve(ctx context.Context, p Page, tiers []Tier) ([]Amount, error) {
	var out []Amount
	for _, t := range tiers {
		chains, err := p.AnchorContexts(ctx, t, s.Depth)
		if err != nil {
			if models.IsTransportFatal(err) || ctx.Err() != nil {
				return out, err
			}
			slog.Debug("anchor lookup failed", "tier", t.Name, "error", err)
			continue
		}
		for _, chain := range chains {
			for _, text := range chain {
				if m, ok := amountNear(text, known(s.Known, tiers), t); ok {
					out = append(out, Amount{Tier: t.Name, Money: m})
					break
				}
			}
		}
	}
	return out, nil
}

// BlockTier clicks seating blocks of unresolved tiers on a venue map and
// reads the price panel. A tier takes the price of the first of its blocks
// showing a plausible amount and its remaining blocks are skipped, so the
// result is not the minimum across the tier's blocks.
type BlockTier struct {
	Policies  PolicySet
	Settle    time.Duration
	MaxClicks int

	// Plausible reports whether a displayed amount can be a ticket price.
	// Nil accepts every amount.
	Plausible func(Money) bool
}

func (BlockTier) Name() string { return "block-tier" }

func (s BlockTier) Resolve(ctx context.Context, p Page, tiers []Tier) ([]Amount, error) {
	pageURL, err := p.URL(ctx)
	if err != nil {
		return nil, err
	}
	host := ""
	if u, perr := url.Parse(pageURL); perr == nil {
		host = u.Hostname()
	}
	policy, ok := s.Policies.For(host)
	if !ok {
		return nil, nil
	}

	blocks, err := p.Blocks(ctx)
	if err != nil {
		return nil, err
	}

	pending := make(map[string]bool, len(tiers))
	for _, t := range tiers {
		pending[t.Name] = true
	}

	var out []Amount
	clicks := 0
	for _, b := range blocks {
		if len(pending) == 0 || (s.MaxClicks > 0 && clicks >= s.MaxClicks) {
			break
		}
		tier, ok := policy.TierFor(b.ID)
		if !ok && b.Label != "" {
			tier, ok = policy.TierFor(b.Label)
		}
		if !ok || !pending[tier] {
			continue
		}

		clicks++
		if err := p.ClickBlock(ctx, b); err != nil {
			if models.IsTransportFatal(err) || ctx.Err() != nil {
				return out, err
			}
			if errors.Is(err, ErrClickUnsupported) {
				return out, err
			}
			slog.Debug("block click failed", "block", b.ID, "error", err)
			continue
		}
		if err := pause(ctx, s.Settle); err != nil {
			return out, err
		}
		text, err := p.PriceDisplay(ctx)
		if err != nil {
			if models.IsTransportFatal(err) {
				return out, err
			}
			continue
		}
		for _, m := range parseAmounts(text) {
			if s.Plausible != nil && !s.Plausible(m) {
				continue
			}
			out = append(out, Amount{Tier: tier, Money: m})
			delete(pending, tier)
			break
		}
	}
	return out, nil
}

// TextFallback scans rendered body text for amounts starting within Window
// characters after a tier label, stopping at the next tier label.
type TextFallback struct {
	Window   int
	MaxBytes int
	Known    []Tier
}

func (TextFallback) Name() string { return "text-fallback" }

func (s TextFallback) Resolve(ctx context.Context, p Page, tiers []Tier) ([]Amount, error) {
	text, err := p.VisibleText(ctx, s.MaxBytes)
	if err != nil {
		return nil, err
	}
	text = truncateUTF8(text, s.MaxBytes)

	pending := make(map[string]bool, len(tiers))
	for _, t := range tiers {
		pending[t.Name] = true
	}
	bounds := known(s.Known, tiers)
	all := tierMatches(text, bounds)
	var out []Amount
	for i, m := range all {
		name := bounds[m.tier].Name
		if !pending[name] {
			continue
		}
		limit := len(text)
		if i+1 < len(all) {
			limit = all[i+1].start
		}
		// The window bounds where an amount may start; the number itself is
		// read in full up to the next tier label.
		reach := windowAfter(text, m.end, s.Window, limit) - m.end
		for _, money := range parseAmounts(text[m.end:limit]) {
			if money.Start > reach {
				break
			}
			out = append(out, Amount{Tier: name, Money: money})
		}
	}
	return out, nil
}

// DefaultStrategies returns the cascade in its fixed order. plausible gates
// block prices before a tier stops being clicked; nil accepts all.
func DefaultStrategies(cfg config.ExtractorConfig, tiers []Tier, plausible func(Money) bool) []Strategy {
	return []Strategy{
		StructuredLabel{Known: tiers},
		AnchorContext{Depth: cfg.AnchorDepth, Known: tiers},
		BlockTier{
			Policies:  NewPolicySet(cfg.BlockPolicies),
			Settle:    cfg.ClickSettle,
			MaxClicks: cfg.MaxBlockClicks,
			Plausible: plausible,
		},
		TextFallback{Window: cfg.TextWindow, MaxBytes: cfg.MaxTextBytes, Known: tiers},
	}
}

func known(all, pending []Tier) []Tier {
	if len(all) == 0 {
		return pending
	}
	return all
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
