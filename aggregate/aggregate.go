// Package aggregate turns one page visit's candidates into price records.
package aggregate

import (
	"sort"

	"github.com/use-agent/pricewatch/models"
)

// Selection policies.
const (
	SelectMin       = "min"
	SelectSecondMin = "second-min"
)

// Aggregator picks one price per tier. It holds no state between calls.
type Aggregator struct {
	selection     string
	currency      string
	currencyParam string
	tierOrder     []string
}

// New builds an Aggregator. tierOrder fixes the order of emitted records;
// tiers missing from it sort after it by name.
func New(selection, targetCurrency, currencyParam string, tierOrder []string) *Aggregator {
	if selection == "" {
		selection = SelectMin
	}
	return &Aggregator{
		selection:     selection,
		currency:      targetCurrency,
		currencyParam: currencyParam,
		tierOrder:     tierOrder,
	}
}

// Aggregate emits at most one record per resolved tier. An empty result
// yields nil.
func (a *Aggregator) Aggregate(res *models.ExtractionResult, target models.Target, run models.RunBatch) []models.PriceRecord {
	if res == nil || res.Empty() {
		return nil
	}

	url := target.URL
	if a.currencyParam != "" {
		url = models.StripParam(url, a.currencyParam)
	}

	var out []models.PriceRecord
	for _, tier := range a.order(res) {
		price, ok := a.pick(res.Candidates[tier])
		if !ok {
			continue
		}
		out = append(out, models.PriceRecord{
			RunID:      run.ID,
			TargetName: target.Name,
			TargetURL:  url,
			Category:   tier,
			Price:      price,
			Currency:   a.currency,
			CapturedAt: run.CapturedAt,
			Source:     run.Source,
		})
	}
	return out
}

func (a *Aggregator) order(res *models.ExtractionResult) []string {
	seen := make(map[string]bool, len(res.Candidates))
	out := make([]string, 0, len(res.Candidates))
	for _, t := range a.tierOrder {
		if _, ok := res.Candidates[t]; ok && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	var rest []string
	for t := range res.Candidates {
		if !seen[t] {
			rest = append(rest, t)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// pick applies the selection policy. second-min takes the second lowest
// distinct amount and falls back to the minimum.
func (a *Aggregator) pick(cands []models.Candidate) (float64, bool) {
	if len(cands) == 0 {
		return 0, false
	}
	amounts := make([]float64, len(cands))
	for i, c := range cands {
		amounts[i] = c.Amount
	}
	sort.Float64s(amounts)

	if a.selection == SelectSecondMin {
		for _, v := range amounts[1:] {
			if v > amounts[0] {
				return v, true
			}
		}
	}
	return amounts[0], true
}
