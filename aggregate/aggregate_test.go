package aggregate

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/use-agent/pricewatch/models"
)

var tiers = []string{"Category 1", "Category 2", "Category 3", "Category 4"}

func result(cands ...models.Candidate) *models.ExtractionResult {
	res := models.NewExtractionResult("https://tickets.example.com/event/E-9?Currency=USD")
	for _, c := range cands {
		res.Add(c)
	}
	return res
}

func cand(tier string, amount float64) models.Candidate {
	return models.Candidate{Tier: tier, Amount: amount, RawAmount: amount, RawCurrency: "USD", Strategy: "text-fallback"}
}

func TestAggregate(t *testing.T) {
	run := models.RunBatch{
		ID:         "01J9Z3T7W0000000000000000",
		Source:     "worldcup",
		CapturedAt: time.Date(2026, 6, 11, 18, 0, 0, 0, time.UTC),
	}
	target := models.Target{
		Name: "Mexico vs South Africa",
		URL:  "https://tickets.example.com/event/E-9?lang=en&Currency=USD",
	}
	res := result(
		cand("Category 3", 180),
		cand("Category 1", 950),
		cand("Category 3", 150),
		cand("Category 1", 900),
		cand("Category 1", 1200),
	)

	tests := []struct {
		name      string
		selection string
		want      []models.PriceRecord
	}{
		{
			name:      "min",
			selection: SelectMin,
			want: []models.PriceRecord{
				record(run, target.Name, "Category 1", 900),
				record(run, target.Name, "Category 3", 150),
			},
		},
		{
			name:      "second min",
			selection: SelectSecondMin,
			want: []models.PriceRecord{
				record(run, target.Name, "Category 1", 950),
				record(run, target.Name, "Category 3", 180),
			},
		},
		{
			name:      "default is min",
			selection: "",
			want: []models.PriceRecord{
				record(run, target.Name, "Category 1", 900),
				record(run, target.Name, "Category 3", 150),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.selection, "USD", "Currency", tiers).Aggregate(res, target, run)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func record(run models.RunBatch, name, tier string, price float64) models.PriceRecord {
	return models.PriceRecord{
		RunID:      run.ID,
		TargetName: name,
		TargetURL:  "https://tickets.example.com/event/E-9?lang=en",
		Category:   tier,
		Price:      price,
		Currency:   "USD",
		CapturedAt: run.CapturedAt,
		Source:     run.Source,
	}
}

func TestAggregate_SecondMinFallsBack(t *testing.T) {
	a := New(SelectSecondMin, "USD", "", tiers)
	target := models.Target{Name: "Final", URL: "https://tickets.example.com/event/E-1"}

	got := a.Aggregate(result(cand("Category 2", 400), cand("Category 2", 400)), target, models.RunBatch{})
	if len(got) != 1 || got[0].Price != 400 {
		t.Fatalf("got %+v, want a single 400 record", got)
	}
	if got[0].TargetURL != target.URL {
		t.Errorf("URL changed without a currency param: %q", got[0].TargetURL)
	}
}

func TestAggregate_Empty(t *testing.T) {
	a := New(SelectMin, "USD", "Currency", tiers)
	target := models.Target{Name: "Final", URL: "https://tickets.example.com/event/E-1"}

	if got := a.Aggregate(nil, target, models.RunBatch{}); got != nil {
		t.Errorf("nil result produced %v", got)
	}
	if got := a.Aggregate(result(), target, models.RunBatch{}); got != nil {
		t.Errorf("empty result produced %v", got)
	}
}

func TestAggregate_UnorderedTiersSortLast(t *testing.T) {
	a := New(SelectMin, "USD", "", []string{"Category 2"})
	target := models.Target{Name: "Final", URL: "https://tickets.example.com/event/E-1"}

	got := a.Aggregate(result(cand("Hospitality", 3000), cand("Category 2", 400), cand("Accessible", 120)), target, models.RunBatch{})
	var cats []string
	for _, r := range got {
		cats = append(cats, r.Category)
	}
	want := []string{"Category 2", "Accessible", "Hospitality"}
	if diff := cmp.Diff(want, cats); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}
