package extractor

import (
	"testing"

	"github.com/use-agent/pricewatch/config"
)

func TestParseAmounts(t *testing.T) {
	type want struct {
		value float64
		code  string
	}
	tests := []struct {
		name string
		text string
		want []want
	}{
		{"prefix symbol", "from $250", []want{{250, "USD"}}},
		{"thousands and cents", "US$ 1,250.50 each", []want{{1250.50, "USD"}}},
		{"suffix symbol", "450 € per seat", []want{{450, "EUR"}}},
		{"code both sides", "EUR 180 or 1200NIS", []want{{180, "EUR"}, {1200, "ILS"}}},
		{"tier number before symbol", "Category 1 $150", []want{{150, "USD"}}},
		{"shekel", "₪900", []want{{900, "ILS"}}},
		{"lowercase code", "usd 300", []want{{300, "USD"}}},
		{"bare numbers", "Gate 12 opens at 18:00 in 2026", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAmounts(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("parseAmounts(%q) = %+v, want %d amounts", tt.text, got, len(tt.want))
			}
			for i, w := range tt.want {
				if got[i].Value != w.value || got[i].Currency != w.code {
					t.Errorf("amount %d = %v %s, want %v %s", i, got[i].Value, got[i].Currency, w.value, w.code)
				}
			}
		})
	}
}

func TestCompileTiers(t *testing.T) {
	tiers, err := CompileTiers(config.DefaultTiers())
	if err != nil {
		t.Fatalf("CompileTiers: %v", err)
	}
	cat1, cat2 := tiers[0], tiers[1]

	tests := []struct {
		tier Tier
		text string
		want bool
	}{
		{cat1, "Category 1", true},
		{cat1, "CATEGORY1", true},
		{cat1, "category 1 premium", true},
		{cat1, "Cat. 1 seats", true},
		{cat1, "Category 10", false},
		{cat1, "Category 2", false},
		{cat2, "cat 2", true},
		{cat2, "Scat 2", false},
	}
	for _, tt := range tests {
		if got := tt.tier.Match(tt.text); got != tt.want {
			t.Errorf("%s.Match(%q) = %v, want %v", tt.tier.Name, tt.text, got, tt.want)
		}
	}
}

func TestCompileTiers_EmptyLabel(t *testing.T) {
	if _, err := CompileTiers([]config.TierConfig{{Name: "  "}}); err == nil {
		t.Error("expected error for a tier without a usable label")
	}
}

func TestAmountNear(t *testing.T) {
	tiers, err := CompileTiers(config.DefaultTiers())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		text   string
		target int
		want   float64
		found  bool
	}{
		{"after label", "Category 1 from $250 Category 2 from $180", 1, 180, true},
		{"segment bounded by next tier", "Category 1 sold out Category 2 $180", 0, 0, false},
		{"before label", "$320 Category 3", 2, 320, true},
		{"after wins over before", "$90 Category 4 $410", 3, 410, true},
		{"absent tier", "Category 1 $250", 2, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := amountNear(tt.text, tiers, tiers[tt.target])
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if ok && m.Value != tt.want {
				t.Errorf("amount = %v, want %v", m.Value, tt.want)
			}
		})
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := "€€€"
	if got := truncateUTF8(s, 4); got != "€" {
		t.Errorf("truncateUTF8 = %q, want %q", got, "€")
	}
	if got := truncateUTF8(s, 0); got != s {
		t.Errorf("non-positive limit should keep the input, got %q", got)
	}
}

func TestWindowAfter(t *testing.T) {
	s := "ab€cd"
	if got := windowAfter(s, 0, 3, len(s)); got != 5 {
		t.Errorf("windowAfter = %d, want 5", got)
	}
	if got := windowAfter(s, 0, 10, 4); got != 4 {
		t.Errorf("windowAfter should stop at limit, got %d", got)
	}
}
