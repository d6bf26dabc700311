package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
)

// stubStrategy returns canned amounts and records the tiers it was asked for.
type stubStrategy struct {
	name    string
	amounts []Amount
	err     error
	panics  bool

	calls [][]string
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Resolve(_ context.Context, _ Page, tiers []Tier) ([]Amount, error) {
	names := make([]string, len(tiers))
	for i, t := range tiers {
		names[i] = t.Name
	}
	s.calls = append(s.calls, names)
	if s.panics {
		panic("boom")
	}
	return s.amounts, s.err
}

func usd(tier string, v float64) Amount {
	return Amount{Tier: tier, Money: Money{Value: v, Currency: "USD"}}
}

func testPricing() config.PricingConfig {
	return config.PricingConfig{
		TargetCurrency: "USD",
		Rates:          config.DefaultRates(),
		MinPrice:       100,
		MaxPrice:       15000,
	}
}

func newTestExtractor(t *testing.T, strategies ...Strategy) *Extractor {
	t.Helper()
	return NewWithStrategies(defaultTiers(t), strategies, testPricing(), nil)
}

func TestExtractPage_ShortCircuits(t *testing.T) {
	first := &stubStrategy{name: "first", amounts: []Amount{
		usd("Category 1", 500), usd("Category 2", 300), usd("Category 3", 200), usd("Category 4", 150),
	}}
	second := &stubStrategy{name: "second"}
	e := newTestExtractor(t, first, second)

	res, err := e.ExtractPage(context.Background(), &fakePage{url: "https://t.example.com/e/E-1"})
	require.NoError(t, err)
	assert.Empty(t, second.calls, "later strategy ran after every tier resolved")
	assert.Equal(t, "first", res.ResolvedBy["Category 4"])
	assert.Equal(t, "https://t.example.com/e/E-1", res.URL)
}

func TestExtractPage_PassesOnlyPendingTiers(t *testing.T) {
	first := &stubStrategy{name: "first", amounts: []Amount{usd("Category 1", 500), usd("Category 3", 200)}}
	second := &stubStrategy{name: "second", amounts: []Amount{
		usd("Category 1", 120),
		usd("Category 2", 300),
	}}
	e := newTestExtractor(t, first, second)

	res, err := e.ExtractPage(context.Background(), &fakePage{})
	require.NoError(t, err)
	require.Len(t, second.calls, 1)
	assert.Equal(t, []string{"Category 2", "Category 4"}, second.calls[0])

	require.Len(t, res.Candidates["Category 1"], 1, "resolved tier took a later candidate")
	assert.Equal(t, 500.0, res.Candidates["Category 1"][0].Amount)
	assert.Equal(t, "second", res.ResolvedBy["Category 2"])
}

func TestExtractPage_NormalizesAndFilters(t *testing.T) {
	first := &stubStrategy{name: "first", amounts: []Amount{
		{Tier: "Category 1", Money: Money{Value: 1000, Currency: "ILS"}},
		{Tier: "Category 2", Money: Money{Value: 40, Currency: "USD"}},
		{Tier: "Category 3", Money: Money{Value: 90000, Currency: "USD"}},
		{Tier: "Unknown", Money: Money{Value: 300, Currency: "USD"}},
	}}
	second := &stubStrategy{name: "second", amounts: []Amount{usd("Category 2", 220)}}
	e := newTestExtractor(t, first, second)

	res, err := e.ExtractPage(context.Background(), &fakePage{})
	require.NoError(t, err)

	c := res.Candidates["Category 1"]
	require.Len(t, c, 1)
	assert.Equal(t, 280.0, c[0].Amount)
	assert.Equal(t, 1000.0, c[0].RawAmount)
	assert.Equal(t, "ILS", c[0].RawCurrency)

	assert.Equal(t, "second", res.ResolvedBy["Category 2"], "implausible amount resolved a tier")
	assert.False(t, res.Resolved("Category 3"))
	assert.NotContains(t, res.Candidates, "Unknown")
}

func TestExtractPage_PanicIsLocal(t *testing.T) {
	bad := &stubStrategy{name: "bad", panics: true}
	good := &stubStrategy{name: "good", amounts: []Amount{usd("Category 1", 500)}}
	e := newTestExtractor(t, bad, good)

	res, err := e.ExtractPage(context.Background(), &fakePage{})
	require.NoError(t, err)
	assert.Len(t, good.calls, 1)
	assert.True(t, res.Resolved("Category 1"))
}

func TestExtractPage_LocalErrorKeepsPartialAmounts(t *testing.T) {
	first := &stubStrategy{name: "first", amounts: []Amount{usd("Category 1", 500)}, err: errors.New("selector timeout")}
	second := &stubStrategy{name: "second"}
	e := newTestExtractor(t, first, second)

	res, err := e.ExtractPage(context.Background(), &fakePage{})
	require.NoError(t, err)
	assert.True(t, res.Resolved("Category 1"))
	assert.Len(t, second.calls, 1)
}

func TestExtractPage_FatalStopsCascade(t *testing.T) {
	fatal := models.NewScrapeError(models.ErrCodeTransportFatal, "target crashed", nil)
	first := &stubStrategy{name: "first", amounts: []Amount{usd("Category 1", 500)}, err: fatal}
	second := &stubStrategy{name: "second"}
	e := newTestExtractor(t, first, second)

	res, err := e.ExtractPage(context.Background(), &fakePage{})
	require.Error(t, err)
	assert.True(t, models.IsTransportFatal(err))
	assert.Empty(t, second.calls)
	require.NotNil(t, res)
	assert.True(t, res.Resolved("Category 1"))
}

func TestExtractPage_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	first := &stubStrategy{name: "first", err: context.Canceled}
	second := &stubStrategy{name: "second"}
	e := newTestExtractor(t, first, second)

	_, err := e.ExtractPage(ctx, &fakePage{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, second.calls)
}

func TestExtractPage_Fingerprint(t *testing.T) {
	e := newTestExtractor(t)
	res, err := e.ExtractPage(context.Background(), &fakePage{markup: eventHTML})
	require.NoError(t, err)
	assert.NotZero(t, res.Fingerprint)
	assert.True(t, res.Empty())
}

func TestExtract_DefaultCascadeOverHTML(t *testing.T) {
	e, err := New(testExtractorConfig(), testPricing(), nil)
	require.NoError(t, err)

	p, err := NewHTMLPage("https://tickets.example.com/event/E-7", eventHTML, testExtractorConfig())
	require.NoError(t, err)

	res, err := e.ExtractPage(context.Background(), p)
	require.NoError(t, err)

	want := map[string]struct {
		amount   float64
		strategy string
	}{
		"Category 1": {250, "structured-label"},
		"Category 2": {315, "structured-label"},
		"Category 3": {450, "anchor-context"},
		"Category 4": {336, "text-fallback"},
	}
	for tier, w := range want {
		c := res.Candidates[tier]
		require.NotEmpty(t, c, tier)
		assert.Equal(t, w.amount, c[0].Amount, tier)
		assert.Equal(t, w.strategy, res.ResolvedBy[tier], tier)
	}
}

func TestExtract_NoOpener(t *testing.T) {
	e := newTestExtractor(t)
	_, err := e.Extract(context.Background(), nil)
	assert.Error(t, err)
}

func TestExtract_BlockTierKeepsClickingPastImplausiblePrice(t *testing.T) {
	e, err := New(testExtractorConfig(), testPricing(), nil)
	require.NoError(t, err)

	p := &fakePage{
		url:    "https://tickets.example.com/event/E-1",
		blocks: []Block{{ID: "Block 101"}, {ID: "Block 102"}},
		prices: map[string]string{
			"Block 101": "Fee: $5",
			"Block 102": "$400",
		},
	}
	res, err := e.ExtractPage(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []string{"Block 101", "Block 102"}, p.clicked)
	require.True(t, res.Resolved("Category 1"))
	assert.Equal(t, 400.0, res.Candidates["Category 1"][0].Amount)
	assert.Equal(t, "block-tier", res.ResolvedBy["Category 1"])
}
