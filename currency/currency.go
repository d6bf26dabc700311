// Package currency converts extracted amounts into the configured target
// currency using a static rate table.
package currency

import (
	"math"
	"strings"

	"github.com/use-agent/pricewatch/config"
)

// symbols maps display symbols and aliases to ISO codes.
var symbols = map[string]string{
	"$":   "USD",
	"US$": "USD",
	"€":   "EUR",
	"£":   "GBP",
	"₪":   "ILS",
	"NIS": "ILS",
}

// Code returns the ISO code for a symbol, alias or code. Unknown input is
// returned upper-cased.
func Code(s string) string {
	s = strings.TrimSpace(s)
	up := strings.ToUpper(s)
	if code, ok := symbols[up]; ok {
		return code
	}
	if code, ok := symbols[s]; ok {
		return code
	}
	return up
}

// Normalizer converts amounts into one target currency. It is stateless
// and safe for concurrent use.
type Normalizer struct {
	target string
	rates  map[string]float64 // USD per unit
}

// NewNormalizer builds a Normalizer from the pricing configuration.
func NewNormalizer(cfg config.PricingConfig) *Normalizer {
	rates := make(map[string]float64, len(cfg.Rates))
	for code, r := range cfg.Rates {
		rates[strings.ToUpper(code)] = r
	}
	return &Normalizer{target: Code(cfg.TargetCurrency), rates: rates}
}

// Target returns the target currency code.
func (n *Normalizer) Target() string {
	return n.target
}

// Convert returns amount expressed in the target currency. ok is false when
// code has no rate, in which case amount is returned unchanged.
func (n *Normalizer) Convert(amount float64, code string) (float64, bool) {
	code = Code(code)
	if code == n.target || code == "" {
		return amount, true
	}
	from, ok := n.rates[code]
	if !ok {
		return amount, false
	}
	to, ok := n.rates[n.target]
	if !ok || to == 0 {
		return amount, false
	}
	return roundCents(amount * from / to), true
}

// Normalize is Convert without the known-rate report.
func (n *Normalizer) Normalize(amount float64, code string) float64 {
	v, _ := n.Convert(amount, code)
	return v
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
