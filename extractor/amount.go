package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/use-agent/pricewatch/currency"
)

// Money is an amount found in page text, in its displayed currency.
type Money struct {
	Value    float64
	Currency string

	// Start and End are byte offsets of the match in the scanned text.
	Start, End int
}

const (
	symbolAlt = `US\$|\$|€|£|₪`
	codeAlt   = `USD|EUR|GBP|ILS|NIS`
	numberPat = `(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{1,2}))?`
)

// prefixPattern matches "$1,250", "US$ 300.50", "EUR 180".
var prefixPattern = regexp.MustCompile(`(?i)(` + symbolAlt + `|\b(?:` + codeAlt + `)\b)\s?` + numberPat)

// suffixPattern matches "450 €", "1200NIS".
var suffixPattern = regexp.MustCompile(`(?i)` + numberPat + `\s?(` + symbolAlt + `|(?:` + codeAlt + `)\b)`)

// parseAmounts returns every currency amount in text, in order. When a
// suffix match overlaps a prefix match the prefix reading wins, so the
// "1 $" in "Category 1 $150" is not taken for a price.
func parseAmounts(text string) []Money {
	var out []Money
	for _, m := range prefixPattern.FindAllStringSubmatchIndex(text, -1) {
		if money, ok := toMoney(group(text, m, 1), group(text, m, 2), group(text, m, 3), m); ok {
			out = append(out, money)
		}
	}
	prefixed := len(out)
	for _, m := range suffixPattern.FindAllStringSubmatchIndex(text, -1) {
		overlaps := false
		for _, p := range out[:prefixed] {
			if m[0] < p.End && p.Start < m[1] {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		if money, ok := toMoney(group(text, m, 3), group(text, m, 1), group(text, m, 2), m); ok {
			out = append(out, money)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func toMoney(sym, whole, frac string, m []int) (Money, bool) {
	num := strings.ReplaceAll(whole, ",", "")
	if frac != "" {
		num += "." + frac
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Money{}, false
	}
	return Money{Value: v, Currency: currency.Code(sym), Start: m[0], End: m[1]}, true
}

func group(s string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return s[m[2*i]:m[2*i+1]]
}
