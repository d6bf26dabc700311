package extractor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/use-agent/pricewatch/config"
)

// Tier is a compiled price category.
type Tier struct {
	Name string

	// Source is the case-insensitive pattern without flags. It is valid in
	// both Go and JavaScript regular expressions.
	Source  string
	pattern *regexp.Regexp
}

// Match reports whether s mentions the tier.
func (t Tier) Match(s string) bool { return t.pattern.MatchString(s) }

// CompileTiers builds tier patterns from their names and aliases.
// "Category 1" matches "category 1", "CATEGORY1" and "Category 1 Premium",
// but not "Category 10".
func CompileTiers(cfg []config.TierConfig) ([]Tier, error) {
	tiers := make([]Tier, 0, len(cfg))
	for _, tc := range cfg {
		tokens := append([]string{tc.Name}, tc.Aliases...)
		alts := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if p := tokenPattern(tok); p != "" {
				alts = append(alts, p)
			}
		}
		if len(alts) == 0 {
			return nil, fmt.Errorf("tier %q has no usable label", tc.Name)
		}
		src := "(?:" + strings.Join(alts, "|") + ")"
		re, err := regexp.Compile("(?i)" + src)
		if err != nil {
			return nil, fmt.Errorf("tier %q: %w", tc.Name, err)
		}
		tiers = append(tiers, Tier{Name: tc.Name, Source: src, pattern: re})
	}
	return tiers, nil
}

func tokenPattern(tok string) string {
	fields := strings.Fields(tok)
	if len(fields) == 0 {
		return ""
	}
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	p := strings.Join(fields, `\s*`)
	if r, _ := utf8.DecodeRuneInString(tok); isWord(r) {
		p = `\b` + p
	}
	if r, _ := utf8.DecodeLastRuneInString(strings.TrimSpace(tok)); isWord(r) {
		p += `\b`
	}
	return p
}

func isWord(r rune) bool {
	return r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

type tierMatch struct {
	tier       int
	start, end int
}

// tierMatches returns every tier label in text ordered by position.
func tierMatches(text string, tiers []Tier) []tierMatch {
	var out []tierMatch
	for i, t := range tiers {
		for _, m := range t.pattern.FindAllStringIndex(text, -1) {
			out = append(out, tierMatch{tier: i, start: m[0], end: m[1]})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].start < out[b].start })
	return out
}

// amountNear finds the amount belonging to target in text. The tier's
// segment runs from the previous label of another known tier to the next
// one. An amount after the label wins over one before it.
func amountNear(text string, known []Tier, target Tier) (Money, bool) {
	tiers := withTier(known, target)
	idx := 0
	for i, t := range tiers {
		if t.Name == target.Name {
			idx = i
			break
		}
	}
	all := tierMatches(text, tiers)
	for i, m := range all {
		if m.tier != idx {
			continue
		}
		lo, hi := 0, len(text)
		for j := i - 1; j >= 0; j-- {
			if all[j].tier != idx {
				lo = all[j].end
				break
			}
		}
		for j := i + 1; j < len(all); j++ {
			if all[j].tier != idx {
				hi = all[j].start
				break
			}
		}
		if lo > m.start {
			lo = m.start
		}

		after := parseAmounts(text[m.end:hi])
		if len(after) > 0 {
			return after[0], true
		}
		before := parseAmounts(text[lo:m.start])
		if len(before) > 0 {
			return before[len(before)-1], true
		}
	}
	return Money{}, false
}

// withTier returns known, adding t if it is missing.
func withTier(known []Tier, t Tier) []Tier {
	for _, k := range known {
		if k.Name == t.Name {
			return known
		}
	}
	out := make([]Tier, 0, len(known)+1)
	out = append(out, known...)
	return append(out, t)
}

// windowAfter returns the byte offset n runes past from, capped at limit.
func windowAfter(s string, from, n, limit int) int {
	i := from
	for k := 0; k < n && i < limit; k++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	if i > limit {
		return limit
	}
	return i
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
