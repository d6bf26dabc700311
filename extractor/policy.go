package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/use-agent/pricewatch/config"
)

var blockNumber = regexp.MustCompile(`\d+`)

// BlockPolicy maps seating block identifiers to tiers for one venue.
type BlockPolicy struct {
	ranges  []config.BlockRange
	markers []marker
}

type marker struct {
	needle string
	tier   string
}

// NewBlockPolicy compiles a policy. Markers are tried longest first.
func NewBlockPolicy(cfg config.BlockPolicyConfig) BlockPolicy {
	p := BlockPolicy{ranges: cfg.Ranges}
	for needle, tier := range cfg.Markers {
		p.markers = append(p.markers, marker{needle: strings.ToLower(needle), tier: tier})
	}
	sort.Slice(p.markers, func(i, j int) bool {
		if len(p.markers[i].needle) != len(p.markers[j].needle) {
			return len(p.markers[i].needle) > len(p.markers[j].needle)
		}
		return p.markers[i].needle < p.markers[j].needle
	})
	return p
}

// TierFor maps a block id ("Block 112", "section-214", "VIP Lounge") to a tier.
func (p BlockPolicy) TierFor(blockID string) (string, bool) {
	id := strings.ToLower(blockID)
	for _, m := range p.markers {
		if strings.Contains(id, m.needle) {
			return m.tier, true
		}
	}
	digits := blockNumber.FindString(id)
	if digits == "" {
		return "", false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return "", false
	}
	for _, r := range p.ranges {
		if n >= r.From && (r.To == 0 || n <= r.To) {
			return r.Tier, true
		}
	}
	return "", false
}

// PolicySet resolves the block policy for a host.
type PolicySet struct {
	byHost map[string]BlockPolicy
}

// NewPolicySet compiles per-host policies. The "default" entry applies to
// hosts without their own.
func NewPolicySet(cfg map[string]config.BlockPolicyConfig) PolicySet {
	s := PolicySet{byHost: make(map[string]BlockPolicy, len(cfg))}
	for host, pc := range cfg {
		s.byHost[strings.ToLower(host)] = NewBlockPolicy(pc)
	}
	return s
}

// For returns the policy for host, trying parent domains before the default.
func (s PolicySet) For(host string) (BlockPolicy, bool) {
	h := strings.ToLower(host)
	for h != "" {
		if p, ok := s.byHost[h]; ok {
			return p, true
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	p, ok := s.byHost["default"]
	return p, ok
}
