package models

// Candidate is one accepted price for a tier, already normalized into the
// target currency.
type Candidate struct {
	Tier        string
	Amount      float64
	RawAmount   float64
	RawCurrency string
	Strategy    string
}

// ExtractionResult collects the candidates found on one page visit.
type ExtractionResult struct {
	URL         string
	Candidates  map[string][]Candidate
	ResolvedBy  map[string]string
	Fingerprint uint64
}

// NewExtractionResult returns an empty result for url.
func NewExtractionResult(url string) *ExtractionResult {
	return &ExtractionResult{
		URL:        url,
		Candidates: make(map[string][]Candidate),
		ResolvedBy: make(map[string]string),
	}
}

// Add records a candidate. The first strategy to contribute a candidate
// for a tier is remembered as its resolver.
func (r *ExtractionResult) Add(c Candidate) {
	r.Candidates[c.Tier] = append(r.Candidates[c.Tier], c)
	if _, ok := r.ResolvedBy[c.Tier]; !ok {
		r.ResolvedBy[c.Tier] = c.Strategy
	}
}

// Resolved reports whether tier has at least one candidate.
func (r *ExtractionResult) Resolved(tier string) bool {
	return len(r.Candidates[tier]) > 0
}

// Empty reports whether no tier was resolved.
func (r *ExtractionResult) Empty() bool {
	for _, cs := range r.Candidates {
		if len(cs) > 0 {
			return false
		}
	}
	return true
}
