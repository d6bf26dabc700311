package models

import "time"

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	Store   string `json:"store"`
	Version string `json:"version"`
}

// TargetsResponse is the response for GET /api/v1/targets.
type TargetsResponse struct {
	Success bool            `json:"success"`
	Targets []TargetSummary `json:"targets"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

// PricePoint is one observation in a category's price history.
type PricePoint struct {
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	CapturedAt time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// HistoryResponse is the response for GET /api/v1/history.
//
// Categories maps a tier name to its observations, oldest first.
type HistoryResponse struct {
	Success    bool                    `json:"success"`
	URL        string                  `json:"match_url"`
	Name       string                  `json:"match_name,omitempty"`
	Categories map[string][]PricePoint `json:"categories"`

	// CacheStatus indicates whether the response was served from cache.
	CacheStatus string       `json:"cache_status,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
}

// ErrorResponse is the body of any failed API call.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// NewHistoryResponse groups records by category.
func NewHistoryResponse(url string, records []PriceRecord) *HistoryResponse {
	resp := &HistoryResponse{
		Success:    true,
		URL:        url,
		Categories: make(map[string][]PricePoint),
	}
	for _, r := range records {
		if resp.Name == "" {
			resp.Name = r.TargetName
		}
		resp.Categories[r.Category] = append(resp.Categories[r.Category], PricePoint{
			Price:      r.Price,
			Currency:   r.Currency,
			CapturedAt: r.CapturedAt,
			Source:     r.Source,
		})
	}
	return resp
}
