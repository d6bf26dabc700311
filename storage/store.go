// Package storage persists price records and answers history queries.
// Records are append-only; no store ever updates or deletes one.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
)

// Appender persists a batch of records.
type Appender interface {
	Append(ctx context.Context, records []models.PriceRecord) error
}

// Reader answers history queries.
type Reader interface {
	Targets(ctx context.Context) ([]models.TargetSummary, error)

	// History returns every record for the event url points at, oldest first.
	History(ctx context.Context, url string) ([]models.PriceRecord, error)
}

// Store is a complete persistence backend.
type Store interface {
	Appender
	Reader
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "jsonfile", "json":
		return NewJSONFile(cfg.Path), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, cfg.DSN, cfg.MaxConns, cfg.BatchSize)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func storeError(op string, err error) error {
	return models.NewScrapeError(models.ErrCodeStore, op, err)
}

// summarize groups records into per-URL target summaries ordered by URL.
func summarize(records []models.PriceRecord) []models.TargetSummary {
	byURL := make(map[string]*models.TargetSummary)
	for _, r := range records {
		s, ok := byURL[r.TargetURL]
		if !ok {
			s = &models.TargetSummary{URL: r.TargetURL}
			byURL[r.TargetURL] = s
		}
		s.Records++
		if !r.CapturedAt.Before(s.LastSeen) {
			s.LastSeen = r.CapturedAt
			s.Name = r.TargetName
		}
	}
	out := make([]models.TargetSummary, 0, len(byURL))
	for _, s := range byURL {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// matchEvent keeps the records that belong to the same event as url.
func matchEvent(records []models.PriceRecord, url string) []models.PriceRecord {
	var out []models.PriceRecord
	for _, r := range records {
		if models.SameEvent(r.TargetURL, url) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out
}

// urlFilter returns a SQL LIKE pattern narrowing candidates for url. The
// result still needs matchEvent.
func urlFilter(url string) (pattern string, exact bool) {
	if id := models.EventID(url); id != "" {
		return "%" + id + "%", false
	}
	return url, true
}
