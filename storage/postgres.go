package storage

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/use-agent/pricewatch/models"
)

//go:embed schema_postgres.sql
var postgresSchema string

// Postgres stores records in a shared database.
type Postgres struct {
	pool  *pgxpool.Pool
	batch int
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, maxConns, batch int) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storeError("parse postgres dsn", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storeError("connect postgres", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, storeError("apply postgres schema", err)
	}
	if batch <= 0 {
		batch = 200
	}
	return &Postgres{pool: pool, batch: batch}, nil
}

// Append queues inserts in batches. Duplicates of (run, URL, category)
// are ignored.
func (s *Postgres) Append(ctx context.Context, records []models.PriceRecord) error {
	for i := 0; i < len(records); i += s.batch {
		j := min(i+s.batch, len(records))
		b := &pgx.Batch{}
		for _, r := range records[i:j] {
			b.Queue(`INSERT INTO price_history
				(run_id, match_name, match_url, category, price, currency, captured_at, source)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (run_id, match_url, category) DO NOTHING`,
				r.RunID, r.TargetName, r.TargetURL, r.Category, r.Price, r.Currency, r.CapturedAt, r.Source,
			)
		}
		br := s.pool.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return storeError("insert", err)
			}
		}
		if err := br.Close(); err != nil {
			return storeError("insert", err)
		}
	}
	return nil
}

func (s *Postgres) Targets(ctx context.Context) ([]models.TargetSummary, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT ON (match_url)
			match_url, match_name,
			COUNT(*) OVER (PARTITION BY match_url),
			captured_at
		FROM price_history
		ORDER BY match_url, captured_at DESC`)
	if err != nil {
		return nil, storeError("query targets", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TargetSummary, error) {
		var t models.TargetSummary
		err := row.Scan(&t.URL, &t.Name, &t.Records, &t.LastSeen)
		return t, err
	})
	if err != nil {
		return nil, storeError("scan targets", err)
	}
	return out, nil
}

func (s *Postgres) History(ctx context.Context, url string) ([]models.PriceRecord, error) {
	pattern, exact := urlFilter(url)
	op := "LIKE"
	if exact {
		op = "="
	}
	rows, err := s.pool.Query(ctx, `SELECT run_id, match_name, match_url, category, price, currency, captured_at, source
		FROM price_history WHERE match_url `+op+` $1 ORDER BY captured_at, id`, pattern)
	if err != nil {
		return nil, storeError("query history", err)
	}
	all, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PriceRecord, error) {
		var r models.PriceRecord
		err := row.Scan(&r.RunID, &r.TargetName, &r.TargetURL, &r.Category, &r.Price, &r.Currency, &r.CapturedAt, &r.Source)
		return r, err
	})
	if err != nil {
		return nil, storeError("scan history", err)
	}
	return matchEvent(all, url), nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storeError("ping postgres", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
