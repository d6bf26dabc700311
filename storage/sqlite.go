package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/use-agent/pricewatch/models"
)

//go:embed schema.sql
var sqliteSchema string

// SQLite stores records in a local database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeError("open sqlite", err)
	}
	// One writer; an in-memory database also lives on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, storeError("apply sqlite schema", err)
	}
	return &SQLite{db: db}, nil
}

// Append inserts records in one transaction. A record already present for
// the same run, URL and category is ignored.
func (s *SQLite) Append(ctx context.Context, records []models.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO price_history
		(run_id, match_name, match_url, category, price, currency, captured_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storeError("prepare insert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.TargetName, r.TargetURL, r.Category, r.Price, r.Currency,
			r.CapturedAt.UTC().Format(time.RFC3339), r.Source,
		); err != nil {
			return storeError("insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit", err)
	}
	return nil
}

func (s *SQLite) Targets(ctx context.Context) ([]models.TargetSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT match_url, match_name, COUNT(*), MAX(captured_at)
		FROM price_history GROUP BY match_url ORDER BY match_url`)
	if err != nil {
		return nil, storeError("query targets", err)
	}
	defer rows.Close()

	var out []models.TargetSummary
	for rows.Next() {
		var (
			t    models.TargetSummary
			last string
		)
		if err := rows.Scan(&t.URL, &t.Name, &t.Records, &last); err != nil {
			return nil, storeError("scan target", err)
		}
		if t.LastSeen, err = time.Parse(time.RFC3339, last); err != nil {
			return nil, storeError("parse captured_at", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("query targets", err)
	}
	return out, nil
}

func (s *SQLite) History(ctx context.Context, url string) ([]models.PriceRecord, error) {
	pattern, exact := urlFilter(url)
	query := `SELECT run_id, match_name, match_url, category, price, currency, captured_at, source
		FROM price_history WHERE match_url LIKE ? ORDER BY captured_at, id`
	if exact {
		query = `SELECT run_id, match_name, match_url, category, price, currency, captured_at, source
		FROM price_history WHERE match_url = ? ORDER BY captured_at, id`
	}
	rows, err := s.db.QueryContext(ctx, query, pattern)
	if err != nil {
		return nil, storeError("query history", err)
	}
	defer rows.Close()

	var all []models.PriceRecord
	for rows.Next() {
		var (
			r        models.PriceRecord
			captured string
		)
		if err := rows.Scan(&r.RunID, &r.TargetName, &r.TargetURL, &r.Category, &r.Price, &r.Currency, &captured, &r.Source); err != nil {
			return nil, storeError("scan record", err)
		}
		if r.CapturedAt, err = time.Parse(time.RFC3339, captured); err != nil {
			return nil, storeError("parse captured_at", fmt.Errorf("%q: %w", captured, err))
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("query history", err)
	}
	return matchEvent(all, url), nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeError("ping sqlite", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
