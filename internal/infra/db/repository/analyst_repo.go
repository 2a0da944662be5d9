package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/viruslens/internal/domain/analyst"
	"github.com/bryanwahyu/viruslens/internal/domain/scans"
	"github.com/bryanwahyu/viruslens/internal/infra/db"
)

type AnalystRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewAnalystRepository(conn *sql.DB, d db.Dialect) *AnalystRepository {
	return &AnalystRepository{db: conn, dialect: d}
}

// Save inserts an analysis record
func (r *AnalystRepository) Save(ctx context.Context, a *analyst.Analysis) error {
	const q = `
INSERT INTO analyses (id, history_id, model, result, created_at)
VALUES (?,?,?,?,?)`
	result := a.Result
	if strings.TrimSpace(result) == "" {
		// result column expects JSON; use empty object
		result = "{}"
	}
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(q), string(a.ID), a.HistoryID, stringOrDash(a.Model), result, timestamp(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// ListByHistory returns analyses for one entry, newest first.
func (r *AnalystRepository) ListByHistory(ctx context.Context, historyID int64) ([]*analyst.Analysis, error) {
	const q = `
SELECT id, history_id, model, result, created_at
FROM analyses
WHERE history_id = ?
ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), historyID)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	out := []*analyst.Analysis{}
	for rows.Next() {
		var (
			a       analyst.Analysis
			id      string
			created string
		)
		if err := rows.Scan(&id, &a.HistoryID, &a.Model, &a.Result, &created); err != nil {
			return nil, err
		}
		a.ID = analyst.AnalysisID(id)
		if t, err := time.Parse(scans.TimestampLayout, created); err == nil {
			a.CreatedAt = t
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
