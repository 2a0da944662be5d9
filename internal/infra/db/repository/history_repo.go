package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bryanwahyu/viruslens/internal/domain/scans"
	"github.com/bryanwahyu/viruslens/internal/infra/db"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// HistoryRepository implements scans.Repository on top of database/sql.
type HistoryRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewHistoryRepository(conn *sql.DB, d db.Dialect) *HistoryRepository {
	return &HistoryRepository{db: conn, dialect: d}
}

// Record inserts one append-only row and returns its id.
func (r *HistoryRepository) Record(ctx context.Context, e scans.NewEntry) (int64, error) {
	detail := e.Detail
	if detail == nil {
		detail = scans.DetailRecord{}
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return 0, fmt.Errorf("encode detail: %w", err)
	}
	args := []any{
		e.InputValue,
		e.ScanType,
		e.RiskScore,
		scans.TruncateSummary(e.Summary),
		string(raw),
		timestamp(e.CreatedAt),
	}

	const q = `
INSERT INTO scan_history (input, scan_type, risk_score, summary, detail, created_at)
VALUES (?,?,?,?,?,?)`

	if r.dialect == db.Postgres {
		var id int64
		if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(q)+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert history: %w", err)
		}
		return id, nil
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert history id: %w", err)
	}
	return id, nil
}

// where builds the shared WHERE clause for List/Count.
func (r *HistoryRepository) where(f scans.HistoryFilter) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(" WHERE 1=1")
	if f.ScanType != "" {
		sb.WriteString(" AND scan_type = ?")
		args = append(args, f.ScanType)
	}
	if f.Risk != "" {
		sb.WriteString(" AND risk_score = ?")
		args = append(args, f.Risk)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		sb.WriteString(" AND input LIKE ?" + r.dialect.LikeEscape())
		args = append(args, "%"+escapeLikePattern(q)+"%")
	}
	return sb.String(), args
}

// List returns entries newest first (id DESC).
func (r *HistoryRepository) List(ctx context.Context, f scans.HistoryFilter) ([]*scans.HistoryEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	where, args := r.where(f)
	q := `SELECT id, input, scan_type, summary, risk_score, detail, created_at FROM scan_history` +
		where + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []*scans.HistoryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count with the same filters as List (limit/offset ignored).
func (r *HistoryRepository) Count(ctx context.Context, f scans.HistoryFilter) (int64, error) {
	where, args := r.where(f)
	var n int64
	if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM scan_history`+where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Get by id, scans.ErrNotFound when missing.
func (r *HistoryRepository) Get(ctx context.Context, id int64) (*scans.HistoryEntry, error) {
	const q = `SELECT id, input, scan_type, summary, risk_score, detail, created_at FROM scan_history WHERE id = ?`
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(q), id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, scans.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Clear deletes every entry and returns how many were removed.
// Both deletes run in one transaction; a failure leaves every row in place.
func (r *HistoryRepository) Clear(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("clear history: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM analyses`); err != nil {
		return 0, fmt.Errorf("clear analyses: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM scan_history`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("clear history: commit: %w", err)
	}
	return n, nil
}

// Ping dipakai health check
func (r *HistoryRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*scans.HistoryEntry, error) {
	var (
		e      scans.HistoryEntry
		detail string
	)
	if err := s.Scan(&e.ID, &e.InputValue, &e.ScanType, &e.Summary, &e.RiskScore, &detail, &e.Timestamp); err != nil {
		return nil, err
	}
	e.Detail = scans.DetailRecord{}
	if strings.TrimSpace(detail) != "" {
		if err := json.Unmarshal([]byte(detail), &e.Detail); err != nil {
			return nil, fmt.Errorf("decode detail of entry %d: %w", e.ID, err)
		}
	}
	return &e, nil
}
