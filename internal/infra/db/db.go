// Package db opens the history database and applies the versioned schema.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/bryanwahyu/viruslens/internal/infra/db/mysql"
	"github.com/bryanwahyu/viruslens/internal/infra/db/postgres"
	"github.com/bryanwahyu/viruslens/internal/infra/db/sqlite"
)

//go:embed migrations
var migrations embed.FS

// Dialect names a supported SQL backend.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// ParseDialect accepts the driver names used in config.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

func (d Dialect) goose() goose.Dialect {
	switch d {
	case MySQL:
		return goose.DialectMySQL
	case Postgres:
		return goose.DialectPostgres
	default:
		return goose.DialectSQLite3
	}
}

// Rebind converts ? placeholders to $1..$n for Postgres.
func (d Dialect) Rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LikeEscape is the ESCAPE clause for LIKE patterns built with a backslash.
// MySQL already treats backslash as the escape and rejects '\' as a literal.
func (d Dialect) LikeEscape() string {
	if d == MySQL {
		return ""
	}
	return ` ESCAPE '\'`
}

// Open connects to the configured backend. For SQLite, dsn is a file path.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	switch d {
	case MySQL:
		return mysql.Connect(ctx, dsn)
	case Postgres:
		return postgres.Connect(ctx, dsn)
	default:
		return sqlite.Connect(ctx, dsn)
	}
}

// Migrate applies all pending migrations for d. The applied version is kept
// in goose_db_version.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) (int64, error) {
	fsys, err := fs.Sub(migrations, "migrations/"+string(d))
	if err != nil {
		return 0, err
	}
	p, err := goose.NewProvider(d.goose(), db, fsys)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return 0, fmt.Errorf("migrate %s: %w", d, err)
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return v, nil
}
