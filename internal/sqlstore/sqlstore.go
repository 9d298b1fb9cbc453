// Package sqlstore holds what the registry and audit stores share across
// PostgreSQL and SQLite: placeholder style, column types and opening SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

type Dialect struct {
	Name     string
	JSONType string
	TimeType string
	numbered bool
}

var (
	Postgres = Dialect{Name: "postgres", JSONType: "jsonb", TimeType: "timestamptz", numbered: true}
	SQLite   = Dialect{Name: "sqlite", JSONType: "text", TimeType: "timestamp"}
)

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Placeholders returns n comma-separated bind parameters starting at 1.
func (d Dialect) Placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

func Quote(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` }

// OpenSQLite opens a single-connection SQLite database. path may be a file
// path or a file: URI.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if !strings.Contains(dsn, "_pragma=busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}
