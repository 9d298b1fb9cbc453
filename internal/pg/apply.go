package pg

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// applyScript runs a (possibly multi-statement) script. Scripts are expected
// to be idempotent; duplicate_object / duplicate_table are logged and ignored.
func applyScript(ctx context.Context, db *sql.DB, script string) error {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil
	}
	if _, err := db.ExecContext(ctx, script); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "42710" || pgErr.Code == "42P07") {
			log.Printf("DDL skipped (already exists): %s (%s)", pgErr.ConstraintName, strings.TrimSpace(pgErr.Message))
			return nil
		}
		return wrapError("", err)
	}
	return nil
}
