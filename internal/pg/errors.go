package pg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrExecutorUnavailable is matched by *ExecutorUnavailableError.
var ErrExecutorUnavailable = errors.New("sql executor unavailable")

const remediation = "connect with a role that may CREATE in the current schema " +
	"(e.g. GRANT CREATE ON SCHEMA public TO <role>) and make sure the uuid-ossp and pgcrypto " +
	"extensions are installed or installable by that role; apiforge does not install privileged objects itself"

type ExecutorUnavailableError struct {
	Cause       error
	Remediation string
}

func (e *ExecutorUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sql executor unavailable: %v", e.Cause)
	}
	return "sql executor unavailable"
}

func (e *ExecutorUnavailableError) Is(target error) bool { return target == ErrExecutorUnavailable }
func (e *ExecutorUnavailableError) Unwrap() error        { return e.Cause }

// MaterializationError means every creation strategy left tables missing.
type MaterializationError struct {
	Missing []string
	Cause   error
}

func (e *MaterializationError) Error() string {
	msg := "materialization failed, missing tables: " + strings.Join(e.Missing, ", ")
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *MaterializationError) Unwrap() error { return e.Cause }

// QueryError carries the physical table and SQLSTATE of a driver error.
type QueryError struct {
	Table   string
	Code    string
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Table, e.Message, e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *QueryError) Unwrap() error { return e.Err }

func wrapError(table string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	out := &QueryError{Table: table, Message: err.Error(), Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		out.Code = pgErr.Code
		out.Message = pgErr.Message
		if pgErr.TableName != "" && table == "" {
			out.Table = pgErr.TableName
		}
	}
	return out
}
