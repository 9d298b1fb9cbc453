package pg

import (
	"context"
	"database/sql"
	"encoding/json"
)

// Executor runs DDL scripts and ad-hoc queries. Implementations must accept
// multi-statement scripts including do-blocks.
type Executor interface {
	Exec(ctx context.Context, script string) error
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

// Querier runs builder queries against a physical table.
type Querier interface {
	Run(ctx context.Context, q *Query) ([]map[string]any, error)
	Count(ctx context.Context, q *Query) (int64, error)
}

// Client is the database/sql backed Executor and Querier.
type Client struct {
	db *sql.DB
}

func NewClient(db *sql.DB) *Client { return &Client{db: db} }

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Exec(ctx context.Context, script string) error {
	return applyScript(ctx, c.db, script)
}

func (c *Client) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("", err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, wrapError("", err)
	}
	return out, nil
}

func (c *Client) Run(ctx context.Context, q *Query) ([]map[string]any, error) {
	stmt, args := q.SQL()
	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, wrapError(q.Table, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, wrapError(q.Table, err)
	}
	return out, nil
}

func (c *Client) Count(ctx context.Context, q *Query) (int64, error) {
	stmt, args := q.CountSQL()
	var n int64
	if err := c.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, wrapError(q.Table, err)
	}
	return n, nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = normalizeValue(vals[i])
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// normalizeValue turns driver bytes into something JSON-friendly: raw JSON
// for json/jsonb payloads, strings otherwise.
func normalizeValue(v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if len(b) > 0 && (b[0] == '{' || b[0] == '[') && json.Valid(b) {
		return json.RawMessage(append([]byte(nil), b...))
	}
	return string(b)
}
