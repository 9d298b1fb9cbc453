package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"apiforge/internal/sqlstore"
)

// Store is append-only.
type Store interface {
	Write(ctx context.Context, e Entry) error
}

type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Write(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of everything written so far.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

type SQLStore struct {
	db     *sql.DB
	insert string
}

// NewSQLStore creates the audit table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, d sqlstore.Dialect, table string) (*SQLStore, error) {
	if table == "" {
		table = "api_request_logs"
	}
	q := sqlstore.Quote(table)
	ddl := fmt.Sprintf(`create table if not exists %s (
  timestamp %s not null,
  tenant_id text not null,
  endpoint text not null,
  method text not null,
  api_id text,
  is_api_request boolean not null,
  request %s,
  response %s,
  response_time_ms bigint not null,
  status_code integer not null
)`, q, d.TimeType, d.JSONType, d.JSONType)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	insert := fmt.Sprintf(`insert into %s (timestamp, tenant_id, endpoint, method, api_id, is_api_request,
  request, response, response_time_ms, status_code) values (%s)`, q, d.Placeholders(10))
	return &SQLStore{db: db, insert: insert}, nil
}

func (s *SQLStore) Write(ctx context.Context, e Entry) error {
	var apiID any
	if e.APIID != "" {
		apiID = e.APIID
	}
	_, err := s.db.ExecContext(ctx, s.insert,
		e.Timestamp.UTC(), e.TenantID, e.Endpoint, e.Method, apiID, e.IsAPIRequest,
		jsonArg(e.Request), jsonArg(e.Response), e.ResponseTimeMS, e.StatusCode)
	if err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return nil
}

func jsonArg(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
