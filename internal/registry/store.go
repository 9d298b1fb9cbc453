package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"apiforge/internal/sqlstore"
)

var ErrNotFound = errors.New("api not found")

// Store persists records. Get returns ErrNotFound for unknown ids; Scan
// skips records it cannot decode.
type Store interface {
	Get(ctx context.Context, apiID string) (*Record, error)
	Upsert(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, apiID string) error
	Scan(ctx context.Context, fn func(*Record) error) error
}

// MemoryStore keeps records as encoded JSON, the same shape the SQL stores
// persist.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	seq  map[string]int
	next int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte), seq: make(map[string]int)}
}

func (s *MemoryStore) Get(_ context.Context, apiID string) (*Record, error) {
	s.mu.RLock()
	b, ok := s.data[apiID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return DecodeRecord(b)
}

func (s *MemoryStore) Upsert(_ context.Context, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seq[rec.APIID]; !ok {
		s.next++
		s.seq[rec.APIID] = s.next
	}
	s.data[rec.APIID] = b
	return nil
}

// PutRaw stores metadata bytes verbatim, e.g. a JSON string written by an
// older writer.
func (s *MemoryStore) PutRaw(apiID string, metadata []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seq[apiID]; !ok {
		s.next++
		s.seq[apiID] = s.next
	}
	s.data[apiID] = metadata
}

func (s *MemoryStore) Delete(_ context.Context, apiID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, apiID)
	delete(s.seq, apiID)
	return nil
}

func (s *MemoryStore) Scan(ctx context.Context, fn func(*Record) error) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.seq[ids[i]] < s.seq[ids[j]] })
	blobs := make([][]byte, len(ids))
	for i, id := range ids {
		blobs[i] = s.data[id]
	}
	s.mu.RUnlock()

	for _, b := range blobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := DecodeRecord(b)
		if err != nil {
			log.Printf("registry: skipping unreadable record: %v", err)
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// SQLStore keeps records in a table {api_id, metadata, created_at,
// updated_at} on PostgreSQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect sqlstore.Dialect
	table   string
}

// NewSQLStore creates the backing table if needed.
func NewSQLStore(ctx context.Context, db *sql.DB, d sqlstore.Dialect, table string) (*SQLStore, error) {
	if table == "" {
		table = "api_registry"
	}
	s := &SQLStore{db: db, dialect: d, table: table}
	idType := "text"
	if d.Name == sqlstore.Postgres.Name {
		idType = "uuid"
	}
	ddl := fmt.Sprintf(`create table if not exists %s (
  api_id %s primary key,
  metadata %s not null,
  created_at %s not null default current_timestamp,
  updated_at %s not null default current_timestamp
)`, sqlstore.Quote(table), idType, d.JSONType, d.TimeType, d.TimeType)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("registry store: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Get(ctx context.Context, apiID string) (*Record, error) {
	q := fmt.Sprintf("select metadata from %s where api_id = %s", sqlstore.Quote(s.table), s.dialect.Placeholder(1))
	var raw []byte
	err := s.db.QueryRowContext(ctx, q, apiID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry get %s: %w", apiID, err)
	}
	return DecodeRecord(raw)
}

func (s *SQLStore) Upsert(ctx context.Context, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`insert into %s (api_id, metadata, created_at, updated_at) values (%s)
on conflict (api_id) do update set metadata = excluded.metadata, updated_at = excluded.updated_at`,
		sqlstore.Quote(s.table), s.dialect.Placeholders(4))
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, q, rec.APIID, string(b), created, time.Now().UTC()); err != nil {
		return fmt.Errorf("registry upsert %s: %w", rec.APIID, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, apiID string) error {
	q := fmt.Sprintf("delete from %s where api_id = %s", sqlstore.Quote(s.table), s.dialect.Placeholder(1))
	if _, err := s.db.ExecContext(ctx, q, apiID); err != nil {
		return fmt.Errorf("registry delete %s: %w", apiID, err)
	}
	return nil
}

func (s *SQLStore) Scan(ctx context.Context, fn func(*Record) error) error {
	q := fmt.Sprintf("select metadata from %s order by created_at", sqlstore.Quote(s.table))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("registry scan: %w", err)
	}
	defer rows.Close()

	var raws [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("registry scan: %w", err)
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("registry scan: %w", err)
	}
	rows.Close()

	for _, raw := range raws {
		rec, err := DecodeRecord(raw)
		if err != nil {
			log.Printf("registry: skipping unreadable record: %v", err)
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
