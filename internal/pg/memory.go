package pg

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	memCreateRe     = regexp.MustCompile(`(?s)create table (?:if not exists )?"((?:[^"]|"")+)" \((.*?)\n\);`)
	memDropRe       = regexp.MustCompile(`drop table if exists "((?:[^"]|"")+)"`)
	memAddColumnRe  = regexp.MustCompile(`alter table "((?:[^"]|"")+)" add column "((?:[^"]|"")+)"`)
	memConstraintRe = regexp.MustCompile(`alter table "((?:[^"]|"")+)" add constraint "((?:[^"]|"")+)" foreign key \("((?:[^"]|"")+)"\) references "((?:[^"]|"")+)"`)
	memProbeRe      = regexp.MustCompile(`^select 1 from "((?:[^"]|"")+)" limit 0$`)
	memColumnRe     = regexp.MustCompile(`^\s*"((?:[^"]|"")+)"\s+(.*?),?\s*$`)
)

type memTable struct {
	name     string
	columns  []string
	defaults map[string]string
	rows     []map[string]any
}

type memFK struct {
	table, column, target string
}

// MemoryDB is an in-process stand-in for PostgreSQL, used when no database
// URL is configured and in tests. It understands the DDL this package emits
// and the builder queries; sample-data blocks are ignored.
type MemoryDB struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	fks    map[string]memFK

	// FailExec, when set, is consulted before every Exec.
	FailExec func(script string) error
	// Denied makes the privilege probe report no CREATE right.
	Denied bool
	// Scripts records every executed script in order.
	Scripts []string
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		tables: make(map[string]*memTable),
		fks:    make(map[string]memFK),
	}
}

func unquote(s string) string { return strings.ReplaceAll(s, `""`, `"`) }

func (m *MemoryDB) Exec(ctx context.Context, script string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scripts = append(m.Scripts, script)
	if m.FailExec != nil {
		if err := m.FailExec(script); err != nil {
			return err
		}
	}

	trimmed := strings.TrimSpace(script)
	if sm := memProbeRe.FindStringSubmatch(trimmed); sm != nil {
		if _, ok := m.tables[unquote(sm[1])]; !ok {
			return &QueryError{Table: unquote(sm[1]), Code: "42P01", Message: fmt.Sprintf("relation %q does not exist", unquote(sm[1]))}
		}
		return nil
	}

	for _, sm := range memDropRe.FindAllStringSubmatch(script, -1) {
		name := unquote(sm[1])
		delete(m.tables, name)
		for k, fk := range m.fks {
			if fk.table == name || fk.target == name {
				delete(m.fks, k)
			}
		}
	}
	for _, sm := range memCreateRe.FindAllStringSubmatch(script, -1) {
		name := unquote(sm[1])
		if _, ok := m.tables[name]; ok {
			continue
		}
		t := &memTable{name: name, defaults: map[string]string{}}
		for _, line := range strings.Split(sm[2], "\n") {
			cm := memColumnRe.FindStringSubmatch(line)
			if cm == nil {
				continue
			}
			col := unquote(cm[1])
			t.columns = append(t.columns, col)
			if i := strings.Index(cm[2], " default "); i >= 0 {
				t.defaults[col] = strings.TrimSpace(cm[2][i+len(" default "):])
			}
		}
		m.tables[name] = t
	}
	for _, sm := range memAddColumnRe.FindAllStringSubmatch(script, -1) {
		if t, ok := m.tables[unquote(sm[1])]; ok && !t.has(unquote(sm[2])) {
			t.columns = append(t.columns, unquote(sm[2]))
		}
	}
	for _, sm := range memConstraintRe.FindAllStringSubmatch(script, -1) {
		src, dst := unquote(sm[1]), unquote(sm[4])
		if _, ok := m.tables[src]; !ok {
			continue
		}
		if _, ok := m.tables[dst]; !ok {
			continue
		}
		m.fks[unquote(sm[2])] = memFK{table: src, column: unquote(sm[3]), target: dst}
	}
	return nil
}

func (t *memTable) has(col string) bool {
	for _, c := range t.columns {
		if c == col {
			return true
		}
	}
	return false
}

// Query answers the catalog probes issued by the materializer and registry
// bootstrap; anything else is reported as unsupported.
func (m *MemoryDB) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	arg := func() string {
		if len(args) == 0 {
			return ""
		}
		return fmt.Sprint(args[0])
	}
	switch query {
	case privilegeSQL:
		return []map[string]any{{"ok": !m.Denied}}, nil
	case probeFoldSQL:
		for name := range m.tables {
			if strings.EqualFold(name, arg()) {
				return []map[string]any{{"table_name": name}}, nil
			}
		}
		return []map[string]any{}, nil
	case probeLikeSQL:
		needle := strings.ToLower(strings.Trim(arg(), "%"))
		best := ""
		for name := range m.tables {
			if strings.Contains(strings.ToLower(name), needle) && (best == "" || len(name) < len(best)) {
				best = name
			}
		}
		if best == "" {
			return []map[string]any{}, nil
		}
		return []map[string]any{{"table_name": best}}, nil
	case constraintExistsSQL:
		if _, ok := m.fks[arg()]; ok {
			return []map[string]any{{"conname": arg()}}, nil
		}
		return []map[string]any{}, nil
	}
	return nil, &QueryError{Code: "0A000", Message: "memory executor: unsupported query"}
}

// HasTable reports whether a physical table exists, by exact name.
func (m *MemoryDB) HasTable(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[name]
	return ok
}

// Columns returns the column names of a physical table.
func (m *MemoryDB) Columns(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tables[name]; ok {
		return append([]string(nil), t.columns...)
	}
	return nil
}

// ForeignKeys returns the attached constraint names, sorted.
func (m *MemoryDB) ForeignKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.fks))
	for k := range m.fks {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *MemoryDB) lookup(name string) (*memTable, error) {
	if t, ok := m.tables[name]; ok {
		return t, nil
	}
	return nil, &QueryError{Table: name, Code: "42P01", Message: fmt.Sprintf("relation %q does not exist", name)}
}

func (m *MemoryDB) Run(ctx context.Context, q *Query) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookup(q.Table)
	if err != nil {
		return nil, err
	}
	for _, f := range q.Filters {
		if !t.has(f.Column) {
			return nil, undefinedColumn(q.Table, f.Column)
		}
	}

	switch q.Op {
	case OpInsert:
		row := make(map[string]any, len(t.columns))
		for _, c := range t.columns {
			row[c] = t.defaultValue(c)
		}
		for k, v := range q.Values {
			if !t.has(k) {
				return nil, undefinedColumn(q.Table, k)
			}
			row[k] = v
		}
		t.rows = append(t.rows, row)
		return []map[string]any{copyRow(row)}, nil

	case OpUpdate:
		for k := range q.Values {
			if !t.has(k) {
				return nil, undefinedColumn(q.Table, k)
			}
		}
		out := []map[string]any{}
		for _, row := range t.rows {
			if !matches(row, q.Filters) {
				continue
			}
			for k, v := range q.Values {
				row[k] = v
			}
			if t.has("updated_at") {
				row["updated_at"] = time.Now().UTC()
			}
			out = append(out, copyRow(row))
		}
		return out, nil

	case OpDelete:
		out := []map[string]any{}
		kept := t.rows[:0]
		for _, row := range t.rows {
			if matches(row, q.Filters) {
				out = append(out, copyRow(row))
				continue
			}
			kept = append(kept, row)
		}
		t.rows = kept
		for _, row := range out {
			m.cascade(t.name, row)
		}
		return out, nil
	}

	var sel []map[string]any
	for _, row := range t.rows {
		if matches(row, q.Filters) {
			sel = append(sel, row)
		}
	}
	if q.OrderBy != "" {
		if !t.has(q.OrderBy) {
			return nil, undefinedColumn(q.Table, q.OrderBy)
		}
		sort.SliceStable(sel, func(i, j int) bool {
			c := compareValues(sel[i][q.OrderBy], sel[j][q.OrderBy])
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(sel) {
			sel = nil
		} else {
			sel = sel[q.Offset:]
		}
	}
	if q.Limit > 0 && len(sel) > q.Limit {
		sel = sel[:q.Limit]
	}
	out := make([]map[string]any, 0, len(sel))
	for _, row := range sel {
		if len(q.Columns) == 0 {
			out = append(out, copyRow(row))
			continue
		}
		p := make(map[string]any, len(q.Columns))
		for _, c := range q.Columns {
			p[c] = row[c]
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryDB) Count(ctx context.Context, q *Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.lookup(q.Table)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, row := range t.rows {
		if matches(row, q.Filters) {
			n++
		}
	}
	return n, nil
}

// cascade emulates "on delete cascade" for attached constraints.
func (m *MemoryDB) cascade(table string, deleted map[string]any) {
	for _, fk := range m.fks {
		if fk.target != table {
			continue
		}
		child, ok := m.tables[fk.table]
		if !ok {
			continue
		}
		want := fmt.Sprint(deleted["id"])
		kept := child.rows[:0]
		var removed []map[string]any
		for _, row := range child.rows {
			if row[fk.column] != nil && fmt.Sprint(row[fk.column]) == want {
				removed = append(removed, row)
				continue
			}
			kept = append(kept, row)
		}
		child.rows = kept
		for _, row := range removed {
			m.cascade(child.name, row)
		}
	}
}

func (t *memTable) defaultValue(col string) any {
	def, ok := t.defaults[col]
	if !ok {
		return nil
	}
	switch strings.ToLower(def) {
	case "uuid_generate_v4()", "gen_random_uuid()":
		return uuid.NewString()
	case "now()", "current_timestamp":
		return time.Now().UTC()
	case "true":
		return true
	case "false":
		return false
	}
	return strings.Trim(def, "'")
}

func undefinedColumn(table, col string) error {
	return &QueryError{Table: table, Code: "42703", Message: fmt.Sprintf("column %q does not exist", col)}
}

func matches(row map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if row[f.Column] == nil || fmt.Sprint(row[f.Column]) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
