package pg

import (
	"fmt"
	"sort"
	"strings"
)

type Op int

const (
	OpSelect Op = iota
	OpInsert
	OpUpdate
	OpDelete
)

type Filter struct {
	Column string
	Value  any
}

// Query is a small fluent builder over one physical table. Mutations always
// return the affected rows.
type Query struct {
	Table   string
	Op      Op
	Columns []string
	Filters []Filter
	OrderBy string
	Desc    bool
	Offset  int
	Limit   int // 0 means no limit
	Values  map[string]any
}

func From(table string) *Query { return &Query{Table: table, Op: OpSelect} }

func (q *Query) Select(cols ...string) *Query {
	q.Op = OpSelect
	q.Columns = append(q.Columns, cols...)
	return q
}

func (q *Query) Eq(col string, v any) *Query {
	q.Filters = append(q.Filters, Filter{Column: col, Value: v})
	return q
}

func (q *Query) Order(col string, desc bool) *Query {
	q.OrderBy, q.Desc = col, desc
	return q
}

// Range selects rows from..to inclusive.
func (q *Query) Range(from, to int) *Query {
	if from < 0 {
		from = 0
	}
	q.Offset = from
	q.Limit = to - from + 1
	if q.Limit < 0 {
		q.Limit = 0
	}
	return q
}

func (q *Query) Insert(values map[string]any) *Query {
	q.Op, q.Values = OpInsert, values
	return q
}

func (q *Query) Update(values map[string]any) *Query {
	q.Op, q.Values = OpUpdate, values
	return q
}

func (q *Query) Delete() *Query {
	q.Op = OpDelete
	return q
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (q *Query) where(args []any) (string, []any) {
	if len(q.Filters) == 0 {
		return "", args
	}
	conds := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		args = append(args, f.Value)
		conds = append(conds, fmt.Sprintf("%s = $%d", sqlIdent(f.Column), len(args)))
	}
	return " where " + strings.Join(conds, " and "), args
}

// SQL renders the statement with $n placeholders.
func (q *Query) SQL() (string, []any) {
	var args []any
	tbl := sqlIdent(q.Table)
	switch q.Op {
	case OpInsert:
		keys := sortedKeys(q.Values)
		if len(keys) == 0 {
			return "insert into " + tbl + " default values returning *", nil
		}
		cols := make([]string, len(keys))
		ph := make([]string, len(keys))
		for i, k := range keys {
			args = append(args, q.Values[k])
			cols[i] = sqlIdent(k)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		return fmt.Sprintf("insert into %s (%s) values (%s) returning *", tbl, strings.Join(cols, ", "), strings.Join(ph, ", ")), args
	case OpUpdate:
		keys := sortedKeys(q.Values)
		sets := make([]string, len(keys))
		for i, k := range keys {
			args = append(args, q.Values[k])
			sets[i] = fmt.Sprintf("%s = $%d", sqlIdent(k), len(args))
		}
		w, args := q.where(args)
		return fmt.Sprintf("update %s set %s%s returning *", tbl, strings.Join(sets, ", "), w), args
	case OpDelete:
		w, args := q.where(args)
		return fmt.Sprintf("delete from %s%s returning *", tbl, w), args
	}

	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = sqlIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "select %s from %s", cols, tbl)
	w, args := q.where(args)
	sb.WriteString(w)
	if q.OrderBy != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		fmt.Fprintf(&sb, " order by %s %s", sqlIdent(q.OrderBy), dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " limit %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&sb, " offset %d", q.Offset)
	}
	return sb.String(), args
}

// CountSQL counts rows matching the filters, ignoring order and range.
func (q *Query) CountSQL() (string, []any) {
	w, args := q.where(nil)
	return fmt.Sprintf("select count(*) from %s%s", sqlIdent(q.Table), w), args
}
