package schema

import (
	"fmt"
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type Issue struct {
	Table   string `json:"table"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Lint checks a normalized graph for contradictions that would make
// materialization or routing ambiguous.
func Lint(g *Graph) []Issue {
	var issues []Issue
	if g == nil || len(g.Tables) == 0 {
		return []Issue{{Code: "empty_graph", Message: "schema has no tables"}}
	}

	seen := map[string]struct{}{}
	for _, t := range g.Tables {
		key := strings.ToLower(t.Name)
		if _, dup := seen[key]; dup {
			issues = append(issues, Issue{Table: t.Name, Code: "duplicate_table", Message: fmt.Sprintf("table %q declared more than once", t.Name)})
		}
		seen[key] = struct{}{}
		if !identRe.MatchString(t.Name) {
			issues = append(issues, Issue{Table: t.Name, Code: "invalid_identifier", Message: fmt.Sprintf("table name %q is not a valid identifier", t.Name)})
		}

		pks := 0
		for _, c := range t.Columns {
			if !identRe.MatchString(c.Name) {
				issues = append(issues, Issue{Table: t.Name, Field: c.Name, Code: "invalid_identifier", Message: fmt.Sprintf("column name %q is not a valid identifier", c.Name)})
			}
			if c.IsPrimaryKey() {
				pks++
			}
		}
		if pks != 1 {
			issues = append(issues, Issue{Table: t.Name, Code: "primary_key_count", Message: fmt.Sprintf("expected exactly one primary key column, got %d", pks)})
		}
		for _, req := range []string{IDColumn, CreatedAtColumn, UpdatedAtColumn, TenantColumn} {
			if !t.HasColumn(req) {
				issues = append(issues, Issue{Table: t.Name, Field: req, Code: "missing_column", Message: fmt.Sprintf("required column %q missing", req)})
			}
		}

		for _, r := range t.Relationships {
			if g.Table(r.TargetTable) == nil {
				issues = append(issues, Issue{Table: t.Name, Field: r.SourceColumn, Code: "unknown_target", Message: fmt.Sprintf("relationship targets unknown table %q", r.TargetTable)})
			}
			if !t.HasColumn(r.SourceColumn) {
				issues = append(issues, Issue{Table: t.Name, Field: r.SourceColumn, Code: "missing_fk_column", Message: fmt.Sprintf("relationship source column %q missing", r.SourceColumn)})
			}
		}
	}
	return issues
}
