package pg

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"apiforge/internal/schema"
)

// maxIdentLen is PostgreSQL's NAMEDATALEN-1.
const maxIdentLen = 63

var (
	numericLit = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	varcharLen = regexp.MustCompile(`^(?:varchar|character varying|char)\s*\(\s*(\d+)\s*\)$`)
)

// Extensions required by generated defaults.
const extensionsDDL = `create extension if not exists "uuid-ossp";
create extension if not exists pgcrypto;
`

func sqlIdent(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func sqlString(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

// EmitOptions switch parts of the script off; the zero value emits everything.
type EmitOptions struct {
	SkipRelationships bool
	SkipSampleData    bool
	SkipExtensions    bool
}

// Emit renders the full DDL script for one API instance.
func Emit(g *schema.Graph, tenantID, apiIdentifier string) string {
	return EmitWith(g, tenantID, apiIdentifier, EmitOptions{})
}

// EmitWith renders, in order: extensions, per table drop+create+trigger,
// guarded FK blocks, then non-fatal sample inserts.
func EmitWith(g *schema.Graph, tenantID, apiIdentifier string, opts EmitOptions) string {
	var sb strings.Builder
	if !opts.SkipExtensions {
		sb.WriteString("-- extensions\n")
		sb.WriteString(extensionsDDL)
	}

	// Phase A: tables. FKs are never embedded here.
	for _, t := range g.Tables {
		phys := schema.PrefixedName(tenantID, apiIdentifier, t.Name)
		fmt.Fprintf(&sb, "\n-- table: %s\n", t.Name)
		fmt.Fprintf(&sb, "drop table if exists %s cascade;\n", sqlIdent(phys))
		sb.WriteString(createTable(t, phys, false, false))
		writeIndexes(&sb, t, phys)
		if t.HasColumn(schema.UpdatedAtColumn) {
			sb.WriteString(UpdatedAtTrigger(phys))
		}
	}

	// Phase B: relationships.
	if !opts.SkipRelationships {
		for _, t := range g.Tables {
			for _, rel := range t.Relationships {
				if block := ForeignKeyBlock(g, t, rel, tenantID, apiIdentifier); block != "" {
					sb.WriteString("\n")
					sb.WriteString(block)
				}
			}
		}
	}

	if !opts.SkipSampleData {
		for _, t := range g.Tables {
			sb.WriteString("\n")
			sb.WriteString(SampleInsert(g, t, tenantID, apiIdentifier))
		}
	}
	return sb.String()
}

// MinimalTable is the last-resort rendering of one table: create if not
// exists, no drop, no trigger, and declared columns keep only primary key,
// unique and not null.
func MinimalTable(t *schema.Table, tenantID, apiIdentifier string) string {
	phys := schema.PrefixedName(tenantID, apiIdentifier, t.Name)
	return createTable(t, phys, true, true)
}

func createTable(t *schema.Table, phys string, ifNotExists, minimal bool) string {
	var sb strings.Builder
	sb.WriteString("create table ")
	if ifNotExists {
		sb.WriteString("if not exists ")
	}
	sb.WriteString(sqlIdent(phys))
	sb.WriteString(" (\n")
	for i, c := range t.Columns {
		sb.WriteString("  ")
		sb.WriteString(columnDef(c, minimal && !injected(c.Name)))
		if i < len(t.Columns)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(");\n")
	return sb.String()
}

func injected(name string) bool {
	switch name {
	case schema.IDColumn, schema.CreatedAtColumn, schema.UpdatedAtColumn, schema.TenantColumn:
		return true
	}
	return false
}

func columnDef(c schema.Column, dropDefaults bool) string {
	parts := []string{sqlIdent(c.Name), c.Type}
	for _, a := range c.Constraints {
		if strings.HasPrefix(a, schema.AtomDefault+" ") {
			if dropDefaults {
				continue
			}
			expr, _ := c.Default()
			parts = append(parts, schema.AtomDefault+" "+defaultExpr(expr))
			continue
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// defaultExpr quotes bare words so "default draft" renders as 'draft'.
// Literals, calls, casts and well-known keywords pass through.
func defaultExpr(expr string) string {
	e := strings.TrimSpace(expr)
	lower := strings.ToLower(e)
	switch {
	case e == "":
		return "null"
	case numericLit.MatchString(e),
		strings.HasPrefix(e, "'"),
		strings.Contains(e, "("),
		strings.Contains(e, "::"):
		return e
	}
	switch lower {
	case "true", "false", "null", "current_timestamp", "current_date", "current_time",
		"localtimestamp", "localtime", "current_user":
		return e
	}
	return sqlString(strings.Trim(e, `"`))
}

func writeIndexes(sb *strings.Builder, t *schema.Table, phys string) {
	for _, idx := range t.Indexes {
		if len(idx) == 0 {
			continue
		}
		cols := make([]string, len(idx))
		for i, c := range idx {
			cols[i] = sqlIdent(c)
		}
		name := truncateIdent(strings.ToLower(schema.SafeName("idx_" + phys + "_" + strings.Join(idx, "_"))))
		fmt.Fprintf(sb, "create index if not exists %s on %s (%s);\n", sqlIdent(name), sqlIdent(phys), strings.Join(cols, ", "))
	}
}

// UpdatedAtTrigger keeps updated_at current on every update.
func UpdatedAtTrigger(phys string) string {
	safe := strings.ToLower(schema.SafeName(phys))
	fn := truncateIdent("update_" + safe + "_updated_at")
	trg := truncateIdent("trg_" + safe + "_updated_at")
	var sb strings.Builder
	fmt.Fprintf(&sb, "create or replace function %s() returns trigger as $$\n", sqlIdent(fn))
	sb.WriteString("begin\n")
	fmt.Fprintf(&sb, "  new.%s = now();\n", sqlIdent(schema.UpdatedAtColumn))
	sb.WriteString("  return new;\n")
	sb.WriteString("end;\n")
	sb.WriteString("$$ language plpgsql;\n")
	fmt.Fprintf(&sb, "drop trigger if exists %s on %s;\n", sqlIdent(trg), sqlIdent(phys))
	fmt.Fprintf(&sb, "create trigger %s before update on %s for each row execute function %s();\n",
		sqlIdent(trg), sqlIdent(phys), sqlIdent(fn))
	return sb.String()
}

// ForeignKeyName is fk_<source>_<column>_<target>, sanitized and cut to 63.
func ForeignKeyName(sourcePhys, column, targetPhys string) string {
	return truncateIdent(strings.ToLower(schema.SafeName("fk_" + sourcePhys + "_" + column + "_" + targetPhys)))
}

// truncateIdent keeps s within maxIdentLen. Cut names end in "_" plus eight
// hex digits of the full name's sha1 so distinct long names stay distinct.
func truncateIdent(s string) string {
	if len(s) <= maxIdentLen {
		return s
	}
	sum := sha1.Sum([]byte(s))
	suffix := "_" + hex.EncodeToString(sum[:])[:8]
	return s[:maxIdentLen-len(suffix)] + suffix
}

// ForeignKeyBlock renders one guarded FK attachment: only when both tables
// exist, adding the source column if missing and the constraint if absent.
// Returns "" for relationships whose target is not in the graph.
func ForeignKeyBlock(g *schema.Graph, t *schema.Table, rel schema.Relationship, tenantID, apiIdentifier string) string {
	target := g.Table(rel.TargetTable)
	if target == nil || rel.SourceColumn == "" {
		return ""
	}
	src := schema.PrefixedName(tenantID, apiIdentifier, t.Name)
	dst := schema.PrefixedName(tenantID, apiIdentifier, target.Name)
	targetCol := rel.TargetColumn
	if targetCol == "" {
		targetCol = schema.IDColumn
	}
	colType := "uuid"
	if c := t.Column(rel.SourceColumn); c != nil {
		colType = c.Type
	}
	name := ForeignKeyName(src, rel.SourceColumn, dst)

	var sb strings.Builder
	fmt.Fprintf(&sb, "-- relationship: %s.%s -> %s.%s\n", t.Name, rel.SourceColumn, target.Name, targetCol)
	sb.WriteString("do $$\nbegin\n")
	fmt.Fprintf(&sb, "  if exists (select 1 from information_schema.tables where table_schema = current_schema() and table_name = %s)\n", sqlString(src))
	fmt.Fprintf(&sb, "     and exists (select 1 from information_schema.tables where table_schema = current_schema() and table_name = %s) then\n", sqlString(dst))
	fmt.Fprintf(&sb, "    if not exists (select 1 from information_schema.columns where table_schema = current_schema() and table_name = %s and column_name = %s) then\n",
		sqlString(src), sqlString(rel.SourceColumn))
	fmt.Fprintf(&sb, "      alter table %s add column %s %s;\n", sqlIdent(src), sqlIdent(rel.SourceColumn), colType)
	sb.WriteString("    end if;\n")
	fmt.Fprintf(&sb, "    if not exists (select 1 from pg_constraint where conname = %s) then\n", sqlString(name))
	fmt.Fprintf(&sb, "      alter table %s add constraint %s foreign key (%s) references %s (%s) on delete cascade;\n",
		sqlIdent(src), sqlIdent(name), sqlIdent(rel.SourceColumn), sqlIdent(dst), sqlIdent(targetCol))
	sb.WriteString("    end if;\n")
	sb.WriteString("  end if;\n")
	sb.WriteString("end $$;\n")
	return sb.String()
}

// SampleInsert renders one sample row for t inside an exception-trapping
// block, so a failing insert never fails the script.
func SampleInsert(g *schema.Graph, t *schema.Table, tenantID, apiIdentifier string) string {
	phys := schema.PrefixedName(tenantID, apiIdentifier, t.Name)
	var cols, vals []string
	for _, c := range t.Columns {
		if c.Name == schema.IDColumn {
			continue
		}
		cols = append(cols, sqlIdent(c.Name))
		vals = append(vals, sampleValue(g, t, c, tenantID, apiIdentifier))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- sample data: %s\n", t.Name)
	sb.WriteString("do $$\nbegin\n")
	if len(cols) == 0 {
		fmt.Fprintf(&sb, "  insert into %s default values;\n", sqlIdent(phys))
	} else {
		fmt.Fprintf(&sb, "  insert into %s (%s) values (%s);\n", sqlIdent(phys), strings.Join(cols, ", "), strings.Join(vals, ", "))
	}
	sb.WriteString("exception when others then\n")
	fmt.Fprintf(&sb, "  raise notice 'sample data for %% skipped: %%', %s, sqlerrm;\n", sqlString(t.Name))
	sb.WriteString("end $$;\n")
	return sb.String()
}

func sampleValue(g *schema.Graph, t *schema.Table, c schema.Column, tenantID, apiIdentifier string) string {
	if c.Name == schema.TenantColumn {
		return sqlString(tenantID)
	}
	if rel := t.RelationshipFor(c.Name); rel != nil {
		if target := g.Table(rel.TargetTable); target != nil {
			col := rel.TargetColumn
			if col == "" {
				col = schema.IDColumn
			}
			return fmt.Sprintf("(select %s from %s limit 1)", sqlIdent(col),
				sqlIdent(schema.PrefixedName(tenantID, apiIdentifier, target.Name)))
		}
	}
	typ := strings.ToLower(strings.TrimSpace(c.Type))
	switch c.BaseType() {
	case "uuid":
		return "uuid_generate_v4()"
	case "varchar", "character varying", "char", "character", "text", "citext":
		v := fmt.Sprintf("Sample %s for %s", c.Name, t.Name)
		if m := varcharLen.FindStringSubmatch(typ); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && len(v) > n {
				v = v[:n]
			}
		}
		return sqlString(v)
	case "integer", "int", "int4", "bigint", "int8", "smallint", "int2", "serial", "bigserial",
		"numeric", "decimal", "real", "double precision", "float4", "float8":
		return "1"
	case "boolean", "bool":
		return "true"
	case "json", "jsonb":
		return "'{}'"
	case "timestamp", "timestamptz", "timestamp with time zone", "timestamp without time zone",
		"date", "time", "timetz":
		return "now()"
	}
	return "default"
}
