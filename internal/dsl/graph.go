package dsl

import (
	"fmt"
	"strings"

	"apiforge/internal/schema"
)

var scalarTypes = map[string]string{
	"string":    "varchar(255)",
	"text":      "text",
	"int":       "integer",
	"integer":   "integer",
	"bigint":    "bigint",
	"float":     "numeric",
	"decimal":   "numeric",
	"money":     "numeric(12,2)",
	"bool":      "boolean",
	"boolean":   "boolean",
	"date":      "date",
	"datetime":  "timestamp",
	"timestamp": "timestamp",
	"uuid":      "uuid",
	"json":      "jsonb",
	"enum":      "varchar(50)",
	"array":     "jsonb",
}

// Parse reads entity blocks into a graph ready for normalization. ref fields
// become "<field>_id" uuid columns with a many-to-one relationship.
func Parse(src string) (*schema.Graph, error) {
	entities, err := ParseEntities(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("no entity blocks")
	}
	g := &schema.Graph{}
	for _, e := range entities {
		t, err := toTable(e)
		if err != nil {
			return nil, err
		}
		g.Tables = append(g.Tables, t)
	}
	return g, nil
}

func toTable(e *Entity) (*schema.Table, error) {
	t := &schema.Table{Name: schema.Ident(e.Name)}
	renamed := map[string]string{}
	for _, f := range e.Fields {
		name := schema.Ident(f.Name)
		col := schema.Column{Name: name}
		if f.Type == "ref" {
			if !strings.HasSuffix(name, "_id") {
				name += "_id"
			}
			renamed[schema.Ident(f.Name)] = name
			col.Name, col.Type = name, "uuid"
			target := f.RefTarget
			if i := strings.LastIndexByte(target, '.'); i >= 0 {
				target = target[i+1:]
			}
			t.Relationships = append(t.Relationships, schema.Relationship{
				Type:         schema.ManyToOne,
				SourceColumn: name,
				TargetTable:  schema.Ident(target),
				TargetColumn: schema.IDColumn,
			})
		} else {
			typ, ok := scalarTypes[f.Type]
			if !ok {
				// anything else is taken as a PostgreSQL type name
				typ = f.Type
			}
			col.Type = typ
		}
		if truthy(f.Options["required"]) {
			col.Constraints = append(col.Constraints, schema.AtomNotNull)
		}
		if truthy(f.Options["unique"]) {
			col.Constraints = append(col.Constraints, schema.AtomUnique)
		}
		if d, ok := f.Options["default"]; ok && d != "" {
			col.Constraints = append(col.Constraints, schema.AtomDefault+" "+d)
		}
		t.Columns = append(t.Columns, col)
	}

	for _, set := range e.Unique {
		cols := make([]string, 0, len(set))
		for _, c := range set {
			c = schema.Ident(c)
			if r, ok := renamed[c]; ok {
				c = r
			}
			if !t.HasColumn(c) {
				return nil, fmt.Errorf("entity %s: unique(%s) names unknown field %q", e.Name, strings.Join(set, ", "), c)
			}
			cols = append(cols, c)
		}
		if len(cols) == 1 {
			col := t.Column(cols[0])
			if !col.Has(schema.AtomUnique) {
				col.Constraints = append(col.Constraints, schema.AtomUnique)
			}
			continue
		}
		t.Indexes = append(t.Indexes, cols)
	}
	return t, nil
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	}
	return false
}
