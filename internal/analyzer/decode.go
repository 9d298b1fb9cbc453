package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"apiforge/internal/schema"
)

// Constraints accepts a string, an array of strings or objects, or a single
// object, and flattens everything to constraint strings.
type Constraints []string

func (c *Constraints) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*c = nil
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Constraints{s}
		return nil
	case '{':
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		*c = Constraints{flattenMap(m)}
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make(Constraints, 0, len(items))
		for _, it := range items {
			var sub Constraints
			if err := sub.UnmarshalJSON(it); err != nil {
				return err
			}
			out = append(out, sub...)
		}
		*c = out
		return nil
	}
	// bare true/false/number: ignore
	return nil
}

func flattenMap(m map[string]any) string {
	var parts []string
	for _, k := range []string{"type", "constraint", "name", "value"} {
		if v, ok := m[k]; ok {
			parts = append(parts, fmt.Sprint(v))
			delete(m, k)
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch x := m[k].(type) {
		case bool:
			if x {
				parts = append(parts, k)
			}
		case nil:
		default:
			parts = append(parts, k+" "+fmt.Sprint(x))
		}
	}
	return strings.Join(parts, " ")
}

type wireColumn struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Constraints Constraints `json:"constraints"`
	References  string      `json:"references"`
	Nullable    *bool       `json:"nullable"`
	Default     any         `json:"default"`
}

type wireRelationship struct {
	Type                string `json:"type"`
	SourceColumn        string `json:"sourceColumn"`
	SourceColumnSnake   string `json:"source_column"`
	TargetTable         string `json:"targetTable"`
	TargetTableSnake    string `json:"target_table"`
	TargetColumn        string `json:"targetColumn"`
	TargetColumnSnake   string `json:"target_column"`
	OriginalTargetTable string `json:"originalTargetTable"`
}

type wireTable struct {
	Name          string             `json:"name"`
	OriginalName  string             `json:"originalName"`
	TableName     string             `json:"table_name"`
	PrefixedName  string             `json:"prefixedName"`
	Columns       []wireColumn       `json:"columns"`
	Fields        []wireColumn       `json:"fields"`
	Relationships []wireRelationship `json:"relationships"`
	Indexes       [][]string         `json:"indexes"`
}

type wireGraph struct {
	Tables []wireTable `json:"tables"`
}

func first(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// DecodeGraph turns untrusted JSON into a raw (not yet normalized) graph.
// Both {"tables":[...]} and a bare [...] of tables are accepted.
func DecodeGraph(data []byte) (*schema.Graph, error) {
	data = bytes.TrimSpace(data)
	var wg wireGraph
	switch {
	case len(data) > 0 && data[0] == '[':
		if err := json.Unmarshal(data, &wg.Tables); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &wg); err != nil {
			return nil, err
		}
	}
	if len(wg.Tables) == 0 {
		return nil, errors.New("no tables in schema")
	}

	g := &schema.Graph{}
	for _, wt := range wg.Tables {
		t := &schema.Table{
			Name:         first(wt.Name, wt.OriginalName, wt.TableName),
			PrefixedName: wt.PrefixedName,
			Indexes:      wt.Indexes,
		}
		if t.Name == "" {
			continue
		}
		for _, wc := range append(wt.Columns, wt.Fields...) {
			if strings.TrimSpace(wc.Name) == "" {
				continue
			}
			col := schema.Column{Name: wc.Name, Type: wc.Type}
			col.Constraints = append(col.Constraints, wc.Constraints...)
			if wc.Nullable != nil && !*wc.Nullable {
				col.Constraints = append(col.Constraints, schema.AtomNotNull)
			}
			if wc.Default != nil {
				col.Constraints = append(col.Constraints, defaultAtom(wc.Default))
			}
			if wc.References != "" {
				col.Constraints = append(col.Constraints, "references "+wc.References)
			}
			t.Columns = append(t.Columns, col)
		}
		for _, wr := range wt.Relationships {
			t.Relationships = append(t.Relationships, schema.Relationship{
				Type:                wr.Type,
				SourceColumn:        first(wr.SourceColumn, wr.SourceColumnSnake),
				TargetTable:         first(wr.TargetTable, wr.TargetTableSnake),
				TargetColumn:        first(wr.TargetColumn, wr.TargetColumnSnake),
				OriginalTargetTable: wr.OriginalTargetTable,
			})
		}
		g.Tables = append(g.Tables, t)
	}
	if len(g.Tables) == 0 {
		return nil, errors.New("no named tables in schema")
	}
	return g, nil
}

func defaultAtom(v any) string {
	switch x := v.(type) {
	case string:
		return schema.AtomDefault + " " + x
	case bool:
		return fmt.Sprintf("%s %t", schema.AtomDefault, x)
	case float64:
		return fmt.Sprintf("%s %v", schema.AtomDefault, x)
	}
	b, _ := json.Marshal(v)
	return schema.AtomDefault + " '" + strings.ReplaceAll(string(b), "'", "''") + "'"
}

// ParseResponse strips fences, tries strict decoding, then applies the
// repair chain one step at a time until the text decodes.
func ParseResponse(raw string) (*schema.Graph, error) {
	text := StripFences(raw)
	g, err := DecodeGraph([]byte(text))
	if err == nil {
		return g, nil
	}
	for _, r := range repairs {
		text = r.fn(text)
		if g, err = DecodeGraph([]byte(text)); err == nil {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
}
