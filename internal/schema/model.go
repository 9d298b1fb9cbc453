package schema

import "strings"

// Relationship kinds.
const (
	OneToOne    = "one-to-one"
	OneToMany   = "one-to-many"
	ManyToOne   = "many-to-one"
	ManyToMany  = "many-to-many"
	Polymorphic = "polymorphic"
)

// Injected column names.
const (
	IDColumn        = "id"
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
	TenantColumn    = "tenant_id"
	EntityType      = "entity_type"
	EntityID        = "entity_id"
)

// Constraint atoms.
const (
	AtomPrimaryKey = "primary key"
	AtomUnique     = "unique"
	AtomNotNull    = "not null"
	AtomDefault    = "default"
)

// Graph is an ordered list of tables. Order decides creation order and FK
// attachment order.
type Graph struct {
	Tables []*Table `json:"tables"`
}

type Table struct {
	Name          string         `json:"name"`
	PrefixedName  string         `json:"prefixedName,omitempty"`
	Columns       []Column       `json:"columns"`
	Relationships []Relationship `json:"relationships,omitempty"`
	// Indexes holds composite index hints, e.g. [entity_type entity_id].
	Indexes [][]string `json:"indexes,omitempty"`
}

type Column struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Constraints []string `json:"constraints,omitempty"`
}

type Relationship struct {
	Type                string `json:"type"`
	SourceColumn        string `json:"sourceColumn"`
	TargetTable         string `json:"targetTable"`
	TargetColumn        string `json:"targetColumn"`
	OriginalTargetTable string `json:"originalTargetTable,omitempty"`
}

// Table finds a table by its caller-facing name, case-insensitively.
func (g *Graph) Table(name string) *Table {
	if g == nil {
		return nil
	}
	for _, t := range g.Tables {
		if t.Name == name {
			return t
		}
	}
	for _, t := range g.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

// Names returns table names in graph order.
func (g *Graph) Names() []string {
	out := make([]string, 0, len(g.Tables))
	for _, t := range g.Tables {
		out = append(out, t.Name)
	}
	return out
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	out := &Graph{Tables: make([]*Table, 0, len(g.Tables))}
	for _, t := range g.Tables {
		out.Tables = append(out.Tables, t.Clone())
	}
	return out
}

func (t *Table) Clone() *Table {
	c := &Table{Name: t.Name, PrefixedName: t.PrefixedName}
	if t.Columns != nil {
		c.Columns = make([]Column, len(t.Columns))
		for i, col := range t.Columns {
			c.Columns[i] = Column{Name: col.Name, Type: col.Type}
			if col.Constraints != nil {
				c.Columns[i].Constraints = append([]string{}, col.Constraints...)
			}
		}
	}
	if t.Relationships != nil {
		c.Relationships = append([]Relationship{}, t.Relationships...)
	}
	if t.Indexes != nil {
		c.Indexes = make([][]string, len(t.Indexes))
		for i, idx := range t.Indexes {
			c.Indexes[i] = append([]string{}, idx...)
		}
	}
	return c
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

func (t *Table) HasColumn(name string) bool { return t.Column(name) != nil }

// PrimaryKey returns the first column carrying the primary-key atom.
func (t *Table) PrimaryKey() *Column {
	for i := range t.Columns {
		if t.Columns[i].IsPrimaryKey() {
			return &t.Columns[i]
		}
	}
	return nil
}

// RelationshipFor returns the relationship whose source is the given column.
func (t *Table) RelationshipFor(column string) *Relationship {
	for i := range t.Relationships {
		if t.Relationships[i].SourceColumn == column {
			return &t.Relationships[i]
		}
	}
	return nil
}

func (c Column) Has(atom string) bool {
	for _, a := range c.Constraints {
		if a == atom {
			return true
		}
	}
	return false
}

func (c Column) IsPrimaryKey() bool { return c.Has(AtomPrimaryKey) }

// Default returns the expression of a "default <expr>" atom.
func (c Column) Default() (string, bool) {
	for _, a := range c.Constraints {
		if strings.HasPrefix(a, AtomDefault+" ") {
			return strings.TrimSpace(a[len(AtomDefault)+1:]), true
		}
	}
	return "", false
}

// BaseType is the lower-cased type name without arguments, e.g. "varchar".
func (c Column) BaseType() string {
	t := strings.ToLower(strings.TrimSpace(c.Type))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
