package schema

import (
	"log"
	"regexp"
	"strings"
	"sync"

	"apiforge/internal/reference"
)

var (
	atomStartRe  = regexp.MustCompile(`(?i)\b(primary\s+key|unique|not\s+null|null|default\s+value|default|references|foreign\s+key|on\s+delete|on\s+update|check)\b`)
	referencesRe = regexp.MustCompile(`(?i)references\s+"?([A-Za-z0-9_.]+)"?\s*(?:\(\s*"?([A-Za-z0-9_]+)"?\s*\))?`)
	spacesRe     = regexp.MustCompile(`\s+`)
	typeArgsRe   = regexp.MustCompile(`^([a-z ]+?)\s*\(\s*([0-9 ,]*)\s*\)$`)
)

// Normalizer validates and completes a graph. It is the only stage that
// mutates a graph.
type Normalizer struct {
	mu          sync.RWMutex
	aliases     map[string]string
	params      map[string]bool
	defaults    map[string]string
	polymorphic []string
}

func NewNormalizer(cat reference.Catalog) *Normalizer {
	n := &Normalizer{}
	n.Reload(cat)
	return n
}

// Reload swaps the type catalog in place.
func (n *Normalizer) Reload(cat reference.Catalog) {
	aliases := map[string]string{}
	params := map[string]bool{}
	defaults := map[string]string{}
	for _, t := range cat.Types {
		name := strings.ToLower(t.Name)
		aliases[name] = name
		for _, a := range t.Aliases {
			aliases[strings.ToLower(a)] = name
		}
		params[name] = t.Params
		if t.DefaultParams != "" {
			defaults[name] = t.DefaultParams
		}
	}
	n.mu.Lock()
	n.aliases, n.params, n.defaults = aliases, params, defaults
	n.polymorphic = append([]string(nil), cat.Polymorphic...)
	n.mu.Unlock()
}

// Normalize runs the default normalizer.
func Normalize(g *Graph) *Graph {
	return NewNormalizer(reference.Default()).Normalize(g)
}

// Normalize is idempotent: Normalize(Normalize(g)) equals Normalize(g).
func (n *Normalizer) Normalize(g *Graph) *Graph {
	if g == nil {
		return &Graph{}
	}

	// 1) names, column types, constraint atoms; FK atoms become relationships
	seen := map[string]struct{}{}
	tables := make([]*Table, 0, len(g.Tables))
	for _, t := range g.Tables {
		if t == nil {
			continue
		}
		t.Name = Ident(t.Name)
		if t.Name == "" {
			continue
		}
		if _, dup := seen[t.Name]; dup {
			log.Printf("normalize: dropping duplicate table %q", t.Name)
			continue
		}
		seen[t.Name] = struct{}{}
		if t.PrefixedName != "" {
			t.PrefixedName = strings.ToLower(t.PrefixedName)
		}
		n.cleanColumns(t)
		tables = append(tables, t)
	}
	g.Tables = tables

	// 2) relationships: resolve, complete, relocate. Junction tables appended
	// here are picked up by the same loop.
	forced := map[string]bool{}
	for i := 0; i < len(g.Tables); i++ {
		n.completeRelationships(g, g.Tables[i], forced)
	}

	// 3) per-table column injection
	for _, t := range g.Tables {
		n.enrichPolymorphic(t, forced[t.Name])
		n.ensureRequired(t)
		ensureForeignKeyColumns(t)
	}
	return g
}

func (n *Normalizer) cleanColumns(t *Table) {
	cols := make([]Column, 0, len(t.Columns))
	seen := map[string]struct{}{}
	for _, c := range t.Columns {
		c.Name = Ident(c.Name)
		if c.Name == "" {
			continue
		}
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		c.Type = n.CanonicalType(c.Type)

		var atoms []string
		for _, raw := range c.Constraints {
			for _, atom := range SplitAtoms(raw) {
				if rel, isFK := referenceFromAtom(atom, c.Name); isFK {
					if rel.TargetTable != "" && t.RelationshipFor(c.Name) == nil {
						t.Relationships = append(t.Relationships, rel)
					}
					continue
				}
				if keepAtom(atom) && !contains(atoms, atom) {
					atoms = append(atoms, atom)
				}
			}
		}
		c.Constraints = atoms
		cols = append(cols, c)
	}
	t.Columns = cols
}

// SplitAtoms breaks a constraint string such as "NOT NULL DEFAULT now()" into
// lower-cased atoms: ["not null", "default now()"].
func SplitAtoms(raw string) []string {
	s := strings.TrimSpace(spacesRe.ReplaceAllString(raw, " "))
	if s == "" {
		return nil
	}
	locs := atomStartRe.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return []string{lowerAtom(s)}
	}
	var out []string
	if locs[0][0] > 0 {
		if head := strings.Trim(strings.TrimSpace(s[:locs[0][0]]), ","); head != "" {
			out = append(out, lowerAtom(head))
		}
	}
	for i, loc := range locs {
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		// "default" swallows everything up to the next keyword except when the
		// keyword is part of a quoted literal; keep it simple and split.
		part := strings.Trim(strings.TrimSpace(s[loc[0]:end]), ",")
		if part == "" {
			continue
		}
		// "on delete" after "references x" belongs to the reference atom
		kw := strings.ToLower(spacesRe.ReplaceAllString(s[loc[0]:loc[1]], " "))
		if (kw == "on delete" || kw == "on update") && len(out) > 0 && strings.HasPrefix(out[len(out)-1], "references") {
			continue
		}
		if kw == "references" && len(out) > 0 && strings.HasPrefix(out[len(out)-1], "foreign key") {
			out[len(out)-1] = out[len(out)-1] + " " + lowerAtom(part)
			continue
		}
		out = append(out, lowerAtom(part))
	}
	return out
}

// lowerAtom lower-cases keywords but keeps quoted default literals intact.
func lowerAtom(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "default value ") {
		return AtomDefault + " " + strings.TrimSpace(s[len("default value "):])
	}
	if strings.HasPrefix(lower, "default ") {
		expr := strings.TrimSpace(s[len("default "):])
		if !strings.ContainsAny(expr, `'"`) {
			expr = strings.ToLower(expr)
		}
		return AtomDefault + " " + expr
	}
	return lower
}

func keepAtom(a string) bool {
	switch a {
	case AtomPrimaryKey, AtomUnique, AtomNotNull:
		return true
	}
	return strings.HasPrefix(a, AtomDefault+" ")
}

func referenceFromAtom(atom, column string) (Relationship, bool) {
	if !strings.HasPrefix(atom, "references") && !strings.HasPrefix(atom, "foreign key") {
		return Relationship{}, false
	}
	m := referencesRe.FindStringSubmatch(atom)
	if m == nil {
		// bare "foreign key" without target: nothing to recover
		return Relationship{}, strings.HasPrefix(atom, "foreign key")
	}
	target := m[1]
	if i := strings.LastIndexByte(target, '.'); i >= 0 {
		target = target[i+1:]
	}
	col := m[2]
	if col == "" {
		col = IDColumn
	}
	return Relationship{Type: ManyToOne, SourceColumn: column, TargetTable: target, TargetColumn: strings.ToLower(col)}, true
}

// CanonicalType maps aliases and fixes argument lists:
// varchar -> varchar(255), int -> integer, integer(11) -> integer.
func (n *Normalizer) CanonicalType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(spacesRe.ReplaceAllString(raw, " ")))
	if t == "" {
		return "text"
	}
	base, args := t, ""
	if m := typeArgsRe.FindStringSubmatch(t); m != nil {
		base, args = strings.TrimSpace(m[1]), strings.ReplaceAll(m[2], " ", "")
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if canon, ok := n.aliases[base]; ok {
		base = canon
	} else {
		return t
	}
	if !n.params[base] {
		return base
	}
	if args == "" {
		if d, ok := n.defaults[base]; ok {
			return base + "(" + d + ")"
		}
		return base
	}
	return base + "(" + args + ")"
}

func normalizeKind(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.NewReplacer("_", "-", " ", "-").Replace(k)
	switch k {
	case "", "many-to-one", "manytoone", "belongs-to", "belongsto", "n:1", "n-1":
		return ManyToOne
	case "one-to-many", "onetomany", "has-many", "hasmany", "1:n", "1-n":
		return OneToMany
	case "one-to-one", "onetoone", "has-one", "hasone", "1:1", "1-1":
		return OneToOne
	case "many-to-many", "manytomany", "n:m", "m:n", "n-m", "m-n":
		return ManyToMany
	case "polymorphic", "morph", "morph-to":
		return Polymorphic
	}
	return ManyToOne
}

func (n *Normalizer) completeRelationships(g *Graph, t *Table, forced map[string]bool) {
	rels := make([]Relationship, 0, len(t.Relationships))
	for _, r := range t.Relationships {
		r.Type = normalizeKind(r.Type)
		if r.Type == Polymorphic {
			forced[t.Name] = true
			continue
		}
		target := g.Resolve(r.TargetTable)
		if target == nil {
			log.Printf("normalize: %s: dropping relationship to unknown table %q", t.Name, r.TargetTable)
			continue
		}
		if r.TargetTable != target.Name && r.OriginalTargetTable == "" {
			r.OriginalTargetTable = r.TargetTable
		}
		r.TargetTable = target.Name
		r.SourceColumn = Ident(r.SourceColumn)
		r.TargetColumn = Ident(r.TargetColumn)

		// "one-to-many" written on the child with its own FK column is really
		// the child's many-to-one.
		if r.Type == OneToMany && r.SourceColumn != "" && r.SourceColumn != IDColumn && t.HasColumn(r.SourceColumn) {
			r.Type = ManyToOne
		}

		switch r.Type {
		case OneToOne:
			if r.SourceColumn == IDColumn && r.TargetColumn != "" && r.TargetColumn != IDColumn {
				if target.RelationshipFor(r.TargetColumn) == nil {
					target.Relationships = append(target.Relationships, Relationship{
						Type: OneToOne, SourceColumn: r.TargetColumn, TargetTable: t.Name, TargetColumn: IDColumn,
					})
				}
				continue
			}
		case OneToMany:
			// FK lives on the many side: move it to the child as many-to-one.
			fk := r.TargetColumn
			if fk == "" || fk == IDColumn {
				fk = ForeignKeyColumn(t.Name)
			}
			if target.RelationshipFor(fk) == nil {
				target.Relationships = append(target.Relationships, Relationship{
					Type: ManyToOne, SourceColumn: fk, TargetTable: t.Name, TargetColumn: IDColumn,
				})
			}
			continue
		case ManyToMany:
			ensureJunction(g, t, target)
			continue
		}

		if r.SourceColumn == "" || r.SourceColumn == IDColumn {
			r.SourceColumn = ForeignKeyColumn(target.Name)
		}
		if r.TargetColumn == "" {
			r.TargetColumn = IDColumn
		}
		if containsRel(rels, r) {
			continue
		}
		rels = append(rels, r)
	}
	t.Relationships = rels
}

func containsRel(rels []Relationship, r Relationship) bool {
	for _, x := range rels {
		if x.SourceColumn == r.SourceColumn && x.TargetTable == r.TargetTable {
			return true
		}
	}
	return false
}

// ensureJunction makes sure some table links a and b through two FKs.
func ensureJunction(g *Graph, a, b *Table) {
	for _, t := range g.Tables {
		var toA, toB bool
		for _, r := range t.Relationships {
			toA = toA || r.TargetTable == a.Name
			toB = toB || r.TargetTable == b.Name
		}
		if toA && toB && t != a && t != b {
			return
		}
	}
	name := a.Name + "_" + b.Name
	if g.Table(name) != nil || g.Table(b.Name+"_"+a.Name) != nil {
		return
	}
	colA, colB := ForeignKeyColumn(a.Name), ForeignKeyColumn(b.Name)
	if colA == colB {
		colB = "related_" + colB
	}
	g.Tables = append(g.Tables, &Table{
		Name: name,
		Columns: []Column{
			{Name: colA, Type: "uuid", Constraints: []string{AtomNotNull}},
			{Name: colB, Type: "uuid", Constraints: []string{AtomNotNull}},
		},
		Relationships: []Relationship{
			{Type: ManyToOne, SourceColumn: colA, TargetTable: a.Name, TargetColumn: IDColumn},
			{Type: ManyToOne, SourceColumn: colB, TargetTable: b.Name, TargetColumn: IDColumn},
		},
	})
}

// IsPolymorphicName reports whether a table name matches the shared-child set.
func (n *Normalizer) IsPolymorphicName(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, stem := range n.polymorphic {
		if strings.Contains(name, stem) {
			return true
		}
	}
	return false
}

func (n *Normalizer) enrichPolymorphic(t *Table, forced bool) {
	if !forced && !n.IsPolymorphicName(t.Name) {
		return
	}
	if !forced {
		for _, c := range t.Columns {
			if c.Name != IDColumn && c.Name != TenantColumn && strings.HasSuffix(c.Name, "_id") {
				return
			}
		}
	}
	if !t.HasColumn(EntityType) {
		t.Columns = append(t.Columns, Column{Name: EntityType, Type: "varchar(50)", Constraints: []string{AtomNotNull}})
	}
	if !t.HasColumn(EntityID) {
		t.Columns = append(t.Columns, Column{Name: EntityID, Type: "uuid", Constraints: []string{AtomNotNull}})
	}
	hint := []string{EntityType, EntityID}
	for _, idx := range t.Indexes {
		if strings.Join(idx, ",") == strings.Join(hint, ",") {
			return
		}
	}
	t.Indexes = append(t.Indexes, hint)
}

func (n *Normalizer) ensureRequired(t *Table) {
	// exactly one primary key, and it is "id"
	if t.Column(IDColumn) == nil {
		t.Columns = append([]Column{{Name: IDColumn}}, t.Columns...)
	}
	for i := range t.Columns {
		c := &t.Columns[i]
		if c.Name == IDColumn {
			c.Type = "uuid"
			if !c.Has(AtomPrimaryKey) {
				c.Constraints = append([]string{AtomPrimaryKey}, c.Constraints...)
			}
			if _, ok := c.Default(); !ok {
				c.Constraints = append(c.Constraints, AtomDefault+" uuid_generate_v4()")
			}
			continue
		}
		if c.Has(AtomPrimaryKey) {
			c.Constraints = remove(c.Constraints, AtomPrimaryKey)
		}
	}

	for _, name := range []string{CreatedAtColumn, UpdatedAtColumn} {
		c := t.Column(name)
		if c == nil {
			t.Columns = append(t.Columns, Column{Name: name, Type: "timestamp"})
			c = &t.Columns[len(t.Columns)-1]
		}
		if bt := c.BaseType(); bt != "timestamp" && bt != "timestamptz" {
			c.Type = "timestamp"
		}
		if _, ok := c.Default(); !ok {
			c.Constraints = append(c.Constraints, AtomDefault+" now()")
		}
	}

	if c := t.Column(TenantColumn); c == nil {
		t.Columns = append(t.Columns, Column{Name: TenantColumn, Type: "varchar(255)", Constraints: []string{AtomNotNull}})
	} else if bt := c.BaseType(); bt != "varchar" && bt != "text" {
		c.Type = "varchar(255)"
	}
}

// ensureForeignKeyColumns injects dangling FK columns as uuid not null and
// aligns existing ones with the uuid primary keys they point at.
func ensureForeignKeyColumns(t *Table) {
	for _, r := range t.Relationships {
		if r.SourceColumn == TenantColumn {
			continue
		}
		c := t.Column(r.SourceColumn)
		if c == nil {
			t.Columns = append(t.Columns, Column{Name: r.SourceColumn, Type: "uuid", Constraints: []string{AtomNotNull}})
			continue
		}
		if r.TargetColumn == IDColumn && c.Type != "uuid" {
			c.Type = "uuid"
		}
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, x := range list {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
