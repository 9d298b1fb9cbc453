package schema

import (
	"regexp"
	"strings"
)

var (
	nonIdent   = regexp.MustCompile(`[^a-z0-9_]+`)
	multiUnder = regexp.MustCompile(`_+`)
	camelHump  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// PrefixedName is the physical table name for one API instance of a tenant.
func PrefixedName(tenantID, apiIdentifier, name string) string {
	return strings.ToLower(tenantID + "_" + apiIdentifier + "_" + name)
}

// WithPrefixes returns a copy of g whose prefixed names are re-derived from
// tenant and identifier, overriding whatever was stored before.
func (g *Graph) WithPrefixes(tenantID, apiIdentifier string) *Graph {
	out := g.Clone()
	for _, t := range out.Tables {
		t.PrefixedName = PrefixedName(tenantID, apiIdentifier, t.Name)
	}
	return out
}

// Ident turns free text into a lower snake_case identifier.
// "Blog Posts" -> "blog_posts", "userId" -> "user_id".
func Ident(s string) string {
	s = strings.TrimSpace(s)
	s = camelHump.ReplaceAllString(s, "${1}_${2}")
	s = strings.ToLower(s)
	s = nonIdent.ReplaceAllString(s, "_")
	s = multiUnder.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// SafeName strips everything outside [A-Za-z0-9_]; used for trigger,
// function and constraint names.
func SafeName(s string) string {
	return unsafeName.ReplaceAllString(s, "_")
}

// Singular is a small English singularizer, enough for table names.
func Singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "sses"), strings.HasSuffix(s, "xes"),
		strings.HasSuffix(s, "ches"), strings.HasSuffix(s, "shes"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "ss"), strings.HasSuffix(s, "us"):
		return s
	case strings.HasSuffix(s, "s") && len(s) > 1:
		return s[:len(s)-1]
	}
	return s
}

// Plural mirrors Singular.
func Plural(s string) string {
	switch {
	case s == "":
		return s
	case strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])):
		return s[:len(s)-1] + "ies"
	case strings.HasSuffix(s, "ss"), strings.HasSuffix(s, "x"),
		strings.HasSuffix(s, "ch"), strings.HasSuffix(s, "sh"):
		return s + "es"
	case strings.HasSuffix(s, "s"):
		return s
	}
	return s + "s"
}

// ForeignKeyColumn is the conventional FK column name pointing at table.
func ForeignKeyColumn(table string) string {
	return Singular(table) + "_id"
}

// Resolve finds the table a relationship target refers to. Besides exact and
// case-insensitive matches it accepts prefixed names and singular/plural
// variants.
func (g *Graph) Resolve(target string) *Table {
	if t := g.Table(target); t != nil {
		return t
	}
	id := Ident(target)
	if id == "" {
		return nil
	}
	for _, cand := range []string{id, Plural(id), Singular(id)} {
		if t := g.Table(cand); t != nil {
			return t
		}
	}
	for _, t := range g.Tables {
		if t.PrefixedName != "" && strings.EqualFold(t.PrefixedName, target) {
			return t
		}
	}
	for _, t := range g.Tables {
		if strings.HasSuffix(id, "_"+t.Name) {
			return t
		}
	}
	return nil
}
