package reference

// Catalog describes the column types the schema pipeline accepts and the
// table stems that are treated as shared (polymorphic) children.
type Catalog struct {
	Types       []TypeItem `yaml:"types"`
	Polymorphic []string   `yaml:"polymorphic"`
}

type TypeItem struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases,omitempty"`
	// Params marks types that legitimately take (n) / (p,s) arguments.
	Params bool `yaml:"params,omitempty"`
	// Default argument list applied when the type is written bare, e.g. "255".
	DefaultParams string `yaml:"default_params,omitempty"`
}

// Default is used when no catalog file is present.
func Default() Catalog {
	return Catalog{
		Types: []TypeItem{
			{Name: "uuid"},
			{Name: "varchar", Aliases: []string{"character varying", "string"}, Params: true, DefaultParams: "255"},
			{Name: "char", Aliases: []string{"character"}, Params: true},
			{Name: "text"},
			{Name: "integer", Aliases: []string{"int", "int4"}},
			{Name: "bigint", Aliases: []string{"int8"}},
			{Name: "smallint", Aliases: []string{"int2"}},
			{Name: "serial"},
			{Name: "bigserial"},
			{Name: "numeric", Aliases: []string{"decimal"}, Params: true},
			{Name: "real", Aliases: []string{"float4"}},
			{Name: "double precision", Aliases: []string{"float", "float8", "double"}},
			{Name: "boolean", Aliases: []string{"bool"}},
			{Name: "timestamp", Aliases: []string{"datetime"}, Params: true},
			{Name: "timestamptz", Aliases: []string{"timestamp with time zone"}, Params: true},
			{Name: "date"},
			{Name: "time", Params: true},
			{Name: "json"},
			{Name: "jsonb"},
		},
		Polymorphic: []string{"address", "location", "contact", "phone", "email"},
	}
}

// TypeNames lists canonical type names in catalog order.
func (c Catalog) TypeNames() []string {
	out := make([]string, 0, len(c.Types))
	for _, t := range c.Types {
		out = append(out, t.Name)
	}
	return out
}
