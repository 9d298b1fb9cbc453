package dsl

// Entity is one `entity <Name>:` block.
type Entity struct {
	Name   string
	Fields []Field
	// Unique holds column sets from the constraints block.
	Unique [][]string
}

type Field struct {
	Name      string
	Type      string // string, text, int, float, bool, date, datetime, uuid, json, enum, ref, array
	ElemType  string
	RefTarget string
	Enum      []string
	Options   map[string]string // required, unique, default
}
