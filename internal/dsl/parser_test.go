package dsl

import (
	"strings"
	"testing"

	"apiforge/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const library = `
module library

# authors write books
entity Author:
  name: string required
  email: string unique
  bio: text

entity Book:
  title: string required
  author: ref[library.Author] required
  status: enum[draft, published] default=draft
  tags: array[string]
  price: money
  constraints:
    unique(title, author)
`

func TestParseEntities(t *testing.T) {
	ents, err := ParseEntities(strings.NewReader(library))
	require.NoError(t, err)
	require.Len(t, ents, 2)

	book := ents[1]
	assert.Equal(t, "Book", book.Name)
	require.Len(t, book.Fields, 5)
	assert.Equal(t, "ref", book.Fields[1].Type)
	assert.Equal(t, "library.Author", book.Fields[1].RefTarget)
	assert.Equal(t, "true", book.Fields[1].Options["required"])
	assert.Equal(t, "enum", book.Fields[2].Type)
	assert.Equal(t, []string{"draft", "published"}, book.Fields[2].Enum)
	assert.Equal(t, "draft", book.Fields[2].Options["default"])
	assert.Equal(t, "array", book.Fields[3].Type)
	assert.Equal(t, [][]string{{"title", "author"}}, book.Unique)
}

func TestSplitOptionTokens(t *testing.T) {
	got := splitOptionTokens(`required default='a b' pattern=[A-Z ]+ label="x y"`)
	assert.Equal(t, []string{"required", "default='a b'", "pattern=[A-Z ]+", `label="x y"`}, got)
}

func TestParse(t *testing.T) {
	g, err := Parse(library)
	require.NoError(t, err)
	assert.Equal(t, []string{"author", "book"}, g.Names())

	author := g.Table("author")
	assert.Equal(t, "varchar(255)", author.Column("name").Type)
	assert.Equal(t, []string{schema.AtomNotNull}, author.Column("name").Constraints)
	assert.Equal(t, []string{schema.AtomUnique}, author.Column("email").Constraints)

	book := g.Table("book")
	fk := book.Column("author_id")
	require.NotNil(t, fk)
	assert.Equal(t, "uuid", fk.Type)
	require.Len(t, book.Relationships, 1)
	assert.Equal(t, schema.Relationship{Type: schema.ManyToOne, SourceColumn: "author_id", TargetTable: "author", TargetColumn: "id"}, book.Relationships[0])
	assert.Equal(t, []string{"default draft"}, book.Column("status").Constraints)
	assert.Equal(t, "jsonb", book.Column("tags").Type)
	assert.Equal(t, [][]string{{"title", "author_id"}}, book.Indexes)

	n := schema.Normalize(g)
	assert.Empty(t, schema.Lint(n))
}

func TestParseSingleUnique(t *testing.T) {
	g, err := Parse("entity Tag:\n  slug: string\n  constraints:\n    unique(slug)\n")
	require.NoError(t, err)
	assert.Equal(t, []string{schema.AtomUnique}, g.Table("tag").Column("slug").Constraints)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "# nothing\n",
		"outside entity": "name: string\n",
		"garbage":        "entity A:\n  ???\n",
		"unknown unique": "entity A:\n  x: int\n  constraints:\n    unique(y)\n",
		"bad bracket":    "entity A:\n  x: list[int]\n",
	}
	for name, src := range cases {
		_, err := Parse(src)
		assert.Error(t, err, name)
	}
}
