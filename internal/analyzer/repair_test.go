package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, StripFences(`  {"a":1} `))
}

func TestRewriteDefaultValue(t *testing.T) {
	in := `{"constraints": [{"default value": "draft"}]}`
	assert.Equal(t, `{"constraints": [{"default draft"}]}`, RewriteDefaultValue(in))
}

func TestStringifyConstraintObjects(t *testing.T) {
	in := `{"constraints": ["not null", {"type": "unique"}, {"default draft"}], "x": {"keep": 1}}`
	assert.Equal(t, `{"constraints": ["not null", "unique", "default draft"], "x": {"keep": 1}}`, StringifyConstraintObjects(in))
}

func TestInsertMissingCommas(t *testing.T) {
	in := "{\"constraints\": [\"not null\" \"unique\"],\n \"a\": \"b\"\n\"c\": \"d\"}"
	out := InsertMissingCommas(in)
	assert.Contains(t, out, `["not null", "unique"]`)
	assert.Contains(t, out, "\"b\",\n\"c\"")
}

func TestExtractFirstObject(t *testing.T) {
	assert.Equal(t, `{"a":"}{","b":{"c":1}}`, ExtractFirstObject(`Sure! {"a":"}{","b":{"c":1}} hope this helps {"x":2}`))
	assert.Equal(t, "no json", ExtractFirstObject("no json"))
}

func TestParseResponse(t *testing.T) {
	cases := map[string]string{
		"strict":       `{"tables":[{"name":"users","columns":[{"name":"email","type":"varchar","constraints":["unique"]}]}]}`,
		"fenced":       "```json\n{\"tables\":[{\"name\":\"users\",\"columns\":[{\"name\":\"email\",\"type\":\"varchar\"}]}]}\n```",
		"prose":        `Here is your schema: {"tables":[{"name":"users","columns":[{"name":"email","type":"text"}]}]} Enjoy!`,
		"defaultValue": `{"tables":[{"name":"users","columns":[{"name":"email","type":"text","constraints":[{"default value": "none"}]}]}]}`,
		"noCommas":     `{"tables":[{"name":"users","columns":[{"name":"email","type":"text","constraints":["unique" "not null"]}]}]}`,
		"bareArray":    `[{"name":"users","columns":[{"name":"email","type":"text"}]}]`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			g, err := ParseResponse(in)
			require.NoError(t, err)
			require.NotNil(t, g.Table("users"))
			assert.Equal(t, "email", g.Table("users").Columns[0].Name)
		})
	}
}

func TestParseResponse_Unparseable(t *testing.T) {
	_, err := ParseResponse("I cannot help with that.")
	assert.ErrorIs(t, err, ErrUnparseable)

	_, err = ParseResponse(`{"tables": []}`)
	assert.ErrorIs(t, err, ErrUnparseable)
}
