package analyzer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstraints_Unmarshal(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`"not null"`, []string{"not null"}},
		{`["unique", "not null"]`, []string{"unique", "not null"}},
		{`[{"type": "default", "value": "0"}]`, []string{"default 0"}},
		{`{"unique": true, "nullable": false}`, []string{"unique"}},
		{`[["primary key"], {"constraint": "unique"}]`, []string{"primary key", "unique"}},
		{`null`, nil},
	}
	for _, tc := range cases {
		var c Constraints
		require.NoError(t, json.Unmarshal([]byte(tc.in), &c), tc.in)
		assert.Equal(t, Constraints(tc.want), c, tc.in)
	}
}

func TestDecodeGraph_Variants(t *testing.T) {
	g, err := DecodeGraph([]byte(`{"tables":[
		{"table_name":"posts","fields":[
			{"name":"user_id","type":"uuid","references":"users(id)","nullable":false},
			{"name":"status","type":"text","default":"draft"}
		],"relationships":[{"type":"many-to-one","source_column":"user_id","target_table":"users"}]},
		{"originalName":"users","columns":[{"name":"name","type":"text"}]}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "users"}, g.Names())

	posts := g.Table("posts")
	assert.Equal(t, []string{"not null", "references users(id)"}, posts.Column("user_id").Constraints)
	assert.Equal(t, []string{"default draft"}, posts.Column("status").Constraints)
	require.Len(t, posts.Relationships, 1)
	assert.Equal(t, "user_id", posts.Relationships[0].SourceColumn)
	assert.Equal(t, "users", posts.Relationships[0].TargetTable)
}
