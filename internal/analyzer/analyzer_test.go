package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"apiforge/internal/reference"
	"apiforge/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogAnswer = "```json\n" + `{"tables":[
  {"name":"users","columns":[
    {"name":"id","type":"uuid","constraints":["primary key"]},
    {"name":"name","type":"varchar(255)","constraints":["not null"]}
  ]},
  {"name":"posts","columns":[
    {"name":"id","type":"uuid","constraints":["primary key"]},
    {"name":"title","type":"text","constraints":["not null"]},
    {"name":"user_id","type":"uuid","constraints":["not null"]}
  ],"relationships":[{"type":"many-to-one","sourceColumn":"user_id","targetTable":"users","targetColumn":"id"}]}
]}` + "\n```"

func fixed(answer string) Provider {
	return ProviderFunc(func(context.Context, string, string) (string, error) { return answer, nil })
}

func newAnalyzer(p Provider) *Analyzer {
	return New(p, schema.NewNormalizer(reference.Default()), time.Second)
}

func TestAnalyze_Blog(t *testing.T) {
	res, err := newAnalyzer(fixed(blogAnswer)).Analyze(context.Background(), "blog with users and posts")
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, []string{"users", "posts"}, res.Graph.Names())

	posts := res.Graph.Table("posts")
	assert.True(t, posts.HasColumn(schema.TenantColumn))
	assert.Equal(t, "uuid", posts.Column("user_id").Type)
	assert.Equal(t, []string{"not null"}, posts.Column("user_id").Constraints)
	require.Len(t, posts.Relationships, 1)
	assert.Equal(t, "users", posts.Relationships[0].TargetTable)
}

func TestAnalyze_PromptCarriesHints(t *testing.T) {
	var gotSystem, gotUser string
	p := ProviderFunc(func(_ context.Context, system, user string) (string, error) {
		gotSystem, gotUser = system, user
		return blogAnswer, nil
	})
	_, err := newAnalyzer(p).Analyze(context.Background(), "teachers with multiple addresses")
	require.NoError(t, err)
	assert.Contains(t, gotSystem, `Never put "references"`)
	assert.Contains(t, gotUser, "polymorphic pattern")

	_, err = newAnalyzer(p).Analyze(context.Background(), "a todo list")
	require.NoError(t, err)
	assert.Equal(t, "a todo list", gotUser)
}

func TestAnalyze_Fallback(t *testing.T) {
	res, err := newAnalyzer(fixed("sorry, no can do")).Analyze(context.Background(), "A library with books, authors and members")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, []string{"libraries", "books", "authors"}, res.Graph.Names())
	for _, tbl := range res.Graph.Tables {
		assert.NotNil(t, tbl.PrimaryKey())
		assert.True(t, tbl.HasColumn(schema.TenantColumn))
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	p := ProviderFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	a := New(p, schema.NewNormalizer(reference.Default()), 20*time.Millisecond)
	_, err := a.Analyze(context.Background(), "blog")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAnalyze_ProviderError(t *testing.T) {
	p := ProviderFunc(func(context.Context, string, string) (string, error) {
		return "", &ProviderError{Status: 429, Message: "rate limited"}
	})
	_, err := newAnalyzer(p).Analyze(context.Background(), "blog")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 429, pe.Status)

	_, err = newAnalyzer(nil).Analyze(context.Background(), "blog")
	require.ErrorAs(t, err, &pe)
}

func materializedBlog(t *testing.T) *schema.Graph {
	t.Helper()
	res, err := newAnalyzer(fixed(blogAnswer)).Analyze(context.Background(), "blog")
	require.NoError(t, err)
	return res.Graph.WithPrefixes("alice", "xyz123")
}

func TestModify_AddsTableAndPreservesOthers(t *testing.T) {
	orig := materializedBlog(t)
	before, err := json.Marshal(orig)
	require.NoError(t, err)

	answer := `{"tables":[{"name":"comments","columns":[
		{"name":"body","type":"text","constraints":["not null"]},
		{"name":"post_id","type":"uuid"}
	],"relationships":[{"type":"many-to-one","sourceColumn":"post_id","targetTable":"posts"}]}]}`

	got, err := newAnalyzer(fixed(answer)).Modify(context.Background(), orig, "add a comments table belonging to posts")
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "posts", "comments"}, got.Names())

	for _, name := range []string{"users", "posts"} {
		want, _ := json.Marshal(orig.Table(name))
		have, _ := json.Marshal(got.Table(name))
		assert.JSONEq(t, string(want), string(have), name)
	}
	comments := got.Table("comments")
	require.Len(t, comments.Relationships, 1)
	assert.Equal(t, schema.Relationship{Type: schema.ManyToOne, SourceColumn: "post_id", TargetTable: "posts", TargetColumn: "id"}, comments.Relationships[0])

	after, _ := json.Marshal(orig)
	assert.JSONEq(t, string(before), string(after), "input graph is not mutated")
}

func TestModify_Unparseable(t *testing.T) {
	orig := materializedBlog(t)
	got, err := newAnalyzer(fixed("no")).Modify(context.Background(), orig, "whatever")
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.Same(t, orig, got)
}

func TestMerge_RepairsRelationships(t *testing.T) {
	orig := materializedBlog(t)
	edited := &schema.Graph{Tables: []*schema.Table{{
		Name:    "posts",
		Columns: orig.Table("posts").Clone().Columns,
		Relationships: []schema.Relationship{
			{Type: schema.ManyToOne, TargetTable: "users"},
		},
	}}}

	merged := Merge(orig, edited)
	posts := merged.Table("posts")
	assert.Equal(t, "alice_xyz123_posts", posts.PrefixedName)
	require.Len(t, posts.Relationships, 1)
	assert.Equal(t, "user_id", posts.Relationships[0].SourceColumn)
	assert.Equal(t, "id", posts.Relationships[0].TargetColumn)
	assert.NotNil(t, merged.Table("users"))
}

func TestFallback_NoNouns(t *testing.T) {
	g := Fallback("make an api")
	assert.Equal(t, []string{"items"}, g.Names())
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(req.Messages[1].Content, "fail") {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"` + req.Model + `","choices":[{"index":0,"message":{"role":"assistant","content":"  {\"tables\":[]}  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL+"/", "")
	assert.Equal(t, "gpt-4o-mini", p.model)

	out, err := p.Complete(context.Background(), "sys", "blog")
	require.NoError(t, err)
	assert.Equal(t, `{"tables":[]}`, out)

	_, err = p.Complete(context.Background(), "sys", "fail")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadGateway, pe.Status)
	assert.Equal(t, "upstream down", pe.Message)
}
