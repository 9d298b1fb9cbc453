package router

import (
	"encoding/json"
	"testing"

	"apiforge/internal/pg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPI(t *testing.T) {
	r := New(blogGraph(), "alice", "xyz123", pg.NewMemoryDB())
	b, err := json.Marshal(r.OpenAPI("http://localhost:3000/api/abc"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Equal(t, "http://localhost:3000/api/abc", doc["servers"].([]any)[0].(map[string]any)["url"])

	paths := doc["paths"].(map[string]any)
	assert.Contains(t, paths, "/users")
	assert.Contains(t, paths, "/users/{id}")
	assert.Contains(t, paths, "/posts/{id}")

	props := doc["components"].(map[string]any)["schemas"].(map[string]any)["users"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string", "format": "uuid"}, props["id"])
	assert.Equal(t, map[string]any{"type": "integer", "example": float64(1)}, props["age"])
	assert.Equal(t, map[string]any{"type": "string", "example": "name"}, props["name"])
	assert.Equal(t, map[string]any{"type": "string", "format": "date-time"}, props["created_at"])

	input := doc["components"].(map[string]any)["schemas"].(map[string]any)["usersInput"].(map[string]any)
	assert.NotContains(t, input["properties"], "tenant_id")
	assert.Equal(t, []any{"name"}, input["required"])

	posts := doc["components"].(map[string]any)["schemas"].(map[string]any)["posts"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, exampleUUID, posts["user_id"].(map[string]any)["example"])
}

func TestOpenAPI_ServerURLPerCall(t *testing.T) {
	r := New(blogGraph(), "alice", "xyz123", pg.NewMemoryDB())
	a, _ := json.Marshal(r.OpenAPI("/api/one"))
	b, _ := json.Marshal(r.OpenAPI("/api/two"))
	assert.Contains(t, string(a), `"url":"/api/one"`)
	assert.Contains(t, string(b), `"url":"/api/two"`)
	assert.NotContains(t, string(b), "/api/one")
}

func TestDocument_KeepsOrder(t *testing.T) {
	d := NewDocument()
	d.Set("b", 1)
	d.Set("a", 2)
	d.Set("b", 3)
	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"b":3,"a":2}`, string(out))
}
