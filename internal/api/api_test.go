package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"apiforge/internal/analyzer"
	"apiforge/internal/audit"
	"apiforge/internal/factory"
	"apiforge/internal/pg"
	"apiforge/internal/reference"
	"apiforge/internal/registry"
	"apiforge/internal/router"
	"apiforge/internal/schema"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogAnswer = `{"tables":[
  {"name":"users","columns":[{"name":"name","type":"varchar(255)","constraints":["not null"]},{"name":"password","type":"text"}]},
  {"name":"posts","columns":[{"name":"title","type":"text"},{"name":"user_id","type":"uuid","constraints":["not null"]}],
   "relationships":[{"type":"many-to-one","sourceColumn":"user_id","targetTable":"users","targetColumn":"id"}]}
]}`

type testServer struct {
	engine  *gin.Engine
	db      *pg.MemoryDB
	store   *registry.MemoryStore
	reg     *registry.Registry
	audit   *audit.MemoryStore
	logger  *audit.Logger
	factory *factory.Factory
}

func newTestServer(t *testing.T, p analyzer.Provider) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := &testServer{db: pg.NewMemoryDB(), store: registry.NewMemoryStore(), audit: audit.NewMemoryStore()}
	ts.build(p)
	t.Cleanup(func() { ts.logger.Close() })
	return ts
}

// build wires a fresh process over the same database and stores.
func (ts *testServer) build(p analyzer.Provider) {
	n := schema.NewNormalizer(reference.Default())
	a := analyzer.New(p, n, time.Second)
	reg := registry.New(ts.store, router.NewBuilder(ts.db))
	f := factory.New(a, n, pg.NewMaterializer(ts.db), reg, ts.db)
	ts.reg, ts.factory = reg, f
	ts.logger = audit.NewLogger(ts.audit, 64)
	ts.engine = NewEngine(Options{
		Factory:      f,
		Registry:     reg,
		Normalizer:   n,
		Audit:        ts.logger,
		ReferenceDir: "testdata/none",
	})
}

func answer(s string) analyzer.Provider {
	return analyzer.ProviderFunc(func(context.Context, string, string) (string, error) { return s, nil })
}

func (ts *testServer) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func (ts *testServer) generate(t *testing.T, tenant string) string {
	t.Helper()
	w := ts.do(http.MethodPost, "/generate-api", gin.H{"prompt": "blog with users and posts", "tenantId": tenant})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["apiId"].(string)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	w := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGenerateAPI_EndToEnd(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	w := ts.do(http.MethodPost, "/generate-api", gin.H{"prompt": "blog with users and posts", "tenantId": "alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	id := body["apiId"].(string)
	ident := body["apiIdentifier"].(string)
	assert.Len(t, body["tables"], 2)
	assert.NotNil(t, body["swagger"])
	assert.Nil(t, body["fallback"])
	assert.True(t, ts.db.HasTable("alice_"+ident+"_users"))

	base := "/api/" + id
	w = ts.do(http.MethodPost, base+"/users", gin.H{"name": "Bob", "id": "string", "created_at": "string"}, "X-Tenant-Id", "alice")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	user := decode(t, w)
	assert.Equal(t, "Bob", user["name"])
	assert.Equal(t, "alice", user[schema.TenantColumn])
	assert.NotEqual(t, "string", user["id"])

	w = ts.do(http.MethodGet, base+"/users?page=1&limit=10&sort=created_at&order=desc", nil, "X-Tenant-Id", "alice")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode(t, w)
	data := list["data"].([]any)
	require.NotEmpty(t, data)
	assert.Equal(t, user["id"], data[0].(map[string]any)["id"])

	// another tenant does not see alice's row
	w = ts.do(http.MethodGet, base+"/users/"+user["id"].(string), nil, "x-user-id", "bob")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, base+"/posts", nil, "X-Tenant-Id", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"page":1,"limit":10,"total":0}`, mustJSON(decode(t, w)["pagination"]))
}

func TestGeneratedAPI_ForeignKeyBodyFieldIsNotATenant(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	base := "/api/" + ts.generate(t, "alice")

	w := ts.do(http.MethodPost, base+"/users", gin.H{"name": "Bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bob := decode(t, w)
	assert.Equal(t, "alice", bob[schema.TenantColumn])

	w = ts.do(http.MethodPost, base+"/posts", gin.H{"title": "hi", "user_id": bob["id"]})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	post := decode(t, w)
	assert.Equal(t, "alice", post[schema.TenantColumn])

	w = ts.do(http.MethodGet, base+"/posts", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, post["id"], data[0].(map[string]any)["id"])

	w = ts.do(http.MethodGet, base+"/posts/"+post["id"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestTenantFromBody(t *testing.T) {
	cases := map[string]string{
		`{"tenantId":"alice"}`:            "alice",
		`{"XAuthUserId":" carol "}`:       "carol",
		`{"x-user-id":"dave"}`:            "dave",
		`{"user_id":"u1","userId":"u2"}`:  "",
		`{"tenant_id":"eve","title":"x"}`: "",
		`[{"tenantId":"alice"}]`:          "",
		`not json`:                        "",
	}
	for body, want := range cases {
		assert.Equal(t, want, tenantFromBody([]byte(body)), body)
	}
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestGenerateAPI_Validation(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))

	w := ts.do(http.MethodPost, "/generate-api", gin.H{"tenantId": "alice"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, codeValidation, body["code"])
	errs := body["errors"].([]any)
	assert.Equal(t, "prompt", errs[0].(map[string]any)["field"])

	w = ts.do(http.MethodPost, "/generate-api", gin.H{"prompt": "blog"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "tenantId")

	w = ts.do(http.MethodPost, "/generate-api", gin.H{"prompt": "blog", "tenantId": "bad tenant"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/generate-api", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateAPI_TenantFromHeader(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	w := ts.do(http.MethodPost, "/generate-api", gin.H{"prompt": "blog"}, "XAuthUserId", "carol")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "carol", decode(t, w)["tenantId"])
}

func TestGenerateAPI_Fallback(t *testing.T) {
	ts := newTestServer(t, answer("no json here"))
	w := ts.do(http.MethodPost, "/generate-api", gin.H{"prompt": "a shop with products and orders", "tenantId": "acme"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["fallback"])
	assert.NotEmpty(t, body["warning"])
}

func TestProviderErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"timeout", fmt.Errorf("call: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"provider", &analyzer.ProviderError{Status: 429, Message: "rate limited"}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := analyzer.ProviderFunc(func(context.Context, string, string) (string, error) { return "", tc.err })
			ts := newTestServer(t, p)
			w := ts.do(http.MethodPost, "/generate-schema", gin.H{"prompt": "blog"})
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
}

func TestGenerateSchema(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	w := ts.do(http.MethodPost, "/generate-schema", gin.H{"prompt": "blog"})
	require.Equal(t, http.StatusOK, w.Code)
	var g schema.Graph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Equal(t, []string{"users", "posts"}, g.Names())
	assert.Empty(t, ts.db.Scripts, "schema generation creates nothing")
}

func TestModifySchema(t *testing.T) {
	base, err := analyzer.ParseResponse(blogAnswer)
	require.NoError(t, err)
	existing := schema.Normalize(base)

	ts := newTestServer(t, answer(`{"tables":[{"name":"comments","columns":[{"name":"body","type":"text"},{"name":"post_id","type":"uuid"}],
	  "relationships":[{"type":"many-to-one","sourceColumn":"post_id","targetTable":"posts"}]}]}`))
	w := ts.do(http.MethodPost, "/modify-schema", gin.H{"prompt": "add comments", "existingTables": existing.Tables})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var g schema.Graph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Equal(t, []string{"users", "posts", "comments"}, g.Names())

	ts = newTestServer(t, answer("garbage"))
	w = ts.do(http.MethodPost, "/modify-schema", gin.H{"prompt": "add comments", "existingTables": existing.Tables})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(http.MethodPost, "/modify-schema", gin.H{"prompt": "add comments"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAPIFromSchema(t *testing.T) {
	ts := newTestServer(t, nil)
	tables := []gin.H{
		{"name": "projects", "columns": []gin.H{{"name": "title", "type": "varchar", "constraints": []string{"not null"}}}},
	}
	w := ts.do(http.MethodPost, "/create-api-from-schema", gin.H{"tables": tables, "tenantId": "acme"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	id := body["apiId"].(string)
	eps := body["endpoints"].([]any)
	require.Len(t, eps, 5)
	assert.Equal(t, "/api/"+id+"/projects", eps[0].(map[string]any)["path"])

	w = ts.do(http.MethodPost, "/create-api-from-schema", gin.H{
		"dsl":      "entity Author:\n  name: string required\nentity Book:\n  title: string\n  author: ref[Author]\n",
		"tenantId": "acme",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, decode(t, w)["tables"], 2)

	w = ts.do(http.MethodPost, "/create-api-from-schema", gin.H{"dsl": "nonsense", "tenantId": "acme"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ErrInvalidDSL)

	w = ts.do(http.MethodPost, "/create-api-from-schema", gin.H{"tables": []gin.H{{"name": "9lives"}}, "tenantId": "acme"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_identifier")
}

func TestMaterializationFailure(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	ts.db.FailExec = func(script string) error {
		if strings.Contains(script, "create table") {
			return errors.New("disk full")
		}
		return nil
	}
	w := ts.do(http.MethodPost, "/generate-api", gin.H{"prompt": "blog", "tenantId": "acme"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "materialization_failed", body["code"])
	assert.ElementsMatch(t, []any{"users", "posts"}, body["missing"])
}

func TestExecutorUnavailable(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	ts.db.Denied = true
	w := ts.do(http.MethodPost, "/generate-api", gin.H{"prompt": "blog", "tenantId": "acme"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "executor_unavailable", body["code"])
	assert.NotEmpty(t, body["hint"])
}

func TestGeneratedAPI_Extras(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	id := ts.generate(t, "alice")
	base := "/api/" + id

	w := ts.do(http.MethodGet, base+"/swagger.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	doc := decode(t, w)
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Equal(t, base, doc["servers"].([]any)[0].(map[string]any)["url"])

	w = ts.do(http.MethodGet, base+"/sql", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "create table")

	w = ts.do(http.MethodGet, base+"/docs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")
	assert.Contains(t, w.Body.String(), base+"/swagger.json")

	w = ts.do(http.MethodGet, base+"/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["tables"], 2)

	w = ts.do(http.MethodGet, base+"/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(http.MethodPatch, base+"/users", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestGeneratedAPI_Unknown(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	w := ts.do(http.MethodGet, "/api/5b0c7d2e-8f3a-4c1d-9e6b-2a4f8c1d3e5f/users", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(http.MethodGet, "/api/not-a-uuid/users", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRestartRebuildsRouters(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	id := ts.generate(t, "alice")
	w := ts.do(http.MethodPost, "/api/"+id+"/users", gin.H{"name": "Bob"}, "X-Tenant-Id", "alice")
	require.Equal(t, http.StatusCreated, w.Code)
	ts.reg.Flush()
	ts.logger.Close()

	ts.build(answer(blogAnswer))
	n, err := ts.reg.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	w = ts.do(http.MethodGet, "/api/"+id+"/users", nil, "X-Tenant-Id", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)
	w = ts.do(http.MethodGet, "/api/"+id+"/posts", nil, "X-Tenant-Id", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[],"pagination":{"page":1,"limit":10,"total":0}}`, w.Body.String())
}

func TestListAndUnpublish(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	id := ts.generate(t, "alice")
	ts.generate(t, "bob")
	ts.reg.Flush()

	w := ts.do(http.MethodGet, "/apis?tenantId=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	apis := decode(t, w)["apis"].([]any)
	require.Len(t, apis, 1)
	assert.Equal(t, id, apis[0].(map[string]any)["apiId"])

	w = ts.do(http.MethodGet, "/apis", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodDelete, "/apis/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(http.MethodDelete, "/apis/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(http.MethodGet, "/api/"+id+"/users", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminReload(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	ts.generate(t, "alice")
	ts.reg.Flush()

	w := ts.do(http.MethodPost, "/admin/reload", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(1), body["apis"])
	assert.NotZero(t, body["types"])
}

func TestAuditTrail(t *testing.T) {
	ts := newTestServer(t, answer(blogAnswer))
	id := ts.generate(t, "alice")

	// no tenant header: resolved from the API's record
	w := ts.do(http.MethodPost, "/api/"+id+"/users", gin.H{"name": "Bob", "password": "hunter2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ts.do(http.MethodGet, "/health", nil)
	ts.logger.Close()

	entries := ts.audit.Entries()
	require.Len(t, entries, 3)

	gen := entries[0]
	assert.Equal(t, "/generate-api", gen.Endpoint)
	assert.Equal(t, "alice", gen.TenantID)
	assert.False(t, gen.IsAPIRequest)
	assert.Equal(t, http.StatusCreated, gen.StatusCode)

	create := entries[1]
	assert.Equal(t, "alice", create.TenantID)
	assert.Equal(t, id, create.APIID)
	assert.True(t, create.IsAPIRequest)
	assert.Contains(t, string(create.Request), audit.Redacted)
	assert.NotContains(t, string(create.Request), "hunter2")
	assert.NotContains(t, string(create.Response), "hunter2")

	health := entries[2]
	assert.Equal(t, AdminTenant, health.TenantID)
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
