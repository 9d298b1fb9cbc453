package router

import (
	"net/http"
	"strings"
	"sync"

	"apiforge/internal/pg"
	"apiforge/internal/schema"

	"github.com/gin-gonic/gin"
)

type shape struct {
	method string
	withID bool
}

type handler func(c *gin.Context, tenantID, id string)

type tableRoutes struct {
	table    *schema.Table
	physical string
	handlers map[shape]handler
}

// Router is the request surface of one published API: a dispatch table from
// (table, method, item-or-collection) to handlers over the physical tables.
type Router struct {
	tenantID      string
	apiIdentifier string
	graph         *schema.Graph
	db            pg.Querier
	tables        map[string]*tableRoutes

	docOnce sync.Once
	doc     *Document
}

// New builds the router of g for one tenant and API instance. Prefixed names
// already on g are used as physical names; missing ones are derived.
func New(g *schema.Graph, tenantID, apiIdentifier string, db pg.Querier) *Router {
	r := &Router{
		tenantID:      tenantID,
		apiIdentifier: apiIdentifier,
		graph:         g.Clone(),
		db:            db,
		tables:        make(map[string]*tableRoutes, len(g.Tables)),
	}
	for _, t := range r.graph.Tables {
		if t.PrefixedName == "" {
			t.PrefixedName = schema.PrefixedName(tenantID, apiIdentifier, t.Name)
		}
		tr := &tableRoutes{table: t, physical: t.PrefixedName}
		tr.handlers = map[shape]handler{
			{http.MethodGet, false}:   r.list(tr),
			{http.MethodPost, false}:  r.create(tr),
			{http.MethodGet, true}:    r.read(tr),
			{http.MethodPut, true}:    r.update(tr),
			{http.MethodDelete, true}: r.remove(tr),
		}
		r.tables[strings.ToLower(t.Name)] = tr
	}
	return r
}

// NewBuilder returns a constructor of routers over db, the shape the
// registry rebuilds with.
func NewBuilder(db pg.Querier) func(g *schema.Graph, tenantID, apiIdentifier string) *Router {
	return func(g *schema.Graph, tenantID, apiIdentifier string) *Router {
		return New(g, tenantID, apiIdentifier, db)
	}
}

func (r *Router) TenantID() string      { return r.tenantID }
func (r *Router) APIIdentifier() string { return r.apiIdentifier }

// Graph returns a copy of the graph the router serves.
func (r *Router) Graph() *schema.Graph { return r.graph.Clone() }

// PhysicalName returns the database table behind a caller-facing name.
func (r *Router) PhysicalName(table string) (string, bool) {
	tr, ok := r.tables[strings.ToLower(table)]
	if !ok {
		return "", false
	}
	return tr.physical, true
}

type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Endpoints lists the CRUD routes relative to the mount point.
func (r *Router) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(r.graph.Tables)*5)
	for _, t := range r.graph.Tables {
		out = append(out, tableEndpoints(t)...)
	}
	return out
}

func tableEndpoints(t *schema.Table) []Endpoint {
	return []Endpoint{
		{http.MethodGet, "/" + t.Name},
		{http.MethodPost, "/" + t.Name},
		{http.MethodGet, "/" + t.Name + "/:id"},
		{http.MethodPut, "/" + t.Name + "/:id"},
		{http.MethodDelete, "/" + t.Name + "/:id"},
	}
}

type tableDoc struct {
	Name         string          `json:"name"`
	PhysicalName string          `json:"physicalName"`
	Columns      []schema.Column `json:"columns"`
	Endpoints    []Endpoint      `json:"endpoints"`
}

// Docs is the plain listing served at the router root.
func (r *Router) Docs() gin.H {
	tables := make([]tableDoc, 0, len(r.graph.Tables))
	for _, t := range r.graph.Tables {
		tables = append(tables, tableDoc{
			Name:         t.Name,
			PhysicalName: t.PrefixedName,
			Columns:      t.Columns,
			Endpoints:    tableEndpoints(t),
		})
	}
	return gin.H{
		"apiIdentifier": r.apiIdentifier,
		"tables":        tables,
		"swagger":       "/swagger.json",
	}
}

// OpenAPI returns the generated document with servers[0].url set to
// serverURL. The base document is built once, on first use.
func (r *Router) OpenAPI(serverURL string) *Document {
	r.docOnce.Do(func() {
		r.doc = buildOpenAPI("API "+r.apiIdentifier, r.graph)
	})
	doc := r.doc.Copy()
	if serverURL != "" {
		doc.Set("servers", []map[string]any{{"url": serverURL}})
	}
	return doc
}

// Dispatch serves one request addressed to path (relative to the mount
// point). tenantID is the caller's resolved tenant; empty means the tenant
// the router was published for.
func (r *Router) Dispatch(c *gin.Context, tenantID, path string) {
	if tenantID == "" {
		tenantID = r.tenantID
	}
	path = strings.Trim(path, "/")
	if path == "" {
		if c.Request.Method != http.MethodGet {
			methodNotAllowed(c)
			return
		}
		c.JSON(http.StatusOK, r.Docs())
		return
	}

	segs := strings.Split(path, "/")
	tr, ok := r.tables[strings.ToLower(segs[0])]
	if !ok || len(segs) > 2 {
		notFound(c, "unknown resource")
		return
	}
	s := shape{method: c.Request.Method, withID: len(segs) == 2}
	id := ""
	if s.withID {
		id = segs[1]
	}
	h, ok := tr.handlers[s]
	if !ok {
		methodNotAllowed(c)
		return
	}
	h(c, tenantID, id)
}

func methodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed", "code": CodeMethodNotAllowed})
}
