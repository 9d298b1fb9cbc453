package api

import (
	"html/template"
	"net/http"
	"strings"

	"apiforge/internal/pg"
	"apiforge/internal/registry"
	"apiforge/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function () {
      SwaggerUIBundle({ url: {{.SpecURL}}, dom_id: "#swagger-ui" });
    };
  </script>
</body>
</html>
`))

// GeneratedAPIHandler serves /api/:apiId/*path. docs, swagger.json and sql
// are answered here; everything else goes to the API's router.
func GeneratedAPIHandler(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("apiId")
		if _, err := uuid.Parse(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "API not found", "code": router.CodeNotFound})
			return
		}
		rt, err := reg.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}

		path := "/" + strings.Trim(c.Param("path"), "/")
		if c.Request.Method == http.MethodGet {
			switch path {
			case "/docs":
				c.Header("Content-Type", "text/html; charset=utf-8")
				c.Status(http.StatusOK)
				_ = docsPage.Execute(c.Writer, map[string]string{
					"Title":   "API " + rt.APIIdentifier(),
					"SpecURL": mountPath(id) + "/swagger.json",
				})
				return
			case "/swagger.json":
				c.JSON(http.StatusOK, rt.OpenAPI(mountPath(id)))
				return
			case "/sql":
				serveSQL(c, reg, id, rt)
				return
			}
		}

		tenant := ""
		if t, found := tenantOf(c); found {
			tenant = t
		}
		rt.Dispatch(c, tenant, path)
	}
}

// serveSQL returns the stored DDL, re-emitting it for records saved
// without one.
func serveSQL(c *gin.Context, reg *registry.Registry, id string, rt *router.Router) {
	script := ""
	if rec, err := reg.Record(c.Request.Context(), id); err == nil {
		script = rec.SQL
	}
	if script == "" {
		script = pg.Emit(rt.Graph(), rt.TenantID(), rt.APIIdentifier())
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(script))
}
