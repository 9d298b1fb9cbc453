package api

import (
	"net/http"
	"strings"

	"apiforge/internal/dsl"
	"apiforge/internal/factory"
	"apiforge/internal/router"
	"apiforge/internal/schema"

	"github.com/gin-gonic/gin"
)

type promptReq struct {
	Prompt   string `json:"prompt"`
	TenantID string `json:"tenantId"`
}

type modifyReq struct {
	Prompt         string          `json:"prompt"`
	ExistingTables []*schema.Table `json:"existingTables"`
	TenantID       string          `json:"tenantId"`
}

type tablesReq struct {
	Tables []*schema.Table `json:"tables"`
	// DSL is the entity-block notation, used when Tables is empty.
	DSL      string `json:"dsl"`
	TenantID string `json:"tenantId"`
}

// requestTenant prefers the body's tenantId, then a tenant the caller
// supplied some other way. The admin fallback is not accepted for creation.
func requestTenant(c *gin.Context, fromBody string) (string, []FieldError) {
	if fromBody != "" {
		return fromBody, nil
	}
	if t, found := tenantOf(c); found {
		return t, nil
	}
	return "", []FieldError{required("tenantId")}
}

func mountPath(apiID string) string { return "/api/" + apiID }

func mounted(apiID string, eps []router.Endpoint) []router.Endpoint {
	out := make([]router.Endpoint, len(eps))
	for i, ep := range eps {
		out[i] = router.Endpoint{Method: ep.Method, Path: mountPath(apiID) + ep.Path}
	}
	return out
}

func created(c *gin.Context, res *factory.Result) {
	body := gin.H{
		"apiId":           res.APIID,
		"apiIdentifier":   res.Router.APIIdentifier(),
		"tenantId":        res.Router.TenantID(),
		"baseUrl":         mountPath(res.APIID),
		"documentation":   res.Router.Docs(),
		"swagger":         res.Router.OpenAPI(mountPath(res.APIID)),
		"tables":          res.Graph.Tables,
		"endpoints":       mounted(res.APIID, res.Router.Endpoints()),
		"materialization": res.Report,
	}
	if res.Fallback {
		body["fallback"] = true
		body["warning"] = "the AI response could not be used; a generic schema was generated from the prompt"
	}
	c.JSON(http.StatusCreated, body)
}

func GenerateAPIHandler(f *factory.Factory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req promptReq
		if !bindJSON(c, &req) {
			return
		}
		errs := checkPrompt(req.Prompt, nil)
		tenant, terrs := requestTenant(c, req.TenantID)
		if errs = append(errs, terrs...); len(errs) > 0 {
			validationFailed(c, "invalid request", errs)
			return
		}
		res, err := f.GenerateAPI(c.Request.Context(), req.Prompt, tenant)
		if err != nil {
			writeError(c, err)
			return
		}
		created(c, res)
	}
}

func GenerateSchemaHandler(f *factory.Factory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req promptReq
		if !bindJSON(c, &req) {
			return
		}
		if errs := checkPrompt(req.Prompt, nil); len(errs) > 0 {
			validationFailed(c, "invalid request", errs)
			return
		}
		an, err := f.GenerateSchema(c.Request.Context(), req.Prompt)
		if err != nil {
			writeError(c, err)
			return
		}
		body := gin.H{"tables": an.Graph.Tables}
		if an.Fallback {
			body["fallback"] = true
		}
		c.JSON(http.StatusOK, body)
	}
}

func ModifySchemaHandler(f *factory.Factory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req modifyReq
		if !bindJSON(c, &req) {
			return
		}
		errs := checkPrompt(req.Prompt, nil)
		if len(req.ExistingTables) == 0 {
			errs = append(errs, required("existingTables"))
		}
		if len(errs) > 0 {
			validationFailed(c, "invalid request", errs)
			return
		}
		g, err := f.ModifySchema(c.Request.Context(), req.Prompt, &schema.Graph{Tables: req.ExistingTables})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tables": g.Tables})
	}
}

func CreateFromSchemaHandler(f *factory.Factory) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tablesReq
		if !bindJSON(c, &req) {
			return
		}
		var errs []FieldError
		g := &schema.Graph{Tables: req.Tables}
		switch {
		case len(req.Tables) > 0:
		case strings.TrimSpace(req.DSL) != "":
			parsed, err := dsl.Parse(req.DSL)
			if err != nil {
				errs = append(errs, ferr(ErrInvalidDSL, "dsl", err.Error()))
			} else {
				g = parsed
			}
		default:
			errs = append(errs, required("tables"))
		}
		tenant, terrs := requestTenant(c, req.TenantID)
		if errs = append(errs, terrs...); len(errs) > 0 {
			validationFailed(c, "invalid request", errs)
			return
		}
		res, err := f.CreateFromSchema(c.Request.Context(), g, tenant)
		if err != nil {
			writeError(c, err)
			return
		}
		created(c, res)
	}
}

func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
