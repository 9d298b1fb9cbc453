package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"time"

	"apiforge/internal/audit"
	"apiforge/internal/registry"

	"github.com/gin-gonic/gin"
)

// AdminTenant is the tenant of requests that carry no tenant at all.
const AdminTenant = "ADMIN"

// Context keys set on the gin context.
const (
	TenantKey      = "tenantId"
	tenantFoundKey = "tenantExplicit"
	rawBodyKey     = "rawBody"
)

// maxAuditBody bounds how much of a request body is buffered for the
// resolver and the audit log.
const maxAuditBody = 1 << 20

var tenantHeaders = []string{"X-User-Id", "X-Auth-User-Id", "XAuthUserId", "X-Tenant-Id"}

// tenantBodyKeys are the body fields read when no header is present: the
// header names themselves plus tenantId. Column-like names such as user_id
// are row data and never select a tenant.
var tenantBodyKeys = append([]string{"tenantId"}, tenantHeaders...)

type tenantCtxKey struct{}

// WithTenant marks ctx with a tenant resolved by upstream middleware.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// requestBody returns the buffered request body, reading and restoring it on
// first use.
func requestBody(c *gin.Context) []byte {
	if v, ok := c.Get(rawBodyKey); ok {
		return v.([]byte)
	}
	var body []byte
	if c.Request.Body != nil {
		b, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAuditBody+1))
		if err != nil {
			log.Printf("api: read body: %v", err)
		}
		rest := c.Request.Body
		c.Request.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(b), rest), rest}
		if len(b) <= maxAuditBody {
			body = b
		}
	}
	c.Set(rawBodyKey, body)
	return body
}

func tenantFromBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return ""
	}
	for _, want := range tenantBodyKeys {
		for k, v := range m {
			if !strings.EqualFold(k, want) {
				continue
			}
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// resolveTenant applies the lookup order: upstream attribute, header, body.
func resolveTenant(c *gin.Context) (string, bool) {
	if v, ok := c.Get(TenantKey); ok {
		if s, _ := v.(string); s != "" {
			return s, true
		}
	}
	if s, _ := c.Request.Context().Value(tenantCtxKey{}).(string); s != "" {
		return s, true
	}
	for _, h := range tenantHeaders {
		if s := strings.TrimSpace(c.GetHeader(h)); s != "" {
			return s, true
		}
	}
	if s := tenantFromBody(requestBody(c)); s != "" {
		return s, true
	}
	return AdminTenant, false
}

// TenantResolver stamps every request with a tenant id. Requests to a
// generated API without one inherit the tenant the API was published for.
func TenantResolver(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, found := resolveTenant(c)
		if !found {
			if id := c.Param("apiId"); id != "" && strings.HasPrefix(c.Request.URL.Path, "/api/") {
				if rec, err := reg.Record(c.Request.Context(), id); err == nil && rec.TenantID != "" {
					tenant = rec.TenantID
				}
			}
		}
		c.Set(TenantKey, tenant)
		c.Set(tenantFoundKey, found)
		c.Next()
	}
}

// tenantOf returns the resolved tenant and whether the caller supplied it.
func tenantOf(c *gin.Context) (string, bool) {
	return c.GetString(TenantKey), c.GetBool(tenantFoundKey)
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if room := maxAuditBody - w.buf.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.buf.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// RequestLogger hands one audit entry per request to the logger once the
// response is written.
func RequestLogger(l *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		body := requestBody(c)
		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		path := c.Request.URL.Path
		tenant := c.GetString(TenantKey)
		if tenant == "" {
			tenant = AdminTenant
		}
		l.Log(audit.Entry{
			Timestamp:      start.UTC(),
			TenantID:       tenant,
			Endpoint:       path,
			Method:         c.Request.Method,
			APIID:          c.Param("apiId"),
			IsAPIRequest:   strings.HasPrefix(path, "/api/"),
			Request:        audit.Body(body),
			Response:       audit.Body(w.buf.Bytes()),
			ResponseTimeMS: time.Since(start).Milliseconds(),
			StatusCode:     w.Status(),
		})
	}
}
