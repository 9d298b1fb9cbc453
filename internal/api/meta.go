package api

import (
	"net/http"
	"time"

	"apiforge/internal/registry"
	"apiforge/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type apiListItem struct {
	APIID         string    `json:"apiId"`
	APIIdentifier string    `json:"apiIdentifier"`
	Tables        []string  `json:"tables"`
	Prompt        string    `json:"prompt,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	LastAccessed  time.Time `json:"lastAccessed"`
	BaseURL       string    `json:"baseUrl"`
}

// ListAPIsHandler lists the APIs of the tenant named by ?tenantId=, or of the
// caller's tenant.
func ListAPIsHandler(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.Query("tenantId")
		if tenant == "" {
			t, found := tenantOf(c)
			if !found {
				validationFailed(c, "invalid request", []FieldError{required("tenantId")})
				return
			}
			tenant = t
		}
		recs, err := reg.ListByTenant(c.Request.Context(), tenant)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]apiListItem, 0, len(recs))
		for _, rec := range recs {
			out = append(out, apiListItem{
				APIID:         rec.APIID,
				APIIdentifier: rec.APIIdentifier,
				Tables:        rec.Graph().Names(),
				Prompt:        rec.Prompt,
				CreatedAt:     rec.CreatedAt,
				LastAccessed:  rec.LastAccessed,
				BaseURL:       mountPath(rec.APIID),
			})
		}
		c.JSON(http.StatusOK, gin.H{"tenantId": tenant, "apis": out})
	}
}

// UnpublishHandler removes an API. Its tables stay in the database.
func UnpublishHandler(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("apiId")
		if _, err := uuid.Parse(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "API not found", "code": router.CodeNotFound})
			return
		}
		ok, err := reg.Unpublish(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "API not found", "code": router.CodeNotFound})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
