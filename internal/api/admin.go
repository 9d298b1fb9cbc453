package api

import (
	"net/http"
	"strings"

	"apiforge/internal/reference"
	"apiforge/internal/registry"
	"apiforge/internal/schema"

	"github.com/gin-gonic/gin"
)

type reloadReq struct {
	ReferenceDir string `json:"reference_dir"`
}

// AdminReloadHandler re-reads the type catalog and rebuilds every stored API.
func AdminReloadHandler(n *schema.Normalizer, reg *registry.Registry, defaultDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reloadReq
		if !bindJSON(c, &req) {
			return
		}
		dir := strings.TrimSpace(req.ReferenceDir)
		if dir == "" {
			dir = defaultDir
		}

		// 1) catalog first: a broken file leaves the current one in place
		cat, err := reference.LoadCatalog(dir)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":        "catalog load error",
				"code":         codeValidation,
				"details":      err.Error(),
				"referenceDir": dir,
			})
			return
		}
		n.Reload(cat)

		// 2) warm the registry from the store
		loaded, err := reg.LoadAll(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ok":           true,
			"referenceDir": dir,
			"types":        len(cat.Types),
			"polymorphic":  len(cat.Polymorphic),
			"apis":         loaded,
		})
	}
}
