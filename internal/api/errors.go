package api

import (
	"errors"
	"log"
	"net/http"

	"apiforge/internal/analyzer"
	"apiforge/internal/factory"
	"apiforge/internal/pg"
	"apiforge/internal/registry"
	"apiforge/internal/router"

	"github.com/gin-gonic/gin"
)

const (
	codeValidation = router.CodeValidation
	codeInternal   = "internal_error"
)

// writeError maps pipeline and registry errors to status codes. Driver text
// is logged, never returned.
func writeError(c *gin.Context, err error) {
	var (
		ve *factory.ValidationError
		pe *analyzer.ProviderError
		ue *pg.ExecutorUnavailableError
		me *pg.MaterializationError
		qe *pg.QueryError
	)
	switch {
	case errors.As(err, &ve):
		errs := issueErrors(ve.Issues)
		if len(errs) == 0 {
			errs = []FieldError{ferr(codeValidation, "", ve.Message)}
		}
		validationFailed(c, ve.Message, errs)
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "API not found", "code": router.CodeNotFound})
	case errors.Is(err, analyzer.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "AI provider timed out", "code": router.CodeTimeout})
	case errors.As(err, &pe):
		c.JSON(http.StatusBadGateway, gin.H{"error": pe.Message, "code": router.CodeProvider})
	case errors.Is(err, analyzer.ErrUnparseable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "AI response could not be parsed", "code": router.CodeUnparseable})
	case errors.As(err, &ue):
		log.Printf("api: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "SQL executor unavailable",
			"code":  router.CodeExecutorUnavailable,
			"hint":  ue.Remediation,
		})
	case errors.As(err, &me):
		log.Printf("api: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "tables could not be created",
			"code":    router.CodeMaterializationFailed,
			"missing": me.Missing,
		})
	case errors.As(err, &qe):
		router.DatabaseError(c, qe.Table, err)
	default:
		log.Printf("api: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": codeInternal})
	}
}
