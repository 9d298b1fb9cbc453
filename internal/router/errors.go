package router

import (
	"errors"
	"log"
	"net/http"

	"apiforge/internal/pg"

	"github.com/gin-gonic/gin"
)

// Stable error codes carried in every error body.
const (
	CodeValidation            = "validation_error"
	CodeNotFound              = "not_found"
	CodeMethodNotAllowed      = "method_not_allowed"
	CodeTimeout               = "ai_timeout"
	CodeProvider              = "ai_provider_error"
	CodeUnparseable           = "unparseable_response"
	CodeExecutorUnavailable   = "executor_unavailable"
	CodeMaterializationFailed = "materialization_failed"
	CodeDatabase              = "database_error"
)

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": CodeValidation})
}

func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, gin.H{"error": msg, "code": CodeNotFound})
}

var hints = map[string]string{
	"42P01": "the table does not exist; it may have been dropped outside this API",
	"42703": "a column in the request does not exist on the table",
	"23505": "a unique constraint was violated",
	"23503": "a referenced record does not exist",
	"23502": "a required column is missing",
	"22P02": "a value has the wrong format for its column type",
	"22001": "a value is too long for its column",
}

// DatabaseError writes the 500 body for a driver failure. Raw driver text
// stays in the log.
func DatabaseError(c *gin.Context, table string, err error) {
	log.Printf("router: %s: %v", table, err)
	code := ""
	var qe *pg.QueryError
	if errors.As(err, &qe) {
		code = qe.Code
		if qe.Table != "" {
			table = qe.Table
		}
	}
	hint, ok := hints[code]
	if !ok {
		hint = "check the server log for details"
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "database error",
		"code":    CodeDatabase,
		"hint":    hint,
		"details": gin.H{"table": table, "code": code},
	})
}
