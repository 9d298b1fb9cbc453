package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"apiforge/internal/schema"

	"github.com/gin-gonic/gin"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Field error codes.
const (
	ErrRequired    = "required"
	ErrInvalidJSON = "invalid_json"
	ErrInvalidDSL  = "invalid_dsl"
)

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

func required(field string) FieldError {
	return ferr(ErrRequired, field, "Field '"+field+"' is required")
}

// bindJSON decodes the body into dst. An empty body leaves dst untouched.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	validationFailed(c, "invalid request body", []FieldError{ferr(ErrInvalidJSON, "", err.Error())})
	return false
}

func validationFailed(c *gin.Context, msg string, errs []FieldError) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": codeValidation, "errors": errs})
}

// issueErrors turns lint issues into field errors addressed as table.column.
func issueErrors(issues []schema.Issue) []FieldError {
	out := make([]FieldError, 0, len(issues))
	for _, is := range issues {
		field := is.Table
		if is.Field != "" {
			field = fmt.Sprintf("%s.%s", is.Table, is.Field)
		}
		out = append(out, ferr(is.Code, field, is.Message))
	}
	return out
}

func checkPrompt(prompt string, errs []FieldError) []FieldError {
	if strings.TrimSpace(prompt) == "" {
		errs = append(errs, required("prompt"))
	}
	return errs
}
