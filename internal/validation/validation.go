// Package validation guards the API surface against malformed project
// identifiers, contract addresses and oversized payloads.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize caps request bodies at 1MB.
const MaxRequestSize = 1 << 20

// MaxBatchSize bounds how many projects one batch request may carry.
const MaxBatchSize = 50

// Project IDs are the platform's campaign slugs: up to 128 characters,
// letters, digits, dashes and underscores, no leading separator.
var projectIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

var ethAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsValidProjectID reports whether id is a well-formed campaign slug.
func IsValidProjectID(id string) bool {
	return projectIDRegex.MatchString(id)
}

// IsValidContractAddress reports whether addr is a 0x-prefixed 20-byte
// hex address.
func IsValidContractAddress(addr string) bool {
	return ethAddressRegex.MatchString(addr)
}

// SanitizeString trims whitespace, strips null bytes and truncates to
// maxLen. Used before echoing client input back in error messages.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// FieldError names one field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects the failures from one Validate call.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return strings.Join(parts, "; ")
}

// Rule checks one field and returns nil when it passes.
type Rule func() *FieldError

// Validate runs every rule and gathers the failures.
func Validate(rules ...Rule) Errors {
	var errs Errors
	for _, rule := range rules {
		if fe := rule(); fe != nil {
			errs = append(errs, *fe)
		}
	}
	return errs
}

// Required fails when value is empty or whitespace.
func Required(field, value string) Rule {
	return func() *FieldError {
		if strings.TrimSpace(value) == "" {
			return &FieldError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidProjectID fails on malformed slugs. Empty values pass; combine
// with Required when the field is mandatory.
func ValidProjectID(field, value string) Rule {
	return func() *FieldError {
		if value != "" && !IsValidProjectID(value) {
			return &FieldError{Field: field, Message: "must be 1-128 characters of letters, digits, '-' or '_'"}
		}
		return nil
	}
}

// ValidContractAddress fails on malformed addresses. Empty values pass.
func ValidContractAddress(field, value string) Rule {
	return func() *FieldError {
		if value != "" && !IsValidContractAddress(value) {
			return &FieldError{Field: field, Message: "must be a valid Ethereum address (0x + 40 hex chars)"}
		}
		return nil
	}
}

// RequestSizeMiddleware rejects bodies larger than maxSize.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// ProjectParamMiddleware rejects malformed :projectId URL parameters
// before any handler in the group runs.
func ProjectParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.Param("projectId"); id != "" && !IsValidProjectID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_project_id",
				"message": "projectId must be 1-128 characters of letters, digits, '-' or '_'",
			})
			return
		}
		c.Next()
	}
}
