// Package validation provides input validation for the Fraudgate API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// currencyRegex validates ISO 4217 currency codes
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	// merchantCategoryRegex validates merchant category codes (MCC)
	merchantCategoryRegex = regexp.MustCompile(`^[0-9]{4}$`)
	// countryRegex validates ISO 3166-1 alpha-2 country codes
	countryRegex = regexp.MustCompile(`^[A-Z]{2}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidCurrency checks if a string is a 3-letter uppercase currency code
func IsValidCurrency(s string) bool {
	return currencyRegex.MatchString(s)
}

// IsValidMerchantCategory checks if a string is a 4-digit MCC
func IsValidMerchantCategory(s string) bool {
	return merchantCategoryRegex.MatchString(s)
}

// IsValidCountry checks if a string is a 2-letter uppercase country code
func IsValidCountry(s string) bool {
	return countryRegex.MatchString(s)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidCurrency checks if a field is a valid currency code
func ValidCurrency(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidCurrency(value) {
			return &ValidationError{Field: field, Message: "must be a 3-letter uppercase currency code"}
		}
		return nil
	}
}

// ValidMerchantCategory checks if a field is a valid 4-digit MCC
func ValidMerchantCategory(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidMerchantCategory(value) {
			return &ValidationError{Field: field, Message: "must be a 4-digit merchant category code"}
		}
		return nil
	}
}

// ValidCountry checks if a field is a valid country code
func ValidCountry(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidCountry(value) {
			return &ValidationError{Field: field, Message: "must be a 2-letter uppercase country code"}
		}
		return nil
	}
}

// PositiveAmount checks if an amount is strictly positive
func PositiveAmount(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// MaxAmount checks an amount against an inclusive ceiling
func MaxAmount(field string, value, max float64) func() *ValidationError {
	return func() *ValidationError {
		if value > max {
			return &ValidationError{Field: field, Message: "exceeds the maximum allowed amount"}
		}
		return nil
	}
}

// OneOf checks that a field is one of the allowed values
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &ValidationError{Field: field, Message: "must be one of: " + strings.Join(allowed, ", ")}
	}
}

// MaxLength checks a string field length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "is too long"}
		}
		return nil
	}
}
