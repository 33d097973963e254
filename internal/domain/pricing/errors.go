package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FieldError is a single validation failure bound to a field name.
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors lists every violation found in one validation pass.
type FieldErrors []FieldError

func (e FieldErrors) add(field, msg string) FieldErrors {
	return append(e, FieldError{Field: field, Message: msg})
}

func (e FieldErrors) nonNegative(field string, v decimal.Decimal) FieldErrors {
	if v.IsNegative() {
		return e.add(field, "must not be negative")
	}
	return e
}

// Has reports whether any error is bound to field.
func (e FieldErrors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// ValidationError carries FieldErrors through error returns so callers can
// report all of them at once.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, fe := range e.Fields {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
