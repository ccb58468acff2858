package validator

import "strings"

// RequiredString validates that a string is not empty after trimming whitespace.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return NotBlank(value)
		},
		Error: ValidationError{
			Field:   field,
			Message: "field is required",
			Key:     "validation.required",
			Values:  map[string]any{"field": field},
		},
	}
}

// NotBlank reports whether s has non-whitespace content. Usable as an Each check.
func NotBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}
