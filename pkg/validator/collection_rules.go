package validator

import "fmt"

func RequiredSlice[T any](field string, value []T) Rule {
	return Rule{
		Check: func() bool {
			return len(value) > 0
		},
		Error: ValidationError{
			Field:   field,
			Message: "field is required",
			Key:     "validation.required",
			Values:  map[string]any{"field": field},
		},
	}
}

func MaxLenSlice[T any](field string, value []T, max int) Rule {
	return Rule{
		Check: func() bool {
			return len(value) <= max
		},
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must have at most %d items", max),
			Key:     "validation.max_items",
			Values:  map[string]any{"field": field, "max": max},
		},
	}
}

// Each passes when check holds for every element. The error names the first
// offending index.
func Each[T any](field string, value []T, message string, check func(T) bool) Rule {
	values := map[string]any{"field": field}
	return Rule{
		Check: func() bool {
			delete(values, "index")
			for i, v := range value {
				if !check(v) {
					values["index"] = i
					return false
				}
			}
			return true
		},
		Error: ValidationError{
			Field:   field,
			Message: message,
			Key:     "validation.each",
			Values:  values,
		},
	}
}
