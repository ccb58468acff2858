// Package validator provides small declarative validation rules.
//
// A Rule pairs a Check func with the ValidationError reported when the check
// fails. Apply evaluates every rule and returns the failures as
// ValidationErrors, which implements error and matches ErrValidationFailed
// through errors.Is.
//
// # Usage
//
//	err := validator.Apply(
//		validator.RequiredSlice("to", to),
//		validator.MaxLenSlice("to", to, 1000),
//		validator.Each("to", to, "recipient must not be blank", validator.NotBlank),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//		// inspect field-level messages
//	}
package validator
