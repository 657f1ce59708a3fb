package domain

// FieldError is a recoverable, field-level validation failure meant to be
// rendered next to the offending input.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	FieldCodeRequired     = "required"
	FieldCodeInvalid      = "invalid"
	FieldCodeNotPositive  = "not_positive"
	FieldCodeScale        = "scale"
	FieldCodeInsufficient = "insufficient_amount"
)

// ValidationError carries field errors out of operations that re-validate
// their input instead of trusting the caller.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	f := e.Fields[0]
	return "validation failed: " + f.Field + ": " + f.Message
}
