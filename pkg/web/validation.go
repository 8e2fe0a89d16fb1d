package web

import "github.com/go-playground/validator/v10"

// GetErrorMsg returns a human readable message for the failed validation tag.
func GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return " is required"
	case "min":
		return " must be greater or equal to " + fe.Param()
	case "max":
		return " must be less or equal to " + fe.Param()
	case "datetime":
		return " must match the " + fe.Param() + " format"
	case "oneof":
		return " must be one of: " + fe.Param()
	case "gte":
		return " must be greater or equal to " + fe.Param()
	}

	return " is invalid"
}
