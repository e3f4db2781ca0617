package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	inactiveDetail  = "Chat session ended. Start a new session."
	chatErrorPrefix = "Groq Error: "
)

// bindingDetail renders a request binding failure as a readable detail.
func bindingDetail(err error) string {
	var (
		validationErrs validator.ValidationErrors
		syntaxErr      *json.SyntaxError
		typeErr        *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &validationErrs):
		parts := make([]string, 0, len(validationErrs))
		for _, fe := range validationErrs {
			if fe.Tag() == "required" {
				parts = append(parts, fmt.Sprintf("field '%s' is required", fe.Field()))
				continue
			}
			parts = append(parts, fmt.Sprintf("field '%s' failed on '%s'", fe.Field(), fe.Tag()))
		}
		return strings.Join(parts, "; ")
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field '%s' must be %s", typeErr.Field, typeErr.Type)
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("invalid JSON at offset %d", syntaxErr.Offset)
	case errors.Is(err, io.EOF):
		return "request body is empty"
	default:
		return err.Error()
	}
}
