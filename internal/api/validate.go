package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"saunafreunde/internal/metrics"
)

func newValidator(isCategory func(string) bool) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("aufguss_category", func(fl validator.FieldLevel) bool {
		return isCategory(fl.Field().String())
	})
	return v
}

// validationMessage turns the first failed rule into a readable message.
func validationMessage(err error) (field, msg string) {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "", err.Error()
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field(), fmt.Sprintf("invalid %s: required", fe.Field())
	case "aufguss_category":
		return fe.Field(), fmt.Sprintf("invalid %s: unknown category '%v'", fe.Field(), fe.Value())
	case "email":
		return fe.Field(), fmt.Sprintf("invalid %s: not an email address", fe.Field())
	case "max":
		return fe.Field(), fmt.Sprintf("invalid %s: at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fe.Field(), fmt.Sprintf("invalid %s: expected one of %s", fe.Field(), fe.Param())
	default:
		return fe.Field(), fmt.Sprintf("invalid %s: failed %s", fe.Field(), fe.Tag())
	}
}

func writeValidation(w http.ResponseWriter, err error) {
	field, msg := validationMessage(err)
	metrics.IncHTTPError("400")
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Field: field})
}
