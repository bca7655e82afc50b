package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerTagNames sync.Once

// useJSONFieldNames makes validator report fields by their json names.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindingError turns a ShouldBindJSON failure into a validation AppError
// with one entry per offending field.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError("Invalid JSON body", err.Error())
	}

	problems := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		problems[fe.Field()] = fieldMessage(fe)
	}
	return apperrors.NewValidationErrorWithMap(problems)
}

func fieldMessage(fe validator.FieldError) string {
	switch {
	case fe.Field() == "base_score" && fe.Tag() != "required":
		return "Base score must be between 1.0 and 5.0"
	case fe.Tag() == "required":
		return "Missing required field: " + fe.Field()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
