package api

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

func bindingFields(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fe.Namespace(),
			Message: fe.Error(),
			Tag:     fe.Tag(),
		})
	}
	return fields
}
