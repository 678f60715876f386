package httpapi

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/example/trips/internal/lifecycle"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("lat", func(fl validator.FieldLevel) bool {
		lat := fl.Field().Float()
		return lat >= -90 && lat <= 90
	})
	validate.RegisterValidation("lng", func(fl validator.FieldLevel) bool {
		lng := fl.Field().Float()
		return lng >= -180 && lng <= 180
	})
}

func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", lifecycle.ErrValidation, err)
	}
	return nil
}
