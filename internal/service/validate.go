package service

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var priceFormat = regexp.MustCompile(`^\d+\.\d{2}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("price", func(fl validator.FieldLevel) bool {
		return priceFormat.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return models.Category(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("fulfillment", func(fl validator.FieldLevel) bool {
		return models.FulfillmentMethod(fl.Field().String()).IsValid()
	})
	return v
}

// validateStruct runs the struct tags and turns failures into a validation
// error with one detail per field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperror.Wrap(apperror.CodeValidation, err, "validation failed")
	}
	appErr := apperror.Validation("validation failed")
	for _, fieldErr := range errs {
		appErr = appErr.With(fieldErr.Field(), validationMessage(fieldErr))
	}
	return appErr
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "price":
		return "must look like 12.34"
	case "category":
		return "must be one of Fruits, Vegetables, Dairy, Proteins, Grains, Other"
	case "fulfillment":
		return "is not a known fulfillment method"
	}
	return "is invalid"
}

// parsePrice reads a validated price string; empty means zero
func parsePrice(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	if !priceFormat.MatchString(raw) {
		return decimal.Zero, apperror.Validation("invalid price").With(field, raw)
	}
	return decimal.NewFromString(raw)
}

// tagSet builds a set from raw tags, rejecting anything outside kind's vocabulary
func tagSet(field string, kind models.TagKind, tags []models.Tag) (models.TagSet, error) {
	set := models.NewTagSet(tags...)
	if unknown := set.Unknown(kind); len(unknown) > 0 {
		return nil, apperror.Validation("unknown tags").With(field, unknown)
	}
	return set, nil
}
