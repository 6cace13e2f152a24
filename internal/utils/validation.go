package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/scheduling"
)

var registerOnce sync.Once

// RegisterValidators adds the clinic tags to gin's validator:
// clinicdate (YYYY-MM-DD), clinictime (HH:MM or HH:MM:SS) and weekday.
// Field names in errors follow the json tags.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("clinicdate", func(fl validator.FieldLevel) bool {
			_, err := scheduling.ParseDate(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("clinictime", func(fl validator.FieldLevel) bool {
			_, err := scheduling.ParseClock(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			return models.IsWeekdayName(fl.Field().String())
		})
	})
}

// Validate performs validation on a struct using its binding tags.
func Validate(s interface{}) error {
	RegisterValidators()
	return binding.Validator.ValidateStruct(s)
}

// FormatValidationError formats validation errors into a readable string.
func FormatValidationError(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, describe(e))
	}
	return strings.Join(messages, ", ")
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return e.Field() + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", e.Field(), e.Param())
	case "clinicdate":
		return e.Field() + " must be a date (YYYY-MM-DD)"
	case "clinictime":
		return e.Field() + " must be a time of day (HH:MM)"
	case "weekday":
		return e.Field() + " must be a weekday name"
	}
	return fmt.Sprintf("%s failed on %s", e.Field(), e.Tag())
}

// BindAndValidate binds the request body to a struct and validates it.
// If validation fails, it sends a BadRequest response and returns false.
func BindAndValidate(c *gin.Context, obj interface{}) bool {
	RegisterValidators()
	if err := c.ShouldBindJSON(obj); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			BadRequest(c, "Validation failed: "+FormatValidationError(err))
			return false
		}
		BadRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func BindQuery(c *gin.Context, obj interface{}) bool {
	RegisterValidators()
	if err := c.ShouldBindQuery(obj); err != nil {
		BadRequest(c, "Invalid query: "+FormatValidationError(err))
		return false
	}
	return true
}
