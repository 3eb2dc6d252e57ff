package validator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"
)

// DateLayout is the wire format for stay dates
const DateLayout = "2006-01-02"

var registerOnce sync.Once

// RegisterGinValidators adds the `dateonly` and `phone` tags to gin's binding engine.
// Safe to call more than once.
func RegisterGinValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*playground.Validate)
		if !ok {
			err = fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
			return
		}
		err = Register(v)
	})
	return err
}

// Register adds the custom tags to a validator instance
func Register(v *playground.Validate) error {
	if err := v.RegisterValidation("dateonly", isDateOnly); err != nil {
		return fmt.Errorf("register dateonly: %w", err)
	}
	if err := v.RegisterValidation("phone", isPhone); err != nil {
		return fmt.Errorf("register phone: %w", err)
	}
	return nil
}

func isDateOnly(fl playground.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

// isPhone accepts an empty value; pair with `required` to make it mandatory.
// Foreign guests book too, so any plausible international number passes.
func isPhone(fl playground.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return NewPhoneValidator().IsPlausible(value)
}

// FieldErrors flattens validator errors into field -> message pairs for API responses
func FieldErrors(err error) map[string]string {
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "dateonly":
		return "must be a date in YYYY-MM-DD format"
	case "phone":
		return "must be a valid phone number"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
