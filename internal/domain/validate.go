// Package domain holds the configuration records of a point-of-sale
// terminal: database connections, printers and system settings.
package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	ErrDefaultProfile  = errors.New("domain: default database profile cannot be deleted")
	ErrReadOnlySetting = errors.New("domain: read-only setting cannot be deleted")
)

var (
	settingKeyPattern  = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)
	profileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 ._-]{0,63}$`)

	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("setting_key", func(fl validator.FieldLevel) bool {
			return settingKeyPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("profile_name", func(fl validator.FieldLevel) bool {
			return profileNamePattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// validateStruct runs the struct tags of v and flattens the failures into
// one readable error.
func validateStruct(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "setting_key":
		return fmt.Sprintf("%s must be dotted lower-case segments", field)
	case "profile_name":
		return fmt.Sprintf("%s must be 1-64 letters, digits, spaces, dots, dashes or underscores", field)
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
