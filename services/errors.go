package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrPlanNotFound        = errors.New("plan not found or inactive")
	ErrActiveChallenge     = errors.New("user already has an active challenge")
	ErrNoActiveChallenge   = errors.New("no active challenge")
	ErrSelectionLimit      = errors.New("daily plan selection limit reached")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient coin balance")
	ErrPendingWithdrawal   = errors.New("a withdrawal request is already pending")
	ErrWithdrawalNotFound  = errors.New("withdrawal request not found")
	ErrAlreadyProcessed    = errors.New("withdrawal request already processed")
	ErrInvalidPeriod       = errors.New("invalid period")
)

// ValidationError reports rejected input fields.
type ValidationError struct {
	Fields []string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "invalid " + strings.Join(e.Fields, ", ")
}

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct's validate tags and converts failures into a ValidationError.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return &ValidationError{Fields: fields}
}
