package core

import (
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct checks validate tags and returns an ErrValidation naming the first bad field.
func ValidateStruct(s any) error {
	err := validatorInstance().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Field() == "Email" && fe.Tag() == "email" {
			return ErrInvalidEmail
		}
		if fe.Field() == "Email" && fe.Tag() == "required" {
			return ErrEmailRequired
		}
		return ErrValidation.WithMessage("%s failed %q validation", strings.ToLower(fe.Field()), fe.Tag())
	}
	return ErrValidation.Wrap(err)
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks address syntax.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if err := validatorInstance().Var(email, "email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword enforces the password policy: 8 to 128 characters with
// at least one uppercase letter, one lowercase letter and one digit.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	n := len([]rune(password))
	if n < MinPasswordLength {
		return ErrPasswordTooShort.WithMessage("password must be at least %d characters", MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return ErrPasswordTooLong.WithMessage("password must be at most %d characters", MaxPasswordLength)
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ErrPasswordTooWeak
	}
	return nil
}

// ValidateRoles rejects empty or malformed role tags.
func ValidateRoles(roles Roles) error {
	if len(roles) == 0 {
		return ErrValidation.WithMessage("at least one role is required")
	}
	for _, r := range roles {
		if r == "" || strings.ContainsAny(r, ", \t") {
			return ErrValidation.WithMessage("invalid role %q", r)
		}
	}
	return nil
}
