package services

import (
	"strings"

	"github.com/lborres/pulsetrack/core"
)

// FormError is a validation failure whose message is shown to the user as is.
type FormError struct {
	Message string
}

func (e *FormError) Error() string { return e.Message }

var (
	ErrPasswordMismatch  = &FormError{Message: "Passwords do not match"}
	ErrPasswordMinLength = &FormError{Message: "Password must be at least 6 characters"}
	ErrRoleRequired      = &FormError{Message: "Please select a role"}
)

// ValidateSignUpForm checks the registration form before anything is sent
// to the identity provider, and returns the profile fields it carries.
func ValidateSignUpForm(form core.SignUpForm) (core.ProfileFields, error) {
	if form.Password != form.ConfirmPassword {
		return core.ProfileFields{}, ErrPasswordMismatch
	}
	if len(form.Password) < MinPasswordLength {
		return core.ProfileFields{}, ErrPasswordMinLength
	}
	if strings.TrimSpace(form.Role) == "" {
		return core.ProfileFields{}, ErrRoleRequired
	}

	role, err := core.ParseRole(strings.TrimSpace(form.Role))
	if err != nil {
		return core.ProfileFields{}, err
	}

	return core.ProfileFields{
		FirstName:         strings.TrimSpace(form.FirstName),
		LastName:          strings.TrimSpace(form.LastName),
		Role:              role,
		Phone:             strings.TrimSpace(form.Phone),
		PreferredLanguage: strings.TrimSpace(form.PreferredLanguage),
	}, nil
}
