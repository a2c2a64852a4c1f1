package services

import (
	"errors"
	"testing"

	"github.com/lborres/pulsetrack/core"
)

// Requirement: the sign-up form is checked in order: match, length, role presence, role value.
func TestValidateSignUpForm(t *testing.T) {
	valid := core.SignUpForm{
		Email:           "ana@x.io",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		FirstName:       " Ana ",
		LastName:        "Cruz",
		Role:            "doctor",
	}

	tests := []struct {
		name    string
		mutate  func(*core.SignUpForm)
		wantErr error
		wantMsg string
	}{
		{name: "accepts a valid form", mutate: func(*core.SignUpForm) {}},
		{
			name:    "mismatch is reported before length",
			mutate:  func(f *core.SignUpForm) { f.Password, f.ConfirmPassword = "abc", "abd" },
			wantErr: ErrPasswordMismatch,
			wantMsg: "Passwords do not match",
		},
		{
			name:    "short password",
			mutate:  func(f *core.SignUpForm) { f.Password, f.ConfirmPassword = "abc", "abc" },
			wantErr: ErrPasswordMinLength,
			wantMsg: "Password must be at least 6 characters",
		},
		{
			name:    "missing role",
			mutate:  func(f *core.SignUpForm) { f.Role = " " },
			wantErr: ErrRoleRequired,
			wantMsg: "Please select a role",
		},
		{
			name:    "unknown role",
			mutate:  func(f *core.SignUpForm) { f.Role = "nurse" },
			wantErr: core.ErrInvalidRole,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			form := valid
			test.mutate(&form)

			fields, err := ValidateSignUpForm(form)

			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("ValidateSignUpForm() error = %v, want %v", err, test.wantErr)
				}
				if test.wantMsg != "" && err.Error() != test.wantMsg {
					t.Errorf("message = %q, want %q", err.Error(), test.wantMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateSignUpForm() error = %v", err)
			}
			if fields.Role != core.RoleDoctor || fields.FirstName != "Ana" {
				t.Errorf("fields = %+v", fields)
			}
		})
	}
}
