package core

import "fmt"

type Role string

const (
	RolePatient   Role = "patient"
	RoleDoctor    Role = "doctor"
	RoleCaregiver Role = "caregiver"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleCaregiver, RoleAdmin:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// AccessDecision is the gate's verdict for one request. A zero Redirect
// means the request may continue.
type AccessDecision struct {
	Redirect string `json:"redirect,omitempty"`
}

func Allow() AccessDecision { return AccessDecision{} }

func RedirectTo(path string) AccessDecision { return AccessDecision{Redirect: path} }

func (d AccessDecision) Allowed() bool { return d.Redirect == "" }

// Navigation tells the caller where to send the user after an operation.
type Navigation struct {
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
}
