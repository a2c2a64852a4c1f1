package core

import "context"

// SignInInput contains the credentials for authentication
type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpForm is the raw registration form.
type SignUpForm struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ConfirmPassword   string `json:"confirmPassword"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Role              string `json:"role"`
	Phone             string `json:"phone,omitempty"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
}

type ResetPasswordInput struct {
	Email string `json:"email"`
}

type ConfirmResetInput struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// AuthResult is returned to clients after an operation that changes the
// session.
type AuthResult struct {
	Session    *Session    `json:"session,omitempty"`
	Token      string      `json:"token,omitempty"`
	Navigation *Navigation `json:"navigation,omitempty"`
}

// ClientInfo identifies the caller of an identity operation.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type clientInfoKey struct{}

func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

func ClientInfoFrom(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info
}
