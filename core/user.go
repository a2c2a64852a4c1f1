package core

import "time"

// User represents an identity in the local identity provider
//
// This is the "identity" - who someone is
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Role          Role      `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Claims are embedded into the identity at sign-up and carried by every
// session issued for it.
type Claims struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// Credentials is a partial credential change. Empty fields are left alone.
type Credentials struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

func (c Credentials) Empty() bool {
	return c.Email == "" && c.Password == ""
}
