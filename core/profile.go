package core

import "time"

const DefaultPreferredLanguage = "en"

type Profile struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	Role              Role      `json:"role"`
	Phone             *string   `json:"phone,omitempty"`
	PreferredLanguage string    `json:"preferredLanguage"`
	NotificationToken *string   `json:"notificationToken,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ProfileFields are collected at sign-up next to the credentials.
type ProfileFields struct {
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Role              Role   `json:"role"`
	Phone             string `json:"phone,omitempty"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
}

// ProfileUpdate is a caller-supplied change. Email and Password go to the
// identity provider; the rest patch the profile row.
type ProfileUpdate struct {
	Email             string `json:"email,omitempty"`
	Password          string `json:"password,omitempty"`
	FirstName         string `json:"firstName,omitempty"`
	LastName          string `json:"lastName,omitempty"`
	Phone             string `json:"phone,omitempty"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
}

// ProfilePatch is a partial update. Nil fields are not written.
type ProfilePatch struct {
	FirstName         *string
	LastName          *string
	Phone             *string
	PreferredLanguage *string
	NotificationToken *string
	UpdatedAt         time.Time
}

func (p ProfilePatch) Empty() bool {
	return p.FirstName == nil &&
		p.LastName == nil &&
		p.Phone == nil &&
		p.PreferredLanguage == nil &&
		p.NotificationToken == nil
}

// Apply writes the non-nil fields of p onto profile.
func (p ProfilePatch) Apply(profile *Profile) {
	if p.FirstName != nil {
		profile.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		profile.LastName = *p.LastName
	}
	if p.Phone != nil {
		phone := *p.Phone
		profile.Phone = &phone
	}
	if p.PreferredLanguage != nil {
		profile.PreferredLanguage = *p.PreferredLanguage
	}
	if p.NotificationToken != nil {
		token := *p.NotificationToken
		profile.NotificationToken = &token
	}
	if !p.UpdatedAt.IsZero() {
		profile.UpdatedAt = p.UpdatedAt
	}
}
