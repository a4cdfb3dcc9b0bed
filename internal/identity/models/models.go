package models

import (
	"time"

	id "fintrail/pkg/domain"
)

// User is a registered account holder.
type User struct {
	ID                 id.UserID
	Email              string
	HashedPassword     string
	FirstName          string
	LastName           string
	PhoneNumber        string
	IDNumber           string
	Role               id.Role
	IsActive           bool
	IsVerified         bool
	MFAEnabled         bool
	MFASecret          string
	ConsentGiven       bool
	ConsentDate        *time.Time
	DataRetentionUntil *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastLogin          *time.Time
}

// FullName joins first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Deactivate soft-deletes the user and schedules final erasure at until.
// Every compliance deactivation goes through here so the retention marker is
// never left unset.
func (u *User) Deactivate(until, now time.Time) {
	u.IsActive = false
	u.DataRetentionUntil = &until
	u.UpdatedAt = now
}

// RetentionExpired reports whether the user is due for final erasure.
func (u *User) RetentionExpired(now time.Time) bool {
	return u.DataRetentionUntil != nil && u.DataRetentionUntil.Before(now)
}

// Profile is the externally visible view of a user.
type Profile struct {
	ID                 id.UserID  `json:"id"`
	Email              string     `json:"email"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	PhoneNumber        string     `json:"phone_number,omitempty"`
	Role               id.Role    `json:"role"`
	IsActive           bool       `json:"is_active"`
	IsVerified         bool       `json:"is_verified"`
	MFAEnabled         bool       `json:"mfa_enabled"`
	ConsentGiven       bool       `json:"consent_given"`
	ConsentDate        *time.Time `json:"consent_date,omitempty"`
	DataRetentionUntil *time.Time `json:"data_retention_until,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	LastLogin          *time.Time `json:"last_login,omitempty"`
}

// ToProfile strips credentials from u.
func (u *User) ToProfile() Profile {
	return Profile{
		ID:                 u.ID,
		Email:              u.Email,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		PhoneNumber:        u.PhoneNumber,
		Role:               u.Role,
		IsActive:           u.IsActive,
		IsVerified:         u.IsVerified,
		MFAEnabled:         u.MFAEnabled,
		ConsentGiven:       u.ConsentGiven,
		ConsentDate:        u.ConsentDate,
		DataRetentionUntil: u.DataRetentionUntil,
		CreatedAt:          u.CreatedAt,
		LastLogin:          u.LastLogin,
	}
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Stats are the account counts the compliance status report needs.
type Stats struct {
	Total     int
	Consented int
	MFA       int
}
