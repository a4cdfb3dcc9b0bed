package handler

import (
	"strings"
	"unicode/utf8"

	dErrors "fintrail/pkg/domain-errors"
)

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	IDNumber     string `json:"id_number,omitempty"`
	ConsentGiven bool   `json:"consent_given"`
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.IDNumber = strings.TrimSpace(r.IDNumber)

	switch {
	case r.Email == "":
		return dErrors.New(dErrors.CodeValidation, "email is required")
	case len(r.Email) > 255:
		return dErrors.New(dErrors.CodeValidation, "email must be at most 255 characters")
	case utf8.RuneCountInString(r.Password) < 8:
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	case len(r.Password) > 72:
		return dErrors.New(dErrors.CodeValidation, "password must be at most 72 bytes")
	case r.FirstName == "" || r.LastName == "":
		return dErrors.New(dErrors.CodeValidation, "first_name and last_name are required")
	case len(r.FirstName) > 100 || len(r.LastName) > 100:
		return dErrors.New(dErrors.CodeValidation, "names must be at most 100 characters")
	case len(r.PhoneNumber) > 20:
		return dErrors.New(dErrors.CodeValidation, "phone_number must be at most 20 characters")
	case r.IDNumber != "" && len(r.IDNumber) != 13:
		return dErrors.New(dErrors.CodeValidation, "id_number must be 13 digits")
	}
	return nil
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFAToken string `json:"mfa_token,omitempty"`
}

func (r *LoginRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r *RefreshRequest) Validate() error {
	if r == nil || strings.TrimSpace(r.RefreshToken) == "" {
		return dErrors.New(dErrors.CodeValidation, "refresh_token is required")
	}
	return nil
}

// VerifyMFARequest is the body of POST /auth/mfa/verify.
type VerifyMFARequest struct {
	Token string `json:"token"`
}

func (r *VerifyMFARequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Token = strings.TrimSpace(r.Token)
	if len(r.Token) != 6 {
		return dErrors.New(dErrors.CodeValidation, "token must be a 6 digit code")
	}
	return nil
}
