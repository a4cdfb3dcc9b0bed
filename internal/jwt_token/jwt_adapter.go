package jwttoken

import (
	authmw "fintrail/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *Claims) (*authmw.Claims, error) {
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	out := &authmw.Claims{
		UserID: userID,
		Email:  claims.Email,
		Role:   claims.Role,
		JTI:    claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// JWTServiceAdapter exposes access-token validation to the auth middleware.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString, TypeAccess)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
