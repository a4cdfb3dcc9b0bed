package jwttoken

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// Claims are the JWT claims carried by fintrail tokens. The subject is the
// decimal user id.
type Claims struct {
	Email string    `json:"email"`
	Role  id.Role   `json:"role"`
	Type  TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (id.UserID, error) {
	v, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || v <= 0 {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return id.UserID(v), nil
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

func NewJWTService(signingKey string, issuer string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
}

// Subject is the identity a token is issued for.
type Subject struct {
	UserID id.UserID
	Email  string
	Role   id.Role
}

// Issued is a signed token together with its id and expiry.
type Issued struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

func (s *JWTService) GenerateAccessToken(sub Subject, expiresIn time.Duration) (Issued, error) {
	return s.generate(sub, TypeAccess, expiresIn)
}

func (s *JWTService) GenerateRefreshToken(sub Subject, expiresIn time.Duration) (Issued, error) {
	return s.generate(sub, TypeRefresh, expiresIn)
}

func (s *JWTService) generate(sub Subject, typ TokenType, expiresIn time.Duration) (Issued, error) {
	now := s.now()
	jti := uuid.NewString()
	expiresAt := now.Add(expiresIn)
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: sub.Email,
		Role:  sub.Role,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        jti,
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: signedToken, JTI: jti, ExpiresAt: expiresAt}, nil
}

// ValidateToken checks signature, expiry and issuer, and that the token is
// of the expected type.
func (s *JWTService) ValidateToken(tokenString string, want TokenType) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Type != want {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "wrong token type")
	}
	return claims, nil
}
