package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "fintrail/pkg/domain"
	dErrors "fintrail/pkg/domain-errors"
)

var (
	jwtService = NewJWTService("test-signing-key", "fintrail-test")
	subject    = Subject{UserID: 42, Email: "ayanda@example.com", Role: id.RoleAuditor}
	expiresIn  = time.Hour
)

func Test_GenerateAccessToken(t *testing.T) {
	issued, err := jwtService.GenerateAccessToken(subject, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
	require.NotEmpty(t, issued.JTI)

	claims, err := jwtService.ValidateToken(issued.Token, TypeAccess)
	require.NoError(t, err)
	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, id.UserID(42), userID)
	assert.Equal(t, "ayanda@example.com", claims.Email)
	assert.Equal(t, id.RoleAuditor, claims.Role)
	assert.Equal(t, issued.JTI, claims.ID)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string", TypeAccess)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	issued, err := jwtService.GenerateAccessToken(subject, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(issued.Token, TypeAccess)
	require.Error(t, err)
	de, ok := dErrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "token has expired", de.Message)
}

func Test_ValidateToken_WrongType(t *testing.T) {
	issued, err := jwtService.GenerateRefreshToken(subject, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(issued.Token, TypeAccess)
	require.Error(t, err)

	_, err = jwtService.ValidateToken(issued.Token, TypeRefresh)
	require.NoError(t, err)
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("another-key", "fintrail-test")
	issued, err := other.GenerateAccessToken(subject, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(issued.Token, TypeAccess)
	require.Error(t, err)
}

func Test_Adapter(t *testing.T) {
	issued, err := jwtService.GenerateAccessToken(subject, expiresIn)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, id.UserID(42), claims.UserID)
	assert.Equal(t, issued.JTI, claims.JTI)
	assert.Equal(t, id.RoleAuditor, claims.Role)
}
