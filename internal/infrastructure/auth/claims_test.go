package auth

import (
	"testing"
	"time"

	"github.com/clinicerp/backend/internal/infrastructure/config"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/access"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService() *TokenService {
	return NewTokenService(&config.JWTConfig{
		Secret:                "test-secret",
		Issuer:                "clinic-erp-test",
		AccessTokenExpiration: time.Hour,
	})
}

func testPrincipal() access.Principal {
	return access.Principal{
		ActorID:   uuid.New(),
		ActorName: "dr.jones",
		TenantID:  uuid.New(),
		CompanyID: 7,
		BranchIDs: []int64{1, 2},
	}
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := testService()
	p := testPrincipal()

	token, err := svc.Generate(p)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Parse(token)
	require.NoError(t, err)

	got, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, p.ActorID, got.ActorID)
	assert.Equal(t, p.ActorName, got.ActorName)
	assert.Equal(t, p.TenantID, got.TenantID)
	assert.Equal(t, p.CompanyID, got.CompanyID)
	assert.Equal(t, p.BranchIDs, got.BranchIDs)
	assert.False(t, got.SuperAdmin)
}

func TestTokenService_Parse(t *testing.T) {
	svc := testService()

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := svc.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects a token signed with another secret", func(t *testing.T) {
		other := NewTokenService(&config.JWTConfig{
			Secret: "other-secret", Issuer: "clinic-erp-test", AccessTokenExpiration: time.Hour,
		})
		token, err := other.Generate(testPrincipal())
		require.NoError(t, err)

		_, err = svc.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects a wrong issuer", func(t *testing.T) {
		other := NewTokenService(&config.JWTConfig{
			Secret: "test-secret", Issuer: "someone-else", AccessTokenExpiration: time.Hour,
		})
		token, err := other.Generate(testPrincipal())
		require.NoError(t, err)

		_, err = svc.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		expired := NewTokenService(&config.JWTConfig{
			Secret: "test-secret", Issuer: "clinic-erp-test", AccessTokenExpiration: -time.Minute,
		})
		token, err := expired.Generate(testPrincipal())
		require.NoError(t, err)

		_, err = svc.Parse(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestClaims_Principal(t *testing.T) {
	claims := &Claims{}
	claims.Subject = "not-a-uuid"

	_, err := claims.Principal()
	assert.Error(t, err)
}
