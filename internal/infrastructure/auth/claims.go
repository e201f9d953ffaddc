// Package auth issues and verifies the session tokens the HTTP layer turns
// into per-request access contexts.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/clinicerp/backend/internal/infrastructure/config"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/access"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token fails signature or claim checks
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token is past its expiry
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the JWT payload carried by every authenticated request. The
// branch list and tenant are resolved at login; the data layer trusts them
// for the lifetime of the token only.
type Claims struct {
	jwt.RegisteredClaims
	Name       string    `json:"name"`
	TenantID   uuid.UUID `json:"tenant_id"`
	CompanyID  int64     `json:"company_id"`
	BranchIDs  []int64   `json:"branch_ids"`
	SuperAdmin bool      `json:"super_admin"`
}

// TokenService signs and verifies access tokens
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewTokenService creates a token service from JWT configuration
func NewTokenService(cfg *config.JWTConfig) *TokenService {
	return &TokenService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		expiration: cfg.AccessTokenExpiration,
	}
}

// Generate signs an access token for the given principal
func (s *TokenService) Generate(p access.Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ActorID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			ID:        uuid.NewString(),
		},
		Name:       p.ActorName,
		TenantID:   p.TenantID,
		CompanyID:  p.CompanyID,
		BranchIDs:  p.BranchIDs,
		SuperAdmin: p.SuperAdmin,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse verifies a token string and returns its claims
func (s *TokenService) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Principal converts verified claims into the identity material the data
// layer consumes.
func (c *Claims) Principal() (access.Principal, error) {
	actorID, err := uuid.Parse(c.Subject)
	if err != nil {
		return access.Principal{}, fmt.Errorf("invalid subject: %w", err)
	}
	return access.Principal{
		ActorID:    actorID,
		ActorName:  c.Name,
		TenantID:   c.TenantID,
		CompanyID:  c.CompanyID,
		BranchIDs:  c.BranchIDs,
		SuperAdmin: c.SuperAdmin,
	}, nil
}
