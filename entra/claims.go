package entra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims represents the claims of a Microsoft identity platform v2.0 access token
type Claims struct {
	jwt.RegisteredClaims
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	ObjectID          string `json:"oid"`
	TenantID          string `json:"tid"`
	Scope             string `json:"scp"`
	AuthorizedParty   string `json:"azp"`
	Version           string `json:"ver"`
}

// ParsedClaims represents parsed claims of an access token
type ParsedClaims struct {
	Subject           string
	Audience          []string
	Issuer            string
	TenantID          string
	ObjectID          string
	Name              string
	PreferredUsername string
	Scopes            []string
	AuthorizedParty   string
	IssuedAt          time.Time
	ExpiresAt         time.Time
}

// ExtractClaims parses a token without verifying its signature or time claims.
// The credential uses it to read user details from a token that is validated by
// the identity provider during the exchange.
func ExtractClaims(tokenString string) (*ParsedClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return parseClaims(claims), nil
}

// parseClaims converts Claims to ParsedClaims
func parseClaims(claims *Claims) *ParsedClaims {
	parsed := &ParsedClaims{
		Subject:           claims.Subject,
		Audience:          []string(claims.Audience),
		Issuer:            claims.Issuer,
		TenantID:          claims.TenantID,
		ObjectID:          claims.ObjectID,
		Name:              claims.Name,
		PreferredUsername: claims.PreferredUsername,
		Scopes:            strings.Fields(claims.Scope),
		AuthorizedParty:   claims.AuthorizedParty,
	}

	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}

	return parsed
}

// IsExpired reports whether the token carried an expiry that lies before now
func (p *ParsedClaims) IsExpired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// RequireSubject returns ErrMissingClaim when the token carries no subject
func (p *ParsedClaims) RequireSubject() error {
	if p.Subject == "" && p.ObjectID == "" {
		return fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return nil
}
