// Package entratest provides a fake Entra tenant for tests: an RSA signing key,
// a JWKS endpoint serving it, and a helper minting v2.0 access tokens.
package entratest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/upb/graph-profile-gateway/entra"
)

// Tenant is a fake identity tenant backed by an httptest JWKS server
type Tenant struct {
	Authority string
	TenantID  string
	ClientID  string
	Kid       string
	Key       *rsa.PrivateKey

	server *httptest.Server
	hits   atomic.Int64
}

// NewTenant starts a JWKS server publishing one freshly generated RSA key.
// The server is closed when the test finishes.
func NewTenant(t testing.TB) *Tenant {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tenant := &Tenant{
		Authority: "https://login.microsoftonline.com",
		TenantID:  uuid.NewString(),
		ClientID:  uuid.NewString(),
		Kid:       "kid-" + uuid.NewString()[:8],
		Key:       key,
	}

	tenant.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entra.JWKS{Keys: []entra.JWK{PublicJWK(tenant.Kid, &key.PublicKey)}})
	}))
	t.Cleanup(tenant.server.Close)

	return tenant
}

// JWKSURL returns the URL of the key set endpoint
func (tn *Tenant) JWKSURL() string {
	return tn.server.URL
}

// JWKSHits returns how many times the key set was fetched
func (tn *Tenant) JWKSHits() int64 {
	return tn.hits.Load()
}

// Issuer returns the issuer the validator expects for this tenant
func (tn *Tenant) Issuer() string {
	return entra.Issuer(tn.Authority, tn.TenantID)
}

// Claims returns a valid claim set for the tenant that callers may modify before signing
func (tn *Tenant) Claims() *entra.Claims {
	now := time.Now()
	return &entra.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tn.Issuer(),
			Subject:   uuid.NewString(),
			Audience:  jwt.ClaimStrings{tn.ClientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Name:              "Megan Bowen",
		PreferredUsername: "meganb@contoso.com",
		ObjectID:          uuid.NewString(),
		TenantID:          tn.TenantID,
		Scope:             "access_as_user",
		Version:           "2.0",
	}
}

// Sign signs claims with the tenant key and kid
func (tn *Tenant) Sign(t testing.TB, claims *entra.Claims) string {
	t.Helper()
	return SignWith(t, tn.Key, tn.Kid, claims)
}

// Token mints a valid token for the tenant
func (tn *Tenant) Token(t testing.TB) string {
	t.Helper()
	return tn.Sign(t, tn.Claims())
}

// SignWith signs claims using an arbitrary key and kid
func SignWith(t testing.TB, key *rsa.PrivateKey, kid string, claims *entra.Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

// PublicJWK encodes an RSA public key as a JWK
func PublicJWK(kid string, pub *rsa.PublicKey) entra.JWK {
	return entra.JWK{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}
