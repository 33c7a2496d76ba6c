package entra

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAuthorityHost is the public Microsoft identity platform authority
const DefaultAuthorityHost = "https://login.microsoftonline.com"

var (
	// ErrInvalidToken is returned when the token is malformed or its signature does not verify
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when the token audience is invalid
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrJWKSFetchFailed is returned when JWKS fetching fails
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")

	// ErrKeyNotFound is returned when no key in the JWKS matches the token kid
	ErrKeyNotFound = errors.New("signing key not found")
)

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string   `json:"kid"`
	Kty string   `json:"kty"`
	Alg string   `json:"alg,omitempty"`
	Use string   `json:"use"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	X5c []string `json:"x5c,omitempty"`
}

// Validator validates access tokens issued by a Microsoft Entra tenant
type Validator struct {
	issuer     string
	clientID   string
	jwksURL    string
	httpClient *http.Client

	// Cache for JWKS; disabled when jwksCacheTTL <= 0
	jwksCache    *JWKS
	jwksCacheExp time.Time
	jwksCacheTTL time.Duration
	cacheMu      sync.RWMutex

	// Cache for parsed public keys, cleared whenever the JWKS is refetched
	keyCache   map[string]*rsa.PublicKey
	keyCacheMu sync.RWMutex
}

// Config holds configuration for Validator
type Config struct {
	AuthorityHost string
	TenantID      string
	ClientID      string
	CacheTTL      time.Duration
	HTTPTimeout   time.Duration

	// JWKSURL overrides the key set location derived from the authority and tenant
	JWKSURL string
}

// NewValidator creates a new Entra JWT validator
func NewValidator(config Config) *Validator {
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 10 * time.Second
	}

	authority := NormalizeAuthority(config.AuthorityHost)

	jwksURL := config.JWKSURL
	if jwksURL == "" {
		jwksURL = fmt.Sprintf("%s/%s/discovery/v2.0/keys", authority, config.TenantID)
	}

	return &Validator{
		issuer:       Issuer(authority, config.TenantID),
		clientID:     config.ClientID,
		jwksURL:      jwksURL,
		jwksCacheTTL: config.CacheTTL,
		httpClient: &http.Client{
			Timeout: config.HTTPTimeout,
		},
		keyCache: make(map[string]*rsa.PublicKey),
	}
}

// NormalizeAuthority turns "login.microsoftonline.com" or "https://login.microsoftonline.com/"
// into "https://login.microsoftonline.com"
func NormalizeAuthority(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return DefaultAuthorityHost
	}
	if !strings.HasPrefix(host, "https://") && !strings.HasPrefix(host, "http://") {
		host = "https://" + host
	}
	return strings.TrimSuffix(host, "/")
}

// Issuer returns the v2.0 issuer for a tenant: https://<authority>/<tenant>/v2.0
func Issuer(authority, tenantID string) string {
	return fmt.Sprintf("%s/%s/v2.0", NormalizeAuthority(authority), tenantID)
}

var validMethods = []string{"RS256", "RS384", "RS512"}

// ValidateToken validates a JWT token and returns parsed claims.
// Every failure is reported as an error; callers treat any error as "no valid claims".
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (*ParsedClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("kid header not found")
		}

		publicKey, err := v.getPublicKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}

		return publicKey, nil
	}, jwt.WithExpirationRequired(), jwt.WithValidMethods(validMethods))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidIssuer, v.issuer, claims.Issuer)
	}

	if !containsAudience(claims.Audience, v.clientID) {
		return nil, fmt.Errorf("%w: expected %s", ErrInvalidAudience, v.clientID)
	}

	parsed := parseClaims(claims)
	if err := parsed.RequireSubject(); err != nil {
		return nil, err
	}

	return parsed, nil
}

// FetchJWKS returns the tenant key set, from cache when caching is enabled and fresh
func (v *Validator) FetchJWKS(ctx context.Context) (*JWKS, error) {
	if v.jwksCacheTTL > 0 {
		v.cacheMu.RLock()
		if v.jwksCache != nil && time.Now().Before(v.jwksCacheExp) {
			defer v.cacheMu.RUnlock()
			return v.jwksCache, nil
		}
		v.cacheMu.RUnlock()
	}

	return v.refreshJWKS(ctx)
}

func (v *Validator) refreshJWKS(ctx context.Context) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}

	if v.jwksCacheTTL > 0 {
		v.cacheMu.Lock()
		v.jwksCache = &jwks
		v.jwksCacheExp = time.Now().Add(v.jwksCacheTTL)
		v.cacheMu.Unlock()

		v.keyCacheMu.Lock()
		v.keyCache = make(map[string]*rsa.PublicKey)
		v.keyCacheMu.Unlock()
	}

	return &jwks, nil
}

// getPublicKey retrieves the public key for a given kid. A kid missing from a cached
// key set triggers one refetch so rotated keys are picked up before the TTL expires.
func (v *Validator) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if v.jwksCacheTTL > 0 {
		v.keyCacheMu.RLock()
		if key, exists := v.keyCache[kid]; exists {
			v.keyCacheMu.RUnlock()
			return key, nil
		}
		v.keyCacheMu.RUnlock()
	}

	jwks, err := v.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	jwk := jwks.find(kid)
	if jwk == nil && v.jwksCacheTTL > 0 {
		if jwks, err = v.refreshJWKS(ctx); err != nil {
			return nil, err
		}
		jwk = jwks.find(kid)
	}
	if jwk == nil {
		return nil, fmt.Errorf("%w: kid %s", ErrKeyNotFound, kid)
	}

	publicKey, err := jwkToRSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("failed to convert JWK to RSA public key: %w", err)
	}

	if v.jwksCacheTTL > 0 {
		v.keyCacheMu.Lock()
		v.keyCache[kid] = publicKey
		v.keyCacheMu.Unlock()
	}

	return publicKey, nil
}

func (s *JWKS) find(kid string) *JWK {
	for i := range s.Keys {
		if s.Keys[i].Kid == kid {
			return &s.Keys[i]
		}
	}
	return nil
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	if jwk.Kty != "" && jwk.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", jwk.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, errors.New("empty modulus or exponent")
	}

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// containsAudience checks if the audience list contains the expected client ID
func containsAudience(audiences jwt.ClaimStrings, clientID string) bool {
	for _, aud := range audiences {
		if aud == clientID {
			return true
		}
	}
	return false
}

// InvalidateCache drops the cached key set and parsed keys
func (v *Validator) InvalidateCache() {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	v.jwksCache = nil
	v.jwksCacheExp = time.Time{}

	v.keyCacheMu.Lock()
	defer v.keyCacheMu.Unlock()
	v.keyCache = make(map[string]*rsa.PublicKey)
}

// CacheStats returns cache statistics for readiness reporting
func (v *Validator) CacheStats() map[string]interface{} {
	v.cacheMu.RLock()
	defer v.cacheMu.RUnlock()

	v.keyCacheMu.RLock()
	defer v.keyCacheMu.RUnlock()

	stats := map[string]interface{}{
		"enabled":           v.jwksCacheTTL > 0,
		"jwks_cached":       v.jwksCache != nil,
		"cached_keys_count": len(v.keyCache),
	}

	if v.jwksCache != nil {
		stats["jwks_expires_at"] = v.jwksCacheExp
		stats["jwks_keys_count"] = len(v.jwksCache.Keys)
	}

	return stats
}
