// Package obo exchanges a user's delegated access token for a downstream token
// using the OAuth 2.0 on-behalf-of flow of the Microsoft identity platform.
package obo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/graph-profile-gateway/entra"
	"github.com/upb/graph-profile-gateway/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// GrantTypeJWTBearer is the grant used by the on-behalf-of request
	GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// RequestedTokenUse marks the assertion grant as an on-behalf-of exchange
	RequestedTokenUse = "on_behalf_of"
)

var (
	// ErrConfiguration is returned when the credential cannot be built from the auth config and token
	ErrConfiguration = errors.New("invalid on-behalf-of configuration")

	// ErrInvalidToken is returned when the user's token is expired or rejected by the identity provider
	ErrInvalidToken = errors.New("invalid user token")

	// ErrAuthorization is returned when the application is not allowed to act for the user
	ErrAuthorization = errors.New("on-behalf-of exchange not authorized")
)

// AuthConfig is the app registration used for the exchange
type AuthConfig struct {
	AuthorityHost string `json:"authorityHost" validate:"required"`
	ClientID      string `json:"clientId" validate:"required"`
	TenantID      string `json:"tenantId" validate:"required"`
	ClientSecret  string `json:"-" validate:"required"`
}

// UserInfo holds user details read from the access token
type UserInfo struct {
	DisplayName       string `json:"displayName"`
	ObjectID          string `json:"objectId"`
	PreferredUserName string `json:"preferredUserName"`
	TenantID          string `json:"tenantId"`
}

// Option configures an OnBehalfOfCredential
type Option func(*OnBehalfOfCredential)

// WithHTTPClient sets the client used to reach the token endpoint
func WithHTTPClient(client *http.Client) Option {
	return func(c *OnBehalfOfCredential) {
		c.httpClient = client
	}
}

// WithTokenURL overrides the token endpoint derived from the authority and tenant
func WithTokenURL(tokenURL string) Option {
	return func(c *OnBehalfOfCredential) {
		c.tokenURL = tokenURL
	}
}

// OnBehalfOfCredential holds a user's access token and the app registration that
// exchanges it. It lives for a single request.
type OnBehalfOfCredential struct {
	assertion  string
	config     AuthConfig
	claims     *entra.ParsedClaims
	tokenURL   string
	httpClient *http.Client
	now        func() time.Time
}

// NewOnBehalfOfCredential validates the auth config and parses the user token.
// Every failure wraps ErrConfiguration.
func NewOnBehalfOfCredential(accessToken string, config AuthConfig, opts ...Option) (*OnBehalfOfCredential, error) {
	if err := utils.ValidateStruct(config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	authority := entra.NormalizeAuthority(config.AuthorityHost)
	if err := utils.ValidateVar(authority, "AuthorityHost", "url"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	config.AuthorityHost = authority

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, fmt.Errorf("%w: access token is empty", ErrConfiguration)
	}

	claims, err := entra.ExtractClaims(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	c := &OnBehalfOfCredential{
		assertion: accessToken,
		config:    config,
		claims:    claims,
		tokenURL:  TokenURL(authority, config.TenantID),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// TokenURL returns the v2.0 token endpoint of a tenant
func TokenURL(authority, tenantID string) string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", entra.NormalizeAuthority(authority), url.PathEscape(tenantID))
}

// GetUserInfo returns the user details carried by the access token. The display
// name is empty when the token has no name claim.
func (c *OnBehalfOfCredential) GetUserInfo() (*UserInfo, error) {
	if c.claims.IsExpired(c.now()) {
		return nil, fmt.Errorf("%w: token expired at %s", ErrInvalidToken, c.claims.ExpiresAt.UTC().Format(time.RFC3339))
	}

	return &UserInfo{
		DisplayName:       c.claims.Name,
		ObjectID:          c.claims.ObjectID,
		PreferredUserName: c.claims.PreferredUsername,
		TenantID:          c.claims.TenantID,
	}, nil
}

// Config returns the normalised auth config
func (c *OnBehalfOfCredential) Config() AuthConfig {
	return c.config
}

// TokenSource returns a source that exchanges the user token for one carrying the
// given scopes. The exchanged token is reused until it expires.
func (c *OnBehalfOfCredential) TokenSource(ctx context.Context, scopes ...string) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		TokenURL:     c.tokenURL,
		Scopes:       scopes,
		EndpointParams: url.Values{
			"grant_type":          {GrantTypeJWTBearer},
			"assertion":           {c.assertion},
			"requested_token_use": {RequestedTokenUse},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}

	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	return oauth2.ReuseTokenSource(nil, &exchangeSource{src: cfg.TokenSource(ctx)})
}

// exchangeSource classifies identity provider failures
type exchangeSource struct {
	src oauth2.TokenSource
}

func (s *exchangeSource) Token() (*oauth2.Token, error) {
	token, err := s.src.Token()
	if err != nil {
		return nil, classify(err)
	}
	return token, nil
}

func classify(err error) error {
	var rErr *oauth2.RetrieveError
	if !errors.As(err, &rErr) {
		return err
	}

	switch rErr.ErrorCode {
	case "invalid_grant":
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	case "consent_required", "interaction_required", "invalid_scope", "unauthorized_client":
		return fmt.Errorf("%w: %w", ErrAuthorization, err)
	default:
		return err
	}
}
