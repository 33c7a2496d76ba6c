// Package graph is a minimal Microsoft Graph client for reading the signed-in user's profile.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Graph v1.0 endpoint
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// DefaultScope requests every delegated permission the app has been consented to
	DefaultScope = "https://graph.microsoft.com/.default"

	maxErrorBody = 64 << 10
)

var (
	// ErrAuthorization is returned when no token could be obtained or Graph rejected it
	ErrAuthorization = errors.New("graph authorization failed")

	// ErrRequestFailed is returned for any other unsuccessful Graph call
	ErrRequestFailed = errors.New("graph request failed")
)

// Profile is the /me payload. Known fields are decoded; the raw document is kept
// so the full response can be passed through unchanged.
type Profile struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"displayName"`
	GivenName         string   `json:"givenName"`
	Surname           string   `json:"surname"`
	UserPrincipalName string   `json:"userPrincipalName"`
	Mail              *string  `json:"mail"`
	JobTitle          *string  `json:"jobTitle"`
	MobilePhone       *string  `json:"mobilePhone"`
	OfficeLocation    *string  `json:"officeLocation"`
	PreferredLanguage *string  `json:"preferredLanguage"`
	BusinessPhones    []string `json:"businessPhones"`

	raw json.RawMessage
}

// MarshalJSON writes the document exactly as Graph returned it
func (p Profile) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	type plain Profile
	return json.Marshal(plain(p))
}

// Email returns the mail address, falling back to the user principal name
func (p *Profile) Email() string {
	if p.Mail != nil && *p.Mail != "" {
		return *p.Mail
	}
	return p.UserPrincipalName
}

// errorResponse is the Graph error envelope
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the Graph endpoint
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets the client whose transport carries the authenticated requests
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.base = client
	}
}

// WithTimeout bounds each Graph call
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client calls Graph with bearer tokens from a token source
type Client struct {
	baseURL    string
	timeout    time.Duration
	base       *http.Client
	httpClient *http.Client
}

// NewClient creates a Graph client authenticated by ts
func NewClient(ts oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	ctx := context.Background()
	if c.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	}

	c.httpClient = oauth2.NewClient(ctx, &authSource{src: ts})
	c.httpClient.Timeout = c.timeout

	return c
}

// Me returns the profile of the user the token was issued for
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, ErrAuthorization) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrRequestFailed, err)
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %w", ErrRequestFailed, err)
	}
	profile.raw = body

	return &profile, nil
}

func statusError(resp *http.Response) error {
	sentinel := ErrRequestFailed
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		sentinel = ErrAuthorization
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var graphErr errorResponse
	if err := json.Unmarshal(body, &graphErr); err == nil && graphErr.Error.Code != "" {
		return fmt.Errorf("%w: status %d: %s: %s", sentinel, resp.StatusCode, graphErr.Error.Code, graphErr.Error.Message)
	}

	return fmt.Errorf("%w: status %d", sentinel, resp.StatusCode)
}

// authSource marks token acquisition failures so they can be told apart from transport errors
type authSource struct {
	src oauth2.TokenSource
}

func (s *authSource) Token() (*oauth2.Token, error) {
	token, err := s.src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorization, err)
	}
	return token, nil
}
