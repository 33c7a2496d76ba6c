package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/upb/graph-profile-gateway/entra"
	"github.com/upb/graph-profile-gateway/graph"
	"github.com/upb/graph-profile-gateway/obo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Upstream dependency names reported to the observer
const (
	UpstreamTokenValidation = "token_validation"
	UpstreamGraph           = "graph"
)

// Stages of GetUserProfile, reported in DomainError details
const (
	StageValidate   = "validate_token"
	StageExchange   = "exchange_credential"
	StageUserInfo   = "user_info"
	StageDownstream = "call_downstream"
)

// TokenValidator verifies an inbound access token
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*entra.ParsedClaims, error)
}

// Credential is an on-behalf-of credential bound to one user token
type Credential interface {
	GetUserInfo() (*obo.UserInfo, error)
	TokenSource(ctx context.Context, scopes ...string) oauth2.TokenSource
}

// CredentialFactory builds a credential for a user token
type CredentialFactory func(accessToken string, config obo.AuthConfig) (Credential, error)

// ProfileReader reads the signed-in user's profile
type ProfileReader interface {
	Me(ctx context.Context) (*graph.Profile, error)
}

// ProfileReaderFactory builds a reader authenticated by ts
type ProfileReaderFactory func(ts oauth2.TokenSource) ProfileReader

// UpstreamObserver records the outcome of calls to external services
type UpstreamObserver interface {
	ObserveUpstream(dependency string, duration time.Duration, err error)
}

// ProfileRequest is the input of GetUserProfile
type ProfileRequest struct {
	Body        string
	AccessToken string
}

// ProfileResult is the success response of GetUserProfile
type ProfileResult struct {
	ReceivedHTTPRequestBody string         `json:"receivedHTTPRequestBody"`
	AccessToken             string         `json:"accessToken"`
	OBOAuthConfig           obo.AuthConfig `json:"oboAuthConfig"`
	UserInfoMessage         string         `json:"userInfoMessage"`
	GraphClientMessage      *graph.Profile `json:"graphClientMessage"`
}

// ProfileServiceOption configures a ProfileService
type ProfileServiceOption func(*ProfileService)

// WithTokenValidator enables inbound token validation
func WithTokenValidator(validator TokenValidator) ProfileServiceOption {
	return func(s *ProfileService) {
		s.validator = validator
	}
}

// WithCredentialFactory replaces the on-behalf-of credential constructor
func WithCredentialFactory(factory CredentialFactory) ProfileServiceOption {
	return func(s *ProfileService) {
		s.newCredential = factory
	}
}

// WithProfileReaderFactory replaces the Graph client constructor
func WithProfileReaderFactory(factory ProfileReaderFactory) ProfileServiceOption {
	return func(s *ProfileService) {
		s.newReader = factory
	}
}

// WithUpstreamObserver reports upstream call durations and failures
func WithUpstreamObserver(observer UpstreamObserver) ProfileServiceOption {
	return func(s *ProfileService) {
		s.observer = observer
	}
}

// ProfileService exchanges the caller's token and reads their Graph profile
type ProfileService struct {
	authConfig    obo.AuthConfig
	scopes        []string
	validator     TokenValidator
	newCredential CredentialFactory
	newReader     ProfileReaderFactory
	observer      UpstreamObserver
	logger        *zap.Logger
}

// NewProfileService creates a new ProfileService. Without options tokens are not
// validated and the real on-behalf-of credential and Graph client are used.
func NewProfileService(authConfig obo.AuthConfig, scopes []string, logger *zap.Logger, opts ...ProfileServiceOption) *ProfileService {
	if len(scopes) == 0 {
		scopes = []string{graph.DefaultScope}
	}

	s := &ProfileService{
		authConfig:    authConfig,
		scopes:        scopes,
		newCredential: NewOBOCredentialFactory(),
		newReader:     NewGraphReaderFactory(),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewOBOCredentialFactory returns a factory backed by obo.NewOnBehalfOfCredential
func NewOBOCredentialFactory(opts ...obo.Option) CredentialFactory {
	return func(accessToken string, config obo.AuthConfig) (Credential, error) {
		cred, err := obo.NewOnBehalfOfCredential(accessToken, config, opts...)
		if err != nil {
			return nil, err
		}
		return cred, nil
	}
}

// NewGraphReaderFactory returns a factory backed by graph.NewClient
func NewGraphReaderFactory(opts ...graph.Option) ProfileReaderFactory {
	return func(ts oauth2.TokenSource) ProfileReader {
		return graph.NewClient(ts, opts...)
	}
}

// ValidationEnabled reports whether inbound tokens are verified
func (s *ProfileService) ValidationEnabled() bool {
	return s.validator != nil
}

// GetUserProfile runs require token, validate, exchange, user info and Graph /me in order,
// stopping at the first failure with a DomainError naming the failed stage.
func (s *ProfileService) GetUserProfile(ctx context.Context, req ProfileRequest) (*ProfileResult, error) {
	accessToken := strings.TrimSpace(req.AccessToken)
	if accessToken == "" {
		return nil, ErrMissingToken
	}

	if s.validator != nil {
		start := time.Now()
		claims, err := s.validator.ValidateToken(ctx, accessToken)
		s.observe(UpstreamTokenValidation, start, err)
		if err != nil {
			return nil, NewDomainError(ErrorTypeUnauthorized, MsgValidationFailed, err).
				WithDetail("stage", StageValidate)
		}
		s.logger.Debug("access token validated",
			zap.String("sub", claims.Subject),
			zap.String("tid", claims.TenantID))
	}

	result := &ProfileResult{
		ReceivedHTTPRequestBody: req.Body,
		AccessToken:             accessToken,
		OBOAuthConfig:           s.authConfig,
	}

	cred, err := s.newCredential(accessToken, s.authConfig)
	if err != nil {
		return nil, NewDomainError(ErrorTypeConfiguration, MsgConfiguration, err).
			WithDetail("stage", StageExchange)
	}

	userInfo, err := cred.GetUserInfo()
	if err != nil {
		return nil, NewDomainError(ErrorTypeInvalidToken, withCause(MsgInvalidToken, err), err).
			WithDetail("stage", StageUserInfo)
	}

	if userInfo != nil && userInfo.DisplayName != "" {
		result.UserInfoMessage = "User display name is " + userInfo.DisplayName + "."
	} else {
		result.UserInfoMessage = "No user information was found in access token."
	}

	start := time.Now()
	profile, err := s.newReader(cred.TokenSource(ctx, s.scopes...)).Me(ctx)
	s.observe(UpstreamGraph, start, err)
	if err != nil {
		// the identity provider refusing the user token itself is the caller's fault
		if errors.Is(err, obo.ErrInvalidToken) {
			return nil, NewDomainError(ErrorTypeInvalidToken, withCause(MsgInvalidToken, err), err).
				WithDetail("stage", StageDownstream)
		}
		return nil, NewDomainError(ErrorTypeAuthorization, withCause(MsgAuthorization, err), err).
			WithDetail("stage", StageDownstream)
	}
	if profile != nil {
		s.logger.Debug("graph profile retrieved",
			zap.String("user_id", profile.ID),
			zap.String("email", profile.Email()))
	}
	result.GraphClientMessage = profile

	return result, nil
}

func (s *ProfileService) observe(dependency string, start time.Time, err error) {
	if s.observer != nil {
		s.observer.ObserveUpstream(dependency, time.Since(start), err)
	}
}
