package app

import (
	"context"
	"net/http"

	"github.com/upb/graph-profile-gateway/config"
	"github.com/upb/graph-profile-gateway/entra"
	"github.com/upb/graph-profile-gateway/graph"
	"github.com/upb/graph-profile-gateway/internal/observability"
	"github.com/upb/graph-profile-gateway/middleware"
	"github.com/upb/graph-profile-gateway/obo"
	"github.com/upb/graph-profile-gateway/services"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics // nil when metrics are disabled

	// Token validation, nil when TOKEN_VALIDATION_ENABLED is off
	Validator *entra.Validator

	// Services
	ProfileService *services.ProfileService

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
// Missing app registration values are not an error here: each profile request
// reports them as a configuration failure and /readyz reports not ready.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics(cfg)
	deps.initValidator(cfg)
	deps.initProfileService(cfg)
	deps.AuthMiddleware = middleware.NewAuthMiddleware(logger)

	if !cfg.M365.IsComplete() {
		logger.Warn("on-behalf-of configuration incomplete, profile requests will fail",
			zap.Bool("client_id_set", cfg.M365.ClientID != ""),
			zap.Bool("tenant_id_set", cfg.M365.TenantID != ""),
			zap.Bool("client_secret_set", cfg.M365.ClientSecret != ""))
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Logger.Info("metrics disabled")
		return
	}
	d.Metrics = observability.NewMetrics()
}

func (d *Dependencies) initValidator(cfg *config.Config) {
	if !cfg.Validation.Enabled {
		d.Logger.Info("inbound token validation disabled")
		return
	}

	d.Validator = entra.NewValidator(entra.Config{
		AuthorityHost: cfg.M365.AuthorityHost,
		TenantID:      cfg.M365.TenantID,
		ClientID:      cfg.M365.ClientID,
		CacheTTL:      cfg.Validation.JWKSCacheTTL,
		HTTPTimeout:   cfg.M365.HTTPTimeout,
	})
	d.Logger.Info("inbound token validation enabled",
		zap.String("issuer", entra.Issuer(cfg.M365.AuthorityHost, cfg.M365.TenantID)),
		zap.Duration("jwks_cache_ttl", cfg.Validation.JWKSCacheTTL))
}

func (d *Dependencies) initProfileService(cfg *config.Config) {
	authConfig := obo.AuthConfig{
		AuthorityHost: cfg.M365.AuthorityHost,
		ClientID:      cfg.M365.ClientID,
		TenantID:      cfg.M365.TenantID,
		ClientSecret:  cfg.M365.ClientSecret,
	}

	opts := []services.ProfileServiceOption{
		services.WithCredentialFactory(services.NewOBOCredentialFactory(
			obo.WithHTTPClient(&http.Client{Timeout: cfg.M365.HTTPTimeout}),
		)),
		services.WithProfileReaderFactory(services.NewGraphReaderFactory(
			graph.WithBaseURL(cfg.Graph.BaseURL),
			graph.WithTimeout(cfg.Graph.Timeout),
		)),
	}
	if d.Validator != nil {
		opts = append(opts, services.WithTokenValidator(d.Validator))
	}
	if d.Metrics != nil {
		opts = append(opts, services.WithUpstreamObserver(d.Metrics))
	}

	d.ProfileService = services.NewProfileService(authConfig, cfg.Graph.Scopes, d.Logger, opts...)
}

// Close releases resources held by the dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("closing dependencies")
	// stderr/stdout sinks return EINVAL on sync on some platforms
	_ = d.Logger.Sync()
	return nil
}
