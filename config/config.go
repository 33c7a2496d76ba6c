package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	M365          M365Config
	Validation    ValidationConfig
	Graph         GraphConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// M365Config holds the Azure AD app registration used for the on-behalf-of exchange.
// Values are not required at startup: a missing value surfaces as a configuration
// failure on the first profile request.
type M365Config struct {
	AuthorityHost string
	ClientID      string
	TenantID      string
	ClientSecret  string
	HTTPTimeout   time.Duration
}

// ValidationConfig controls inbound access token verification against the tenant JWKS
type ValidationConfig struct {
	Enabled      bool
	JWKSCacheTTL time.Duration // <= 0 fetches the key set on every validation
}

// GraphConfig holds Microsoft Graph client configuration
type GraphConfig struct {
	BaseURL string
	Scopes  []string
	Timeout time.Duration
}

// CORSConfig holds cross-origin settings for the router
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// DefaultCORSOrigins are the Teams web client and local tab development hosts
var DefaultCORSOrigins = []string{"https://teams.microsoft.com", "https://*.teams.microsoft.com", "http://localhost:*"}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 45*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 40*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		M365: M365Config{
			AuthorityHost: getEnv("M365_AUTHORITY_HOST", "https://login.microsoftonline.com"),
			ClientID:      getEnv("M365_CLIENT_ID", ""),
			TenantID:      getEnv("M365_TENANT_ID", ""),
			ClientSecret:  getEnv("M365_CLIENT_SECRET", ""),
			HTTPTimeout:   getEnvAsDuration("IDP_HTTP_TIMEOUT", 10*time.Second),
		},
		Validation: ValidationConfig{
			Enabled:      getEnvAsBool("TOKEN_VALIDATION_ENABLED", false),
			JWKSCacheTTL: getEnvAsDuration("JWKS_CACHE_TTL", time.Hour),
		},
		Graph: GraphConfig{
			BaseURL: getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
			Scopes:  getEnvAsList("GRAPH_SCOPES", []string{"https://graph.microsoft.com/.default"}),
			Timeout: getEnvAsDuration("GRAPH_TIMEOUT", 15*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", DefaultCORSOrigins),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("tls cert and key files are required when TLS is enabled")
	}

	// A response cut by the write deadline never reaches the caller
	if c.Server.WriteTimeout > 0 && c.Server.RequestTimeout > c.Server.WriteTimeout {
		return fmt.Errorf("request timeout %s exceeds server write timeout %s", c.Server.RequestTimeout, c.Server.WriteTimeout)
	}

	// App registration is required in production
	if c.IsProduction() && !c.M365.IsComplete() {
		return fmt.Errorf("M365_CLIENT_ID, M365_TENANT_ID and M365_CLIENT_SECRET are required in production")
	}

	// Validation needs a tenant to derive the JWKS and issuer from
	if c.Validation.Enabled && (c.M365.TenantID == "" || c.M365.ClientID == "") {
		return fmt.Errorf("token validation requires M365_TENANT_ID and M365_CLIENT_ID")
	}

	if c.Graph.BaseURL == "" {
		return fmt.Errorf("graph base URL is required")
	}
	if len(c.Graph.Scopes) == 0 {
		return fmt.Errorf("at least one graph scope is required")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if c.Observability.LogFormat != "json" && c.Observability.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", c.Observability.LogFormat)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsComplete reports whether every value needed for the on-behalf-of exchange is set
func (c *M365Config) IsComplete() bool {
	return c.AuthorityHost != "" && c.ClientID != "" && c.TenantID != "" && c.ClientSecret != ""
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
