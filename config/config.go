package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mbwilding/microkit/auth"
	"github.com/mbwilding/microkit/utils"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// APIPortBase is the base port for API services; PORT_OFFSET is added to it.
	APIPortBase = 9000

	// DefaultConfigFile is read from the working directory unless MICROKIT_CONFIG is set.
	DefaultConfigFile = "config.yml"

	// privateConfigFile sits next to the main file and holds secrets kept out of version control.
	privateConfigFile = "config-private.yml"
)

// Config represents the complete application configuration
type Config struct {
	Environment   string `validate:"required"`
	ServiceName   string `validate:"required"`
	ServiceDesc   string
	Server        ServerConfig
	CORS          CORSConfig
	Auth          AuthSettings
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string `validate:"required"`
	Port            int    `validate:"min=1,max=65535"`
	PortOffset      int    `validate:"gte=0"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// CORSConfig holds cross-origin settings for the router
type CORSConfig struct {
	AllowedOrigins []string
}

// AuthSettings holds OIDC provider configuration. Authentication is disabled
// when Issuer is empty.
type AuthSettings struct {
	Issuer string `validate:"omitempty,url"`
	// JWKSURL is discovered from the issuer when empty
	JWKSURL      string `validate:"omitempty,url"`
	Audience     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Leeway       time.Duration `validate:"gte=0"`
	JWKSTimeout  time.Duration `validate:"gt=0"`
	SingleFlight bool
	AdminGroup   string `validate:"required"`
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"oneof=debug info warn error"`
	LogFormat      string `validate:"oneof=json text console"`
	MetricsEnabled bool
}

// fileConfig is the shape of config.yml and config-private.yml.
type fileConfig struct {
	ServiceName string    `yaml:"service_name"`
	ServiceDesc string    `yaml:"service_desc"`
	Host        string    `yaml:"host"`
	LogLevel    string    `yaml:"log_level"`
	PortOffset  *int      `yaml:"port_offset"`
	Auth        *fileAuth `yaml:"auth"`
}

type fileAuth struct {
	Issuer       string   `yaml:"issuer"`
	JWKSURI      string   `yaml:"jwks_uri"`
	Audience     string   `yaml:"audience"`
	Scopes       []string `yaml:"scopes"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
}

// New creates a new Config instance. Values come from, in increasing priority:
// built-in defaults, config.yml, config-private.yml, then environment
// variables (including those loaded from .env).
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	path := getEnv("MICROKIT_CONFIG", DefaultConfigFile)
	file, err := loadFiles(path, filepath.Join(filepath.Dir(path), privateConfigFile))
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	file.apply(cfg)
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment: "development",
		ServiceName: "microkit",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:*"},
		},
		Auth: AuthSettings{
			JWKSTimeout: auth.DefaultFetchTimeout,
			AdminGroup:  "admin",
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

// loadFiles reads the main file and overlays the private file. Either may be absent.
func loadFiles(paths ...string) (*fileConfig, error) {
	merged := &fileConfig{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}

		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		merged.overlay(&fc)
	}
	return merged, nil
}

func (f *fileConfig) overlay(o *fileConfig) {
	if o.ServiceName != "" {
		f.ServiceName = o.ServiceName
	}
	if o.ServiceDesc != "" {
		f.ServiceDesc = o.ServiceDesc
	}
	if o.Host != "" {
		f.Host = o.Host
	}
	if o.LogLevel != "" {
		f.LogLevel = o.LogLevel
	}
	if o.PortOffset != nil {
		f.PortOffset = o.PortOffset
	}
	if o.Auth == nil {
		return
	}
	if f.Auth == nil {
		f.Auth = &fileAuth{}
	}
	if o.Auth.Issuer != "" {
		f.Auth.Issuer = o.Auth.Issuer
	}
	if o.Auth.JWKSURI != "" {
		f.Auth.JWKSURI = o.Auth.JWKSURI
	}
	if o.Auth.Audience != "" {
		f.Auth.Audience = o.Auth.Audience
	}
	if len(o.Auth.Scopes) > 0 {
		f.Auth.Scopes = o.Auth.Scopes
	}
	if o.Auth.ClientID != "" {
		f.Auth.ClientID = o.Auth.ClientID
	}
	if o.Auth.ClientSecret != "" {
		f.Auth.ClientSecret = o.Auth.ClientSecret
	}
}

func (f *fileConfig) apply(cfg *Config) {
	if f.ServiceName != "" {
		cfg.ServiceName = f.ServiceName
	}
	cfg.ServiceDesc = f.ServiceDesc
	if f.Host != "" {
		cfg.Server.Host = f.Host
	}
	if f.LogLevel != "" {
		cfg.Observability.LogLevel = strings.ToLower(f.LogLevel)
	}
	if f.PortOffset != nil {
		cfg.Server.PortOffset = *f.PortOffset
	}
	if f.Auth != nil {
		cfg.Auth.Issuer = f.Auth.Issuer
		cfg.Auth.JWKSURL = f.Auth.JWKSURI
		cfg.Auth.Audience = f.Auth.Audience
		cfg.Auth.Scopes = f.Auth.Scopes
		cfg.Auth.ClientID = f.Auth.ClientID
		cfg.Auth.ClientSecret = f.Auth.ClientSecret
	}
}

func applyEnv(cfg *Config) {
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.PortOffset = getEnvAsInt("PORT_OFFSET", cfg.Server.PortOffset)
	cfg.Server.Port = getPort(APIPortBase + cfg.Server.PortOffset)
	cfg.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.CORS.AllowedOrigins = getEnvAsSlice("CORS_ALLOWED_ORIGINS", cfg.CORS.AllowedOrigins)

	cfg.Auth.Issuer = getEnv("AUTH_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.JWKSURL = getEnv("AUTH_JWKS_URL", cfg.Auth.JWKSURL)
	cfg.Auth.Audience = getEnv("AUTH_AUDIENCE", cfg.Auth.Audience)
	cfg.Auth.ClientID = getEnv("AUTH_CLIENT_ID", cfg.Auth.ClientID)
	cfg.Auth.ClientSecret = getEnv("AUTH_CLIENT_SECRET", cfg.Auth.ClientSecret)
	cfg.Auth.Scopes = getEnvAsSlice("AUTH_SCOPES", cfg.Auth.Scopes)
	cfg.Auth.Leeway = getEnvAsDuration("AUTH_LEEWAY", cfg.Auth.Leeway)
	cfg.Auth.JWKSTimeout = getEnvAsDuration("AUTH_JWKS_TIMEOUT", cfg.Auth.JWKSTimeout)
	cfg.Auth.SingleFlight = getEnvAsBool("AUTH_SINGLE_FLIGHT", cfg.Auth.SingleFlight)
	cfg.Auth.AdminGroup = getEnv("AUTH_ADMIN_GROUP", cfg.Auth.AdminGroup)

	cfg.Observability.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.Observability.LogLevel))
	cfg.Observability.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.Observability.LogFormat))
	cfg.Observability.MetricsEnabled = getEnvAsBool("METRICS_ENABLED", cfg.Observability.MetricsEnabled)
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	if c.IsProduction() && !c.AuthEnabled() {
		return fmt.Errorf("auth issuer is required in production")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// AuthEnabled reports whether an OIDC issuer is configured
func (c *Config) AuthEnabled() bool {
	return c.Auth.Issuer != ""
}

// AuthConfig builds the provider configuration, or returns nil when
// authentication is not configured. When no JWKS URL is set it is discovered
// from the issuer's OpenID configuration.
func (c *Config) AuthConfig(ctx context.Context, logger *zap.Logger, recorder auth.RefreshRecorder) (*auth.AuthConfig, error) {
	if !c.AuthEnabled() {
		return nil, nil
	}

	client := auth.NewHTTPClient(c.Auth.JWKSTimeout)

	jwksURL := c.Auth.JWKSURL
	if jwksURL == "" {
		discovered, err := auth.DiscoverJWKSURL(ctx, c.Auth.Issuer, client)
		if err != nil {
			return nil, fmt.Errorf("failed to discover JWKS URL: %w", err)
		}
		logger.Info("discovered JWKS URL",
			zap.String("issuer", c.Auth.Issuer),
			zap.String("jwks_url", discovered))
		jwksURL = discovered
	}

	opts := []auth.Option{
		auth.WithLeeway(c.Auth.Leeway),
		auth.WithFetchTimeout(c.Auth.JWKSTimeout),
		auth.WithHTTPClient(client),
		auth.WithLogger(logger),
	}
	if c.Auth.Audience != "" {
		opts = append(opts, auth.WithAudience(c.Auth.Audience))
	}
	if c.Auth.ClientSecret != "" {
		opts = append(opts, auth.WithClientSecret(c.Auth.ClientSecret))
	}
	if c.Auth.SingleFlight {
		opts = append(opts, auth.WithSingleFlight())
	}
	if recorder != nil {
		opts = append(opts, auth.WithRefreshRecorder(recorder))
	}

	return auth.NewAuthConfig(c.Auth.Issuer, jwksURL, opts...)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars, falling
// back to the offset API port.
func getPort(defaultPort int) int {
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
	return defaultPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
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

// getEnvAsSlice splits a comma-separated variable, dropping empty items
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
