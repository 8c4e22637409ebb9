package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// AuthConfig is the immutable configuration for one OIDC provider. It owns
// the key store for that provider and is shared by pointer across requests.
type AuthConfig struct {
	issuer       string
	jwksURL      string
	audience     string
	clientSecret string
	leeway       time.Duration

	keys      *KeyStore
	validator *Validator
	logger    *zap.Logger
}

type options struct {
	audience     string
	clientSecret string
	leeway       time.Duration
	store        KeyStoreConfig
}

// Option configures an AuthConfig.
type Option func(*options)

// WithAudience enables the audience check.
func WithAudience(audience string) Option {
	return func(o *options) { o.audience = audience }
}

// WithClientSecret records the client secret shared with the provider.
// Token validation does not use it.
func WithClientSecret(secret string) Option {
	return func(o *options) { o.clientSecret = secret }
}

// WithLeeway tolerates clock skew when checking expiry.
func WithLeeway(leeway time.Duration) Option {
	return func(o *options) { o.leeway = leeway }
}

// WithFetchTimeout bounds each JWKS fetch.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(o *options) { o.store.Timeout = timeout }
}

// WithHTTPClient overrides the client used to fetch the JWKS.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.store.HTTPClient = client }
}

// WithSingleFlight collapses concurrent miss-triggered refreshes into one fetch.
func WithSingleFlight() Option {
	return func(o *options) { o.store.SingleFlight = true }
}

// WithLogger sets the logger used for key set refreshes. The default discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.store.Logger = logger }
}

// WithRefreshRecorder reports each key set refresh outcome to recorder.
func WithRefreshRecorder(recorder RefreshRecorder) Option {
	return func(o *options) { o.store.Recorder = recorder }
}

// WithClock replaces time.Now for expiry checks and fetch timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.store.Now = now }
}

// NewAuthConfig creates the configuration for the provider at issuer whose
// keys are published at jwksURL.
func NewAuthConfig(issuer, jwksURL string, opts ...Option) (*AuthConfig, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.leeway < 0 {
		return nil, fmt.Errorf("leeway must not be negative, got %s", o.leeway)
	}
	if o.store.Logger == nil {
		o.store.Logger = zap.NewNop()
	}
	o.store.JWKSURL = jwksURL

	return &AuthConfig{
		issuer:       issuer,
		jwksURL:      jwksURL,
		audience:     o.audience,
		clientSecret: o.clientSecret,
		leeway:       o.leeway,
		keys:         NewKeyStore(o.store),
		validator:    NewValidator(issuer, o.audience, o.leeway, o.store.Now),
		logger:       o.store.Logger,
	}, nil
}

// Issuer returns the expected "iss" claim.
func (c *AuthConfig) Issuer() string { return c.issuer }

// JWKSURL returns the endpoint the key store fetches from.
func (c *AuthConfig) JWKSURL() string { return c.jwksURL }

// Audience returns the expected "aud" value, or "" when audience is not checked.
func (c *AuthConfig) Audience() string { return c.audience }

// ClientSecret returns the configured client secret. It is never logged.
func (c *AuthConfig) ClientSecret() string { return c.clientSecret }

// Leeway returns the clock skew tolerated on time claims.
func (c *AuthConfig) Leeway() time.Duration { return c.leeway }

// Keys returns the provider's key store.
func (c *AuthConfig) Keys() *KeyStore {
	return c.keys
}

// RefreshKeys repopulates the key cache on operator request.
func (c *AuthConfig) RefreshKeys(ctx context.Context) error {
	return c.keys.ForceRefresh(ctx)
}

// ValidateToken decodes raw, resolves its signing key and validates it.
func (c *AuthConfig) ValidateToken(ctx context.Context, raw string) (*Claims, error) {
	header, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}

	key, err := c.keys.Resolve(ctx, header.KeyID)
	if err != nil {
		return nil, err
	}

	return c.validator.Validate(raw, header, key)
}

// Authenticate validates raw and maps the result to a principal.
func (c *AuthConfig) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	claims, err := c.ValidateToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	return newPrincipal(claims), nil
}
