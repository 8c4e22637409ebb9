package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type configKey struct{}

// WithConfig returns a copy of ctx carrying cfg.
func WithConfig(ctx context.Context, cfg *AuthConfig) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// ConfigFromContext returns the AuthConfig attached by WithConfig.
func ConfigFromContext(ctx context.Context) (*AuthConfig, bool) {
	cfg, ok := ctx.Value(configKey{}).(*AuthConfig)
	return cfg, ok && cfg != nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(header http.Header) (string, error) {
	value := header.Get("Authorization")
	if value == "" {
		return "", fmt.Errorf("%w: authorization header is absent", ErrMissingCredential)
	}

	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: authorization scheme is not Bearer", ErrMissingCredential)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: bearer token is empty", ErrMissingCredential)
	}
	return token, nil
}

// Authenticate is the per-request entry point. It extracts the bearer
// credential, looks up the AuthConfig stored in ctx and runs the full
// decode, resolve, validate and map pipeline.
//
// ErrConfigurationMissing is a server fault; every other error is an
// authentication failure.
func Authenticate(ctx context.Context, header http.Header) (*Principal, error) {
	raw, err := BearerToken(header)
	if err != nil {
		return nil, err
	}

	cfg, ok := ConfigFromContext(ctx)
	if !ok {
		return nil, ErrConfigurationMissing
	}

	return cfg.Authenticate(ctx, raw)
}
