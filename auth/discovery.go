package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoverJWKSURL reads jwks_uri from the issuer's OpenID configuration.
// A nil client uses the traced default client.
func DiscoverJWKSURL(ctx context.Context, issuer string, client *http.Client) (string, error) {
	if issuer == "" {
		return "", errors.New("issuer is required")
	}
	if client == nil {
		client = NewHTTPClient(DefaultFetchTimeout)
	}
	ctx = oidc.ClientContext(ctx, client)

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}

	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return "", errors.New("discovery metadata has no jwks_uri")
	}
	return meta.JwksURI, nil
}
