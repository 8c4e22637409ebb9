// Package authtest runs a mock OIDC key endpoint and signs tokens for it.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mbwilding/microkit/auth"
	"github.com/stretchr/testify/require"
)

// Issuer is the issuer used by Provider tokens unless overridden
const Issuer = "https://idp.example.com/pool"

// Provider serves a single RSA key as a JWKS and signs tokens with it.
type Provider struct {
	Key    *rsa.PrivateKey
	KeyID  string
	Server *httptest.Server

	hits atomic.Int64
}

// NewProvider starts the JWKS server; it is closed when the test ends.
func NewProvider(t testing.TB) *Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &Provider{Key: key, KeyID: "test-kid"}
	body, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: &key.PublicKey, KeyID: p.KeyID, Algorithm: "RS256", Use: "sig"},
	}})
	require.NoError(t, err)

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(p.Server.Close)
	return p
}

// JWKSURL returns the key endpoint
func (p *Provider) JWKSURL() string {
	return p.Server.URL
}

// Hits returns how many times the key endpoint was fetched
func (p *Provider) Hits() int64 {
	return p.hits.Load()
}

// Claims returns a valid claim set for subject with the given groups
func Claims(subject string, groups ...string) *auth.Claims {
	now := time.Now()
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email:         subject + "@example.com",
		CognitoGroups: groups,
	}
}

// Token signs claims with the provider key
func (p *Provider) Token(t testing.TB, claims *auth.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.KeyID
	signed, err := token.SignedString(p.Key)
	require.NoError(t, err)
	return signed
}

// Config returns an AuthConfig for Issuer backed by this provider
func (p *Provider) Config(t testing.TB, opts ...auth.Option) *auth.AuthConfig {
	t.Helper()
	cfg, err := auth.NewAuthConfig(Issuer, p.JWKSURL(), opts...)
	require.NoError(t, err)
	return cfg
}
