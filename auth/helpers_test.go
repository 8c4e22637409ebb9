package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://idp.example.com/pool"
	testAudience = "microkit-client"
)

// Test helper to generate RSA key pair
func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func generateECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func publicJWK(kid, alg string, pub crypto.PublicKey) jose.JSONWebKey {
	return jose.JSONWebKey{Key: pub, KeyID: kid, Algorithm: alg, Use: "sig"}
}

func marshalJWKS(t *testing.T, keys ...jose.JSONWebKey) []byte {
	t.Helper()
	body, err := json.Marshal(jose.JSONWebKeySet{Keys: keys})
	require.NoError(t, err)
	return body
}

// jwksServer is a mock JWKS endpoint that counts hits and can swap its
// document or start failing between requests.
type jwksServer struct {
	*httptest.Server

	hits atomic.Int64

	mu     sync.Mutex
	body   []byte
	status int
	delay  time.Duration
}

func newJWKSServer(t *testing.T, body []byte) *jwksServer {
	t.Helper()
	s := &jwksServer{body: body, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)

		s.mu.Lock()
		body, status, delay := s.body, s.status, s.delay
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setBody(body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

func (s *jwksServer) setStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *jwksServer) setDelay(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = delay
}

func validClaims() *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   "user-123",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email: "user@example.com",
	}
}

// Test helper to create a signed token
func signToken(t *testing.T, method jwt.SigningMethod, key crypto.PrivateKey, kid string, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

// testProvider bundles a signing key with a mock JWKS server publishing it.
type testProvider struct {
	key    *rsa.PrivateKey
	kid    string
	server *jwksServer
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()
	key := generateRSAKey(t)
	kid := "kid-1"
	server := newJWKSServer(t, marshalJWKS(t, publicJWK(kid, "RS256", &key.PublicKey)))
	return &testProvider{key: key, kid: kid, server: server}
}

func (p *testProvider) token(t *testing.T, claims *Claims) string {
	t.Helper()
	return signToken(t, jwt.SigningMethodRS256, p.key, p.kid, claims)
}

func (p *testProvider) config(t *testing.T, opts ...Option) *AuthConfig {
	t.Helper()
	cfg, err := NewAuthConfig(testIssuer, p.server.URL, opts...)
	require.NoError(t, err)
	return cfg
}
