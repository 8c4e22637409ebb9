package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mbwilding/microkit/auth"
	"github.com/mbwilding/microkit/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockAuthenticator is a mock implementation of Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, header http.Header) (*auth.Principal, error) {
	args := m.Called(ctx, header)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Principal), args.Error(1)
}

type MockOutcomeRecorder struct {
	mock.Mock
}

func (m *MockOutcomeRecorder) ObserveAuthentication(outcome string) {
	m.Called(outcome)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestRequireAuth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid token allows request", func(t *testing.T) {
		mockAuth := new(MockAuthenticator)
		recorder := new(MockOutcomeRecorder)
		m := NewAuthMiddleware(mockAuth, logger, recorder)

		principal := &auth.Principal{Subject: "user-123", Email: "user@example.com", Groups: []string{"users"}}
		mockAuth.On("Authenticate", mock.Anything, mock.Anything).Return(principal, nil)
		recorder.On("ObserveAuthentication", "ok").Once()

		handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := PrincipalFromContext(r.Context())
			require.NotNil(t, got)
			assert.Equal(t, "user-123", got.Subject)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockAuth.AssertExpectations(t)
		recorder.AssertExpectations(t)
	})

	failures := []struct {
		name    string
		err     error
		outcome string
	}{
		{"missing credential", fmt.Errorf("%w: absent", auth.ErrMissingCredential), "missing_credential"},
		{"malformed token", fmt.Errorf("%w: bad", auth.ErrMalformedToken), "malformed_token"},
		{"unknown key", fmt.Errorf("%w: kid", auth.ErrKeyNotFound), "key_not_found"},
		{"jwks unavailable", fmt.Errorf("%w: 503", auth.ErrKeySetFetchFailed), "key_set_fetch_failed"},
		{"expired", &auth.ClaimError{Claim: auth.ClaimExpiry, Reason: "expired"}, "claim_invalid_expiry"},
		{"bad signature", fmt.Errorf("%w: %w", auth.ErrTokenInvalid, auth.ErrSignatureInvalid), "signature_invalid"},
	}

	for _, tt := range failures {
		t.Run(tt.name+" is rejected with a uniform 401", func(t *testing.T) {
			mockAuth := new(MockAuthenticator)
			recorder := new(MockOutcomeRecorder)
			m := NewAuthMiddleware(mockAuth, logger, recorder)

			mockAuth.On("Authenticate", mock.Anything, mock.Anything).Return(nil, tt.err)
			recorder.On("ObserveAuthentication", tt.outcome).Once()

			handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
			response := decodeError(t, w)
			assert.Equal(t, "unauthorized", response.Error)
			assert.Equal(t, unauthorizedMessage, response.Message)
			recorder.AssertExpectations(t)
		})
	}

	t.Run("configuration missing is a server error", func(t *testing.T) {
		mockAuth := new(MockAuthenticator)
		m := NewAuthMiddleware(mockAuth, logger, nil)

		mockAuth.On("Authenticate", mock.Anything, mock.Anything).Return(nil, auth.ErrConfigurationMissing)

		handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be called")
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Empty(t, w.Header().Get("WWW-Authenticate"))
		response := decodeError(t, w)
		assert.Equal(t, "internal_error", response.Error)
		assert.Equal(t, "Authentication not configured", response.Message)
	})
}

func TestRequireRole(t *testing.T) {
	logger := zap.NewNop()
	m := NewAuthMiddleware(new(MockAuthenticator), logger, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name      string
		principal *auth.Principal
		handler   http.Handler
		want      int
	}{
		{
			name:      "member of role",
			principal: &auth.Principal{Subject: "u", Groups: []string{"admin"}},
			handler:   m.RequireRole("admin")(ok),
			want:      http.StatusOK,
		},
		{
			name:      "not a member",
			principal: &auth.Principal{Subject: "u", Groups: []string{"users"}},
			handler:   m.RequireRole("admin")(ok),
			want:      http.StatusForbidden,
		},
		{
			name:      "no groups",
			principal: &auth.Principal{Subject: "u", Groups: []string{}},
			handler:   m.RequireRole("admin")(ok),
			want:      http.StatusForbidden,
		},
		{
			name:    "no principal",
			handler: m.RequireRole("admin")(ok),
			want:    http.StatusUnauthorized,
		},
		{
			name:      "any role matches",
			principal: &auth.Principal{Subject: "u", Groups: []string{"support"}},
			handler:   m.RequireAnyRole("admin", "support")(ok),
			want:      http.StatusOK,
		},
		{
			name:      "any role without match",
			principal: &auth.Principal{Subject: "u", Groups: []string{"users"}},
			handler:   m.RequireAnyRole("admin", "support")(ok),
			want:      http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			}
			w := httptest.NewRecorder()

			tt.handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestInjectAuthConfig(t *testing.T) {
	cfg, err := auth.NewAuthConfig("https://idp.example.com", "https://idp.example.com/jwks")
	require.NoError(t, err)

	t.Run("attaches config", func(t *testing.T) {
		handler := InjectAuthConfig(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := auth.ConfigFromContext(r.Context())
			assert.True(t, ok)
			assert.Same(t, cfg, got)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})

	t.Run("nil config passes through", func(t *testing.T) {
		handler := InjectAuthConfig(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := auth.ConfigFromContext(r.Context())
			assert.False(t, ok)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestGate_EndToEnd(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: &key.PublicKey, KeyID: "kid-1", Algorithm: "RS256", Use: "sig"},
	}})
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	}))
	defer server.Close()

	issuer := "https://idp.example.com/pool"
	cfg, err := auth.NewAuthConfig(issuer, server.URL)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		CognitoGroups: []string{"admin"},
	})
	token.Header["kid"] = "kid-1"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	m := NewAuthMiddleware(Gate, zap.NewNop(), nil)
	protected := m.RequireAuth(m.RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, PrincipalFromContext(r.Context()))
	})))

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()

		InjectAuthConfig(cfg)(protected).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"sub":"user-123"`)
	})

	t.Run("no config attached", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()

		InjectAuthConfig(nil)(protected).ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()

		InjectAuthConfig(cfg)(protected).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
