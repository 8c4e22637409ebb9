package middleware

import (
	"context"
	"net/http"

	"github.com/mbwilding/microkit/auth"
	"github.com/mbwilding/microkit/utils"
	"go.uber.org/zap"
)

// unauthorizedMessage is returned for every authentication failure so the
// response never reveals which check failed.
const unauthorizedMessage = "Invalid or missing credentials"

// Authenticator turns request headers into an authenticated principal
type Authenticator interface {
	Authenticate(ctx context.Context, header http.Header) (*auth.Principal, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface
type AuthenticatorFunc func(ctx context.Context, header http.Header) (*auth.Principal, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, header http.Header) (*auth.Principal, error) {
	return f(ctx, header)
}

// Gate authenticates against the AuthConfig carried by the request context
var Gate Authenticator = AuthenticatorFunc(auth.Authenticate)

// OutcomeRecorder receives the outcome label of every authentication attempt
type OutcomeRecorder interface {
	ObserveAuthentication(outcome string)
}

type nopOutcomeRecorder struct{}

func (nopOutcomeRecorder) ObserveAuthentication(string) {}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	authenticator Authenticator
	recorder      OutcomeRecorder
	logger        *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. A nil recorder disables
// outcome metrics.
func NewAuthMiddleware(authenticator Authenticator, logger *zap.Logger, recorder OutcomeRecorder) *AuthMiddleware {
	if recorder == nil {
		recorder = nopOutcomeRecorder{}
	}
	return &AuthMiddleware{
		authenticator: authenticator,
		recorder:      recorder,
		logger:        logger,
	}
}

// InjectAuthConfig attaches cfg to every request context so the gate can
// find it. A nil cfg leaves requests untouched; protected routes then answer
// with a server error instead of silently allowing access.
func InjectAuthConfig(cfg *auth.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithConfig(r.Context(), cfg)))
		})
	}
}

// RequireAuth is a middleware that requires a valid bearer token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		principal, err := m.authenticator.Authenticate(ctx, r.Header)
		m.recorder.ObserveAuthentication(auth.Kind(err))
		if err != nil {
			if auth.IsServerFault(err) {
				m.logger.Error("authentication not configured",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path))
				_ = utils.WriteInternalServerError(w, "Authentication not configured")
				return
			}

			m.logger.Warn("authentication failed",
				zap.String("request_id", requestID),
				zap.String("reason", auth.Kind(err)),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, unauthorizedMessage)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", principal.Subject),
			zap.Strings("groups", principal.Groups))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
	})
}

// RequireRole is a middleware that requires membership of role.
// It must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return m.requireRoles("required_role", []string{role})
}

// RequireAnyRole requires membership of at least one of roles
func (m *AuthMiddleware) RequireAnyRole(roles ...string) func(http.Handler) http.Handler {
	return m.requireRoles("required_any_role", roles)
}

func (m *AuthMiddleware) requireRoles(field string, roles []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			principal := PrincipalFromContext(ctx)
			if principal == nil {
				m.logger.Error("principal not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !principal.HasAnyRole(roles...) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("sub", principal.Subject),
					zap.Strings(field, roles),
					zap.Strings("user_groups", principal.Groups))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
