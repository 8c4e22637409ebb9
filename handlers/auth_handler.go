package handlers

import (
	"net/http"

	"github.com/mbwilding/microkit/app"
	"github.com/mbwilding/microkit/middleware"
	"github.com/mbwilding/microkit/utils"
	"go.uber.org/zap"
)

// CurrentPrincipalHandler handles GET /v1/me and echoes the authenticated
// principal. It must run behind RequireAuth.
func CurrentPrincipalHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.PrincipalFromContext(r.Context())
		if principal == nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}
		_ = utils.WriteOK(w, principal)
	}
}

// RefreshKeysHandler handles POST /v1/auth/jwks/refresh. It forces a JWKS
// refresh, for example right after the provider rotates its keys.
func RefreshKeysHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetRequestIDFromContext(r.Context())

		if deps.Auth == nil {
			_ = utils.WriteError(w, http.StatusServiceUnavailable, "Authentication not configured", nil)
			return
		}

		if err := deps.Auth.RefreshKeys(r.Context()); err != nil {
			deps.Logger.Error("forced JWKS refresh failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteError(w, http.StatusBadGateway, "Failed to refresh signing keys", nil)
			return
		}

		stats := deps.Auth.Keys().Stats()
		deps.Logger.Info("forced JWKS refresh succeeded",
			zap.String("request_id", requestID),
			zap.Strings("kids", stats.KeyIDs))
		_ = utils.WriteOK(w, stats)
	}
}
