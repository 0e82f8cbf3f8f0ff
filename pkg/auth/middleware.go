package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

const bearerRealm = `Bearer realm="ekaya-insights"`

// Middleware admits API requests whose token names a tenant user and puts
// that user's principal in the request context.
type Middleware struct {
	auth   AuthService
	logger *zap.Logger
}

// NewMiddleware creates a middleware validating tokens through auth.
func NewMiddleware(auth AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{auth: auth, logger: logger}
}

// RequireAuth rejects the request unless it carries a verified token with a
// tenant and a subject. Error codes follow RFC 6750: no token is a bare 401
// challenge, a malformed header is invalid_request (400), a token that fails
// verification is invalid_token (401). A verified token without a tenant user
// is 403.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _, err := m.auth.ValidateRequest(r)
		switch {
		case errors.Is(err, ErrMissingAuthorization):
			w.Header().Set("WWW-Authenticate", bearerRealm)
			deny(w, http.StatusUnauthorized, "missing_token", "authentication required")
			return
		case errors.Is(err, ErrInvalidAuthFormat):
			w.Header().Set("WWW-Authenticate", bearerRealm+`, error="invalid_request"`)
			deny(w, http.StatusBadRequest, "invalid_request", "authorization header must use the Bearer scheme")
			return
		case err != nil:
			w.Header().Set("WWW-Authenticate", bearerRealm+`, error="invalid_token"`)
			deny(w, http.StatusUnauthorized, "invalid_token", "token could not be verified")
			return
		}

		principal, err := claims.Principal()
		if err != nil {
			m.logger.Warn("Verified token does not name a tenant user",
				zap.String("issuer", claims.Issuer),
				zap.String("subject", claims.Subject),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			deny(w, http.StatusForbidden, "no_tenant_user", "token does not identify a tenant user")
			return
		}

		next(w, r.WithContext(WithPrincipal(r.Context(), claims, principal)))
	}
}

type denial struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func deny(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(denial{Error: code, Message: message})
}
