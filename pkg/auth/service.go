package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrMissingTenant        = errors.New("missing tenant in token")
	ErrNoValidator          = errors.New("no validator accepted the token")
)

// CookieName is the cookie browser clients carry their token in.
const CookieName = "ekaya_jwt"

// AuthService extracts and validates the caller's token.
type AuthService interface {
	// ValidateRequest extracts and validates a JWT from the request.
	// It checks for the token in:
	//   1. Cookie named "ekaya_jwt" (browser clients)
	//   2. Authorization header with "Bearer" scheme (API clients)
	// Returns the validated claims, the raw token string, or an error.
	ValidateRequest(r *http.Request) (*Claims, string, error)
}

type authService struct {
	validators []TokenValidator
	logger     *zap.Logger
}

// NewAuthService creates an AuthService. Validators are tried in order and
// the first to accept the token wins.
func NewAuthService(logger *zap.Logger, validators ...TokenValidator) AuthService {
	return &authService{
		validators: validators,
		logger:     logger,
	}
}

// ValidateRequest extracts and validates a JWT from the request.
func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	var tokenString string
	var tokenSource string

	if cookie, err := r.Cookie(CookieName); err == nil {
		tokenString = cookie.Value
		tokenSource = "cookie"
	} else {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.logger.Debug("No JWT found in request",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method))
			return nil, "", ErrMissingAuthorization
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.logger.Debug("Invalid Authorization header format",
				zap.String("path", r.URL.Path))
			return nil, "", ErrInvalidAuthFormat
		}
		tokenString = parts[1]
		tokenSource = "header"
	}

	var errs []error
	for _, v := range s.validators {
		claims, err := v.ValidateToken(tokenString)
		if err == nil {
			return claims, tokenString, nil
		}
		errs = append(errs, err)
	}

	err := errors.Join(append([]error{ErrNoValidator}, errs...)...)
	s.logger.Debug("JWT validation failed",
		zap.Error(err),
		zap.String("path", r.URL.Path),
		zap.String("token_source", tokenSource))
	return nil, "", err
}

var _ AuthService = (*authService)(nil)
