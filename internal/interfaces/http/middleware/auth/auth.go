package auth

import (
	"crypto/rsa"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/manorfm/oauth2-provider/internal/domain"
	httperrors "github.com/manorfm/oauth2-provider/internal/interfaces/http/errors"
	"go.uber.org/zap"
)

// RoleAdmin is granted to the resource owners allowed to manage clients
const RoleAdmin = "admin"

// AuthMiddleware verifies resource owner session tokens from the
// Authorization header or the jwt cookie
type AuthMiddleware struct {
	auth   *jwtauth.JWTAuth
	logger *zap.Logger
}

// NewAuthMiddleware verifies RS256 session tokens with publicKey
func NewAuthMiddleware(publicKey *rsa.PublicKey, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		auth:   jwtauth.New("RS256", nil, publicKey),
		logger: logger,
	}
}

// Identify puts the subject of a valid session into the request context.
// Requests without a valid session pass through anonymously.
func (m *AuthMiddleware) Identify(next http.Handler) http.Handler {
	return jwtauth.Verifier(m.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _, err := jwtauth.FromContext(r.Context())
		if err != nil {
			if token != nil {
				m.logger.Debug("Session rejected", zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}
		if token != nil && token.Subject() != "" {
			r = r.WithContext(domain.WithSubject(r.Context(), token.Subject()))
		}
		next.ServeHTTP(w, r)
	}))
}

// Authenticator rejects requests without a valid session.
// It must run after Identify.
func (m *AuthMiddleware) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := domain.GetSubject(r.Context()); !ok {
			httperrors.RespondWithJSON(w, http.StatusUnauthorized, httperrors.ErrorResponse{
				Error:       domain.ErrorCodeAccessDenied,
				Description: "Authentication required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects sessions that do not carry role.
// It must run after Authenticator.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := jwtauth.FromContext(r.Context())
			if err == nil && hasRole(claims["roles"], role) {
				next.ServeHTTP(w, r)
				return
			}

			subject, _ := domain.GetSubject(r.Context())
			m.logger.Debug("Missing role",
				zap.String("subject", subject),
				zap.String("role", role))
			httperrors.RespondWithJSON(w, http.StatusForbidden, httperrors.ErrorResponse{
				Error:       domain.ErrorCodeAccessDenied,
				Description: "Forbidden",
			})
		})
	}
}

// hasRole reads the roles claim, which decodes as a list of interfaces
func hasRole(claim interface{}, role string) bool {
	switch roles := claim.(type) {
	case []interface{}:
		for _, r := range roles {
			if s, ok := r.(string); ok && s == role {
				return true
			}
		}
	case []string:
		for _, r := range roles {
			if r == role {
				return true
			}
		}
	}
	return false
}
