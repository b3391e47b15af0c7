package handlers

import (
	"net/http"
	"time"

	"github.com/manorfm/oauth2-provider/internal/domain"
	httperrors "github.com/manorfm/oauth2-provider/internal/interfaces/http/errors"
	"github.com/manorfm/oauth2-provider/internal/interfaces/http/middleware/auth"
	"go.uber.org/zap"
)

// SessionCookie is the cookie holding the session token
const SessionCookie = "jwt"

// SessionIssuer signs session tokens
type SessionIssuer interface {
	Issue(subject string, roles []string) (string, time.Time, error)
}

// SessionHandler logs resource owners in and out
type SessionHandler struct {
	owners domain.ResourceOwnerAuthenticator
	issuer SessionIssuer
	admins map[string]bool
	logger *zap.Logger
}

// NewSessionHandler creates a SessionHandler. Users listed in admins receive the admin role.
func NewSessionHandler(owners domain.ResourceOwnerAuthenticator, issuer SessionIssuer, admins []string, logger *zap.Logger) *SessionHandler {
	h := &SessionHandler{
		owners: owners,
		issuer: issuer,
		admins: make(map[string]bool, len(admins)),
		logger: logger,
	}
	for _, a := range admins {
		h.admins[a] = true
	}
	return h
}

// LoginHandler handles POST /session
func (h *SessionHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID, err := h.owners.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Debug("Login failed", zap.String("username", req.Username))
		httperrors.RespondWithError(w, err)
		return
	}

	var roles []string
	if h.admins[userID] {
		roles = append(roles, auth.RoleAdmin)
	}

	token, expiresAt, err := h.issuer.Issue(userID, roles)
	if err != nil {
		h.logger.Error("Failed to sign session token", zap.Error(err))
		httperrors.RespondWithError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("Resource owner logged in", zap.String("user_id", userID))
	httperrors.RespondWithJSON(w, http.StatusOK, SessionResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	})
}

// LogoutHandler handles DELETE /session by expiring the cookie
func (h *SessionHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
