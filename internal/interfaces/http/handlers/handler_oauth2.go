package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"

	"github.com/manorfm/oauth2-provider/internal/application"
	"github.com/manorfm/oauth2-provider/internal/domain"
	httperrors "github.com/manorfm/oauth2-provider/internal/interfaces/http/errors"
	"go.uber.org/zap"
)

// OAuth2Handler serves the token, authorization and introspection endpoints
type OAuth2Handler struct {
	grants        *application.GrantContext
	authorization *application.AuthorizationService
	introspection *application.IntrospectionService
	logger        *zap.Logger
}

// NewOAuth2Handler creates a new OAuth2Handler
func NewOAuth2Handler(
	grants *application.GrantContext,
	authorization *application.AuthorizationService,
	introspection *application.IntrospectionService,
	logger *zap.Logger,
) *OAuth2Handler {
	return &OAuth2Handler{
		grants:        grants,
		authorization: authorization,
		introspection: introspection,
		logger:        logger,
	}
}

// TokenHandler handles POST /oauth2/token.
// Parameters come as a form or a JSON body. Client credentials may also be
// sent with HTTP basic authentication, which takes precedence.
func (h *OAuth2Handler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(r)
	if err != nil {
		h.logger.Debug("Failed to parse token request", zap.Error(err))
		httperrors.RespondWithError(w, domain.ErrInvalidRequest.WithDescription("Malformed token request"))
		return
	}

	h.logger.Debug("Received token request",
		zap.String("grant_type", req.GrantType),
		zap.String("client_id", req.ClientID))

	resp, err := h.grants.Handle(r.Context(), req)
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	httperrors.RespondWithJSON(w, http.StatusOK, resp)
}

// AuthorizeHandler handles GET /oauth2/authorize.
// The resource owner is taken from the session; without one the client is
// redirected with access_denied.
func (h *OAuth2Handler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID, _ := domain.GetSubject(r.Context())

	req := application.AuthorizeRequest{
		ResponseType: query.Get("response_type"),
		ClientID:     query.Get("client_id"),
		RedirectURI:  query.Get("redirect_uri"),
		Scope:        query.Get("scope"),
		State:        query.Get("state"),
		UserID:       userID,
	}

	h.logger.Debug("Received authorization request",
		zap.String("client_id", req.ClientID),
		zap.String("response_type", req.ResponseType),
		zap.String("redirect_uri", req.RedirectURI))

	result, err := h.authorization.Authorize(r.Context(), req)
	if err != nil {
		var redirectErr *application.RedirectError
		if errors.As(err, &redirectErr) {
			http.Redirect(w, r, redirectErr.Location(), http.StatusFound)
			return
		}
		httperrors.RespondWithError(w, err)
		return
	}

	http.Redirect(w, r, result.Location(), http.StatusFound)
}

// IntrospectHandler handles POST /oauth2/introspect
func (h *OAuth2Handler) IntrospectHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httperrors.RespondWithError(w, domain.ErrInvalidRequest.WithDescription("Malformed introspection request"))
		return
	}

	clientID, clientSecret := clientCredentials(r, r.PostForm.Get("client_id"), r.PostForm.Get("client_secret"))

	result, err := h.introspection.Introspect(r.Context(), application.IntrospectRequest{
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		Token:         r.PostForm.Get("token"),
		TokenTypeHint: r.PostForm.Get("token_type_hint"),
	})
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httperrors.RespondWithJSON(w, http.StatusOK, result)
}

func parseTokenRequest(r *http.Request) (*domain.GrantRequest, error) {
	var body TokenRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		form := r.PostForm
		body = TokenRequest{
			GrantType:    form.Get("grant_type"),
			ClientID:     form.Get("client_id"),
			ClientSecret: form.Get("client_secret"),
			Code:         form.Get("code"),
			RedirectURI:  form.Get("redirect_uri"),
			RefreshToken: form.Get("refresh_token"),
			Username:     form.Get("username"),
			Password:     form.Get("password"),
			Scope:        form.Get("scope"),
		}
	}

	clientID, clientSecret := clientCredentials(r, body.ClientID, body.ClientSecret)

	return &domain.GrantRequest{
		GrantType:    body.GrantType,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         body.Code,
		RedirectURI:  body.RedirectURI,
		RefreshToken: body.RefreshToken,
		Username:     body.Username,
		Password:     body.Password,
		Scope:        body.Scope,
	}, nil
}

// clientCredentials prefers HTTP basic authentication over body parameters.
// Basic credentials are form-urlencoded (RFC 6749 section 2.3.1).
func clientCredentials(r *http.Request, clientID, clientSecret string) (string, string) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return clientID, clientSecret
	}
	if decoded, err := url.QueryUnescape(user); err == nil {
		user = decoded
	}
	if decoded, err := url.QueryUnescape(pass); err == nil {
		pass = decoded
	}
	return user, pass
}
