package application

import (
	"context"
	"net/url"
	"strconv"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"go.uber.org/zap"
)

// Response types accepted by the authorization endpoint
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// AuthorizeRequest holds the authorization endpoint parameters and the
// resource owner of the current session
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
	UserID       string
}

// AuthorizeResult is the outcome of a successful authorization request
type AuthorizeResult struct {
	RedirectURI string
	State       string
	// Code is set for response_type=code
	Code string
	// Token is set for response_type=token
	Token *domain.TokenResponse
}

// Location returns the URL the user agent is redirected to.
// Codes travel in the query string, implicit tokens in the fragment.
func (r *AuthorizeResult) Location() string {
	params := url.Values{}
	if r.State != "" {
		params.Set("state", r.State)
	}

	if r.Token == nil {
		params.Set("code", r.Code)
		return appendQuery(r.RedirectURI, params)
	}

	params.Set("access_token", r.Token.AccessToken)
	params.Set("token_type", r.Token.TokenType)
	params.Set("expires_in", strconv.FormatInt(r.Token.ExpiresIn, 10))
	if r.Token.Scope != "" {
		params.Set("scope", r.Token.Scope)
	}
	return r.RedirectURI + "#" + params.Encode()
}

// RedirectError is an authorization error reported back to a verified redirect URI
type RedirectError struct {
	Err      error
	location string
}

// Error implements the error interface
func (e *RedirectError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the OAuth2 error
func (e *RedirectError) Unwrap() error {
	return e.Err
}

// Location returns the redirect URI carrying error and error_description
func (e *RedirectError) Location() string {
	return e.location
}

func newRedirectError(req AuthorizeRequest, err error) *RedirectError {
	oauthErr := domain.AsError(err)
	params := url.Values{}
	params.Set("error", oauthErr.Code)
	if oauthErr.Description != "" {
		params.Set("error_description", oauthErr.Description)
	}
	if req.State != "" {
		params.Set("state", req.State)
	}

	location := req.RedirectURI + "#" + params.Encode()
	if req.ResponseType != ResponseTypeToken {
		location = appendQuery(req.RedirectURI, params)
	}
	return &RedirectError{Err: err, location: location}
}

func appendQuery(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := u.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// AuthorizationService implements the front half of the authorization code
// and implicit flows
type AuthorizationService struct {
	clients clientAuthenticator
	tokens  *TokenContext
	grants  *GrantContext
	logger  *zap.Logger
}

// NewAuthorizationService creates a new AuthorizationService
func NewAuthorizationService(clients domain.ClientStorage, tokens *TokenContext, grants *GrantContext, logger *zap.Logger) *AuthorizationService {
	return &AuthorizationService{
		clients: clientAuthenticator{clients: clients, logger: logger},
		tokens:  tokens,
		grants:  grants,
		logger:  logger,
	}
}

// Authorize validates the request and issues an authorization code or, for the
// implicit flow, an access token.
//
// Errors raised before the redirect URI is verified are returned as is. Later
// errors are wrapped in a *RedirectError.
func (s *AuthorizationService) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.RedirectURI == "" {
		return nil, domain.ErrInvalidRequest.WithDescription("Required parameter 'redirect_uri' missing")
	}

	client, err := s.clients.identify(ctx, req.ClientID, "")
	if err != nil {
		return nil, err
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		s.logger.Debug("Redirect URI not registered",
			zap.String("client_id", client.ID),
			zap.String("redirect_uri", req.RedirectURI))
		return nil, domain.ErrInvalidRequest.WithDescription("The redirect URI is not registered for this client")
	}

	switch req.ResponseType {
	case ResponseTypeCode:
		return s.authorizeCode(ctx, client, req)
	case ResponseTypeToken:
		return s.authorizeToken(ctx, req)
	default:
		return nil, newRedirectError(req, domain.ErrUnsupportedResponseType)
	}
}

func (s *AuthorizationService) authorizeCode(ctx context.Context, client *domain.Client, req AuthorizeRequest) (*AuthorizeResult, error) {
	if !client.AllowsGrantType(domain.GrantTypeAuthorizationCode) {
		return nil, newRedirectError(req, domain.ErrUnauthorizedClient)
	}
	if req.UserID == "" {
		return nil, newRedirectError(req, domain.ErrAccessDenied)
	}

	scope, err := resolveScope(req.Scope, client.Scopes)
	if err != nil {
		return nil, newRedirectError(req, err)
	}

	code, err := s.tokens.AuthorizationCodes().IssueCode(ctx, client.ID, req.UserID, req.RedirectURI, scope)
	if err != nil {
		return nil, newRedirectError(req, err)
	}

	s.logger.Debug("Authorization code issued",
		zap.String("client_id", client.ID),
		zap.String("user_id", req.UserID))

	return &AuthorizeResult{
		RedirectURI: req.RedirectURI,
		State:       req.State,
		Code:        code.Value,
	}, nil
}

func (s *AuthorizationService) authorizeToken(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	resp, err := s.grants.Handle(ctx, &domain.GrantRequest{
		GrantType:   domain.GrantTypeImplicit,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		Scope:       req.Scope,
		UserID:      req.UserID,
	})
	if err != nil {
		return nil, newRedirectError(req, err)
	}

	return &AuthorizeResult{
		RedirectURI: req.RedirectURI,
		State:       req.State,
		Token:       resp,
	}, nil
}
