package application

import (
	"context"
	"errors"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"go.uber.org/zap"
)

// AuthorizationCodeGrant exchanges an authorization code for an access and refresh token
type AuthorizationCodeGrant struct {
	clients clientAuthenticator
	issuer  tokenIssuer
	tokens  *TokenContext
	logger  *zap.Logger
}

// NewAuthorizationCodeGrant creates the authorization_code strategy
func NewAuthorizationCodeGrant(clients domain.ClientStorage, tokens *TokenContext, logger *zap.Logger) *AuthorizationCodeGrant {
	return &AuthorizationCodeGrant{
		clients: clientAuthenticator{clients: clients, logger: logger},
		issuer:  tokenIssuer{tokens: tokens, logger: logger},
		tokens:  tokens,
		logger:  logger,
	}
}

// GrantType implements GrantStrategy
func (g *AuthorizationCodeGrant) GrantType() string {
	return domain.GrantTypeAuthorizationCode
}

// Handle implements GrantStrategy
func (g *AuthorizationCodeGrant) Handle(ctx context.Context, req *domain.GrantRequest) (*domain.TokenResponse, error) {
	if req.Code == "" {
		return nil, domain.ErrInvalidRequest.WithDescription("Required parameter 'code' missing")
	}
	if req.RedirectURI == "" {
		return nil, domain.ErrInvalidRequest.WithDescription("Required parameter 'redirect_uri' missing")
	}

	client, err := g.clients.authenticate(ctx, req.ClientID, req.ClientSecret, g.GrantType(), false)
	if err != nil {
		return nil, err
	}

	codes := g.tokens.AuthorizationCodes()

	code, err := codes.Find(ctx, req.Code)
	if err != nil {
		return nil, invalidGrant(err)
	}

	// Expired, foreign and mismatched codes all look the same to the caller
	switch {
	case !codes.IsValid(code):
		g.logger.Debug("Authorization code expired", zap.String("client_id", client.ID))
		return nil, domain.ErrInvalidGrant
	case code.ClientID != client.ID:
		g.logger.Warn("Authorization code presented by another client", zap.String("client_id", client.ID))
		return nil, domain.ErrInvalidGrant
	case code.RedirectURI != req.RedirectURI:
		g.logger.Debug("Redirect URI mismatch", zap.String("client_id", client.ID))
		return nil, domain.ErrInvalidGrant
	}

	// Losing the race against a concurrent redemption means the code was already used
	if _, err := codes.Consume(ctx, code.Value); err != nil {
		return nil, invalidGrant(err)
	}

	return g.issuer.issue(ctx, client.ID, code.UserID, code.Scope, refreshable(client))
}

// invalidGrant maps a token lookup failure to the error returned to the client
func invalidGrant(err error) error {
	if errors.Is(err, domain.ErrTokenNotFound) {
		return domain.ErrInvalidGrant
	}
	return err
}
