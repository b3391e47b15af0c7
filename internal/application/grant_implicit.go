package application

import (
	"context"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"go.uber.org/zap"
)

// ImplicitGrant issues an access token straight from the authorization endpoint.
// No refresh token is ever issued.
type ImplicitGrant struct {
	clients clientAuthenticator
	issuer  tokenIssuer
	logger  *zap.Logger
}

// NewImplicitGrant creates the implicit strategy
func NewImplicitGrant(clients domain.ClientStorage, tokens *TokenContext, logger *zap.Logger) *ImplicitGrant {
	return &ImplicitGrant{
		clients: clientAuthenticator{clients: clients, logger: logger},
		issuer:  tokenIssuer{tokens: tokens, logger: logger},
		logger:  logger,
	}
}

// GrantType implements GrantStrategy
func (g *ImplicitGrant) GrantType() string {
	return domain.GrantTypeImplicit
}

// Handle implements GrantStrategy
func (g *ImplicitGrant) Handle(ctx context.Context, req *domain.GrantRequest) (*domain.TokenResponse, error) {
	if req.RedirectURI == "" {
		return nil, domain.ErrInvalidRequest.WithDescription("Required parameter 'redirect_uri' missing")
	}

	client, err := g.clients.identify(ctx, req.ClientID, g.GrantType())
	if err != nil {
		return nil, err
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		g.logger.Debug("Redirect URI not registered",
			zap.String("client_id", client.ID),
			zap.String("redirect_uri", req.RedirectURI))
		return nil, domain.ErrInvalidGrant
	}

	if req.UserID == "" {
		return nil, domain.ErrAccessDenied
	}

	scope, err := resolveScope(req.Scope, client.Scopes)
	if err != nil {
		return nil, err
	}

	return g.issuer.issue(ctx, client.ID, req.UserID, scope, false)
}
