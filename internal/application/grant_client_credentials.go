package application

import (
	"context"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"go.uber.org/zap"
)

// ClientCredentialsGrant issues an access token to a confidential client acting on its own behalf
type ClientCredentialsGrant struct {
	clients clientAuthenticator
	issuer  tokenIssuer
}

// NewClientCredentialsGrant creates the client_credentials strategy
func NewClientCredentialsGrant(clients domain.ClientStorage, tokens *TokenContext, logger *zap.Logger) *ClientCredentialsGrant {
	return &ClientCredentialsGrant{
		clients: clientAuthenticator{clients: clients, logger: logger},
		issuer:  tokenIssuer{tokens: tokens, logger: logger},
	}
}

// GrantType implements GrantStrategy
func (g *ClientCredentialsGrant) GrantType() string {
	return domain.GrantTypeClientCredentials
}

// Handle implements GrantStrategy
func (g *ClientCredentialsGrant) Handle(ctx context.Context, req *domain.GrantRequest) (*domain.TokenResponse, error) {
	client, err := g.clients.authenticate(ctx, req.ClientID, req.ClientSecret, g.GrantType(), true)
	if err != nil {
		return nil, err
	}

	scope, err := resolveScope(req.Scope, client.Scopes)
	if err != nil {
		return nil, err
	}

	return g.issuer.issue(ctx, client.ID, "", scope, false)
}
