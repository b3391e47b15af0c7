package application

import (
	"context"
	"errors"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"go.uber.org/zap"
)

// PasswordGrant exchanges resource owner credentials for an access and refresh token
type PasswordGrant struct {
	clients clientAuthenticator
	issuer  tokenIssuer
	owners  domain.ResourceOwnerAuthenticator
	logger  *zap.Logger
}

// NewPasswordGrant creates the password strategy
func NewPasswordGrant(clients domain.ClientStorage, owners domain.ResourceOwnerAuthenticator, tokens *TokenContext, logger *zap.Logger) *PasswordGrant {
	return &PasswordGrant{
		clients: clientAuthenticator{clients: clients, logger: logger},
		issuer:  tokenIssuer{tokens: tokens, logger: logger},
		owners:  owners,
		logger:  logger,
	}
}

// GrantType implements GrantStrategy
func (g *PasswordGrant) GrantType() string {
	return domain.GrantTypePassword
}

// Handle implements GrantStrategy
func (g *PasswordGrant) Handle(ctx context.Context, req *domain.GrantRequest) (*domain.TokenResponse, error) {
	if req.Username == "" {
		return nil, domain.ErrInvalidRequest.WithDescription("Required parameter 'username' missing")
	}
	if req.Password == "" {
		return nil, domain.ErrInvalidRequest.WithDescription("Required parameter 'password' missing")
	}

	client, err := g.clients.authenticate(ctx, req.ClientID, req.ClientSecret, g.GrantType(), false)
	if err != nil {
		return nil, err
	}

	scope, err := resolveScope(req.Scope, client.Scopes)
	if err != nil {
		return nil, err
	}

	userID, err := g.owners.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			return nil, err
		}
		g.logger.Debug("Resource owner authentication failed",
			zap.String("client_id", client.ID),
			zap.String("username", req.Username))
		return nil, domain.ErrInvalidGrant
	}

	return g.issuer.issue(ctx, client.ID, userID, scope, refreshable(client))
}
