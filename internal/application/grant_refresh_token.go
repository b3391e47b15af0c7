package application

import (
	"context"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"go.uber.org/zap"
)

// RefreshTokenGrant exchanges a refresh token for a new access token
type RefreshTokenGrant struct {
	clients clientAuthenticator
	issuer  tokenIssuer
	tokens  *TokenContext
	rotate  bool
	logger  *zap.Logger
}

// NewRefreshTokenGrant creates the refresh_token strategy.
// With rotate set the presented refresh token is invalidated and a new one issued.
func NewRefreshTokenGrant(clients domain.ClientStorage, tokens *TokenContext, rotate bool, logger *zap.Logger) *RefreshTokenGrant {
	return &RefreshTokenGrant{
		clients: clientAuthenticator{clients: clients, logger: logger},
		issuer:  tokenIssuer{tokens: tokens, logger: logger},
		tokens:  tokens,
		rotate:  rotate,
		logger:  logger,
	}
}

// GrantType implements GrantStrategy
func (g *RefreshTokenGrant) GrantType() string {
	return domain.GrantTypeRefreshToken
}

// Handle implements GrantStrategy
func (g *RefreshTokenGrant) Handle(ctx context.Context, req *domain.GrantRequest) (*domain.TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, domain.ErrInvalidRequest.WithDescription("Required parameter 'refresh_token' missing")
	}

	client, err := g.clients.authenticate(ctx, req.ClientID, req.ClientSecret, g.GrantType(), false)
	if err != nil {
		return nil, err
	}

	refreshTokens := g.tokens.RefreshTokens()

	refresh, err := refreshTokens.Find(ctx, req.RefreshToken)
	if err != nil {
		return nil, invalidGrant(err)
	}
	if !refreshTokens.IsValid(refresh) || refresh.ClientID != client.ID {
		g.logger.Debug("Refresh token rejected", zap.String("client_id", client.ID))
		return nil, domain.ErrInvalidGrant
	}

	scope, err := resolveScope(req.Scope, refresh.Scope)
	if err != nil {
		return nil, err
	}

	if !g.rotate {
		resp, err := g.issuer.issue(ctx, client.ID, refresh.UserID, scope, false)
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = refresh.Value
		return resp, nil
	}

	// The new pair is stored before the old token is consumed, so a storage
	// failure leaves the presented refresh token usable. The new refresh token
	// keeps the original grant so a narrower request does not shrink later refreshes.
	access, err := g.issuer.issue(ctx, client.ID, refresh.UserID, scope, false)
	if err != nil {
		return nil, err
	}
	rotated, err := refreshTokens.Issue(ctx, client.ID, refresh.UserID, refresh.Scope)
	if err != nil {
		g.rollback(ctx, g.tokens.AccessTokens(), access.AccessToken)
		return nil, err
	}

	// Losing the race against a concurrent refresh discards the new pair
	if _, err := refreshTokens.Consume(ctx, refresh.Value); err != nil {
		g.rollback(ctx, g.tokens.AccessTokens(), access.AccessToken)
		g.rollback(ctx, refreshTokens, rotated.Value)
		return nil, invalidGrant(err)
	}
	access.RefreshToken = rotated.Value

	return access, nil
}

func (g *RefreshTokenGrant) rollback(ctx context.Context, facade *TokenFacade, value string) {
	if err := facade.Invalidate(ctx, value); err != nil {
		g.logger.Error("Failed to roll back token",
			zap.String("token_kind", string(facade.Kind())),
			zap.Error(err))
	}
}
