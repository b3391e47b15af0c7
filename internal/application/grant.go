package application

import (
	"context"
	"errors"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/password"
	"go.uber.org/zap"
)

// clientAuthenticator checks the calling client against client storage
type clientAuthenticator struct {
	clients domain.ClientStorage
	logger  *zap.Logger
}

// identify loads a registered client without checking its secret.
// A non-empty grantType must be one of the client's allowed grant types.
func (a *clientAuthenticator) identify(ctx context.Context, clientID, grantType string) (*domain.Client, error) {
	if clientID == "" {
		return nil, domain.ErrInvalidRequest.WithDescription("Required parameter 'client_id' missing")
	}

	client, err := a.clients.FindClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			a.logger.Debug("Unknown client", zap.String("client_id", clientID))
			return nil, domain.ErrInvalidClient
		}
		a.logger.Error("Failed to find client",
			zap.String("client_id", clientID),
			zap.Error(err))
		return nil, storageError("find client", err)
	}

	if grantType != "" && !client.AllowsGrantType(grantType) {
		a.logger.Debug("Grant type not allowed for client",
			zap.String("client_id", clientID),
			zap.String("grant_type", grantType))
		return nil, domain.ErrUnauthorizedClient
	}

	return client, nil
}

// authenticate identifies the client and verifies its secret.
// Confidential clients always present their secret. Public clients are rejected
// when requireSecret is set.
func (a *clientAuthenticator) authenticate(ctx context.Context, clientID, clientSecret, grantType string, requireSecret bool) (*domain.Client, error) {
	client, err := a.identify(ctx, clientID, grantType)
	if err != nil {
		return nil, err
	}

	if !client.IsConfidential() {
		if requireSecret {
			a.logger.Debug("Public client cannot use grant",
				zap.String("client_id", clientID),
				zap.String("grant_type", grantType))
			return nil, domain.ErrInvalidClient
		}
		return client, nil
	}

	if clientSecret == "" {
		return nil, domain.ErrInvalidClient
	}
	if err := password.Check(clientSecret, client.Secret); err != nil {
		a.logger.Debug("Client secret mismatch", zap.String("client_id", clientID))
		return nil, domain.ErrInvalidClient
	}

	return client, nil
}

// resolveScope narrows the authorized scope to the requested one.
// An empty request yields the full authorized scope.
func resolveScope(requested string, authorized domain.Scope) (domain.Scope, error) {
	scope := domain.ParseScope(requested)
	if scope.IsEmpty() {
		return authorized, nil
	}
	if !scope.IsSubsetOf(authorized) {
		return nil, domain.ErrInvalidScope
	}
	return scope, nil
}

// refreshable reports whether the client may redeem a refresh token later on
func refreshable(client *domain.Client) bool {
	return client.AllowsGrantType(domain.GrantTypeRefreshToken)
}

// tokenIssuer builds token responses from the token context
type tokenIssuer struct {
	tokens *TokenContext
	logger *zap.Logger
}

// issue creates an access token and, if withRefresh is set, a refresh token.
// When the refresh token cannot be created the access token is removed again.
func (i *tokenIssuer) issue(ctx context.Context, clientID, userID string, scope domain.Scope, withRefresh bool) (*domain.TokenResponse, error) {
	accessTokens := i.tokens.AccessTokens()

	access, err := accessTokens.Issue(ctx, clientID, userID, scope)
	if err != nil {
		return nil, err
	}

	resp := &domain.TokenResponse{
		AccessToken: access.Value,
		TokenType:   domain.TokenTypeBearer,
		ExpiresIn:   accessTokens.ExpiresIn(access),
		Scope:       scope.String(),
	}

	if withRefresh {
		refresh, err := i.tokens.RefreshTokens().Issue(ctx, clientID, userID, scope)
		if err != nil {
			if rollbackErr := accessTokens.Invalidate(ctx, access.Value); rollbackErr != nil {
				i.logger.Error("Failed to roll back access token", zap.Error(rollbackErr))
			}
			return nil, err
		}
		resp.RefreshToken = refresh.Value
	}

	return resp, nil
}
