package application

import (
	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/config"
	"go.uber.org/zap"
)

// TokenStorages resolves the storage bound to each token kind
type TokenStorages interface {
	TokenStorage(kind domain.TokenKind) (domain.TokenStorage, error)
}

// Core is the assembled authorization server
type Core struct {
	Tokens        *TokenContext
	Grants        *GrantContext
	Authorization *AuthorizationService
	Introspection *IntrospectionService
	Clients       *ClientService
}

// NewCore builds one facade per token kind and registers the five grants
func NewCore(
	cfg config.OAuth2Config,
	clients domain.ClientStorage,
	storages TokenStorages,
	owners domain.ResourceOwnerAuthenticator,
	keys domain.KeyGenerator,
	logger *zap.Logger,
	opts ...FacadeOption,
) (*Core, error) {
	opts = append([]FacadeOption{WithKeyLength(cfg.TokenBytes)}, opts...)

	var facades []*TokenFacade
	for _, kind := range domain.TokenKinds {
		storage, err := storages.TokenStorage(kind)
		if err != nil {
			return nil, err
		}
		lifetime := cfg.AccessTokenLifetime
		switch kind {
		case domain.RefreshTokenKind:
			lifetime = cfg.RefreshTokenLifetime
		case domain.AuthorizationCodeKind:
			lifetime = cfg.AuthorizationCodeLifetime
		}
		facades = append(facades, NewTokenFacade(kind, lifetime, storage, keys, logger, opts...))
	}

	tokens, err := NewTokenContext(facades...)
	if err != nil {
		return nil, err
	}

	grants, err := NewGrantContext(logger,
		NewAuthorizationCodeGrant(clients, tokens, logger),
		NewRefreshTokenGrant(clients, tokens, cfg.RefreshTokenRotation, logger),
		NewPasswordGrant(clients, owners, tokens, logger),
		NewImplicitGrant(clients, tokens, logger),
		NewClientCredentialsGrant(clients, tokens, logger),
	)
	if err != nil {
		return nil, err
	}

	return &Core{
		Tokens:        tokens,
		Grants:        grants,
		Authorization: NewAuthorizationService(clients, tokens, grants, logger),
		Introspection: NewIntrospectionService(clients, tokens, logger),
		Clients:       NewClientService(clients, keys, logger),
	}, nil
}
