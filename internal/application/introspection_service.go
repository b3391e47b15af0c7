package application

import (
	"context"
	"errors"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"go.uber.org/zap"
)

// Introspection describes a token to a resource server (RFC 7662)
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Subject   string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// IntrospectRequest carries the calling client credentials and the token to inspect
type IntrospectRequest struct {
	ClientID      string
	ClientSecret  string
	Token         string
	TokenTypeHint string
}

// IntrospectionService reports the state of access and refresh tokens
type IntrospectionService struct {
	clients clientAuthenticator
	tokens  *TokenContext
	logger  *zap.Logger
}

// NewIntrospectionService creates a new IntrospectionService
func NewIntrospectionService(clients domain.ClientStorage, tokens *TokenContext, logger *zap.Logger) *IntrospectionService {
	return &IntrospectionService{
		clients: clientAuthenticator{clients: clients, logger: logger},
		tokens:  tokens,
		logger:  logger,
	}
}

// Introspect authenticates the caller and looks the token up as an access token,
// then as a refresh token. The hint names the kind to try first.
// Only confidential clients may introspect. Unknown and expired tokens are inactive.
func (s *IntrospectionService) Introspect(ctx context.Context, req IntrospectRequest) (*Introspection, error) {
	if req.Token == "" {
		return nil, domain.ErrInvalidRequest.WithDescription("Required parameter 'token' missing")
	}
	if _, err := s.clients.authenticate(ctx, req.ClientID, req.ClientSecret, "", true); err != nil {
		return nil, err
	}

	kinds := []domain.TokenKind{domain.AccessTokenKind, domain.RefreshTokenKind}
	if req.TokenTypeHint == string(domain.RefreshTokenKind) {
		kinds[0], kinds[1] = kinds[1], kinds[0]
	}

	for _, kind := range kinds {
		facade, err := s.tokens.TokenOfKind(kind)
		if err != nil {
			continue
		}

		token, err := facade.Find(ctx, req.Token)
		if errors.Is(err, domain.ErrTokenNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !facade.IsValid(token) {
			break
		}

		return &Introspection{
			Active:    true,
			Scope:     token.Scope.String(),
			ClientID:  token.ClientID,
			Subject:   token.UserID,
			TokenType: domain.TokenTypeBearer,
			ExpiresAt: token.ExpiresAt.Unix(),
			IssuedAt:  token.IssuedAt.Unix(),
		}, nil
	}

	s.logger.Debug("Inactive token introspected")
	return &Introspection{Active: false}, nil
}
