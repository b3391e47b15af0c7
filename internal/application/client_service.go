package application

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/password"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// clientSecretLength is the random byte length of generated client secrets
const clientSecretLength = 32

// ClientRegistration holds the mutable attributes of a client
type ClientRegistration struct {
	RedirectURIs []string `json:"redirect_uris"`
	GrantTypes   []string `json:"grant_types"`
	Scope        string   `json:"scope"`
	// Confidential clients receive a secret on registration
	Confidential bool `json:"confidential"`
}

// ClientService manages registered OAuth2 clients
type ClientService struct {
	clients domain.ClientStorage
	keys    domain.KeyGenerator
	now     func() time.Time
	logger  *zap.Logger
}

// NewClientService creates a new ClientService
func NewClientService(clients domain.ClientStorage, keys domain.KeyGenerator, logger *zap.Logger) *ClientService {
	return &ClientService{
		clients: clients,
		keys:    keys,
		now:     time.Now,
		logger:  logger,
	}
}

// Register creates a client. The plain secret of a confidential client is
// returned once and only its hash is stored.
func (s *ClientService) Register(ctx context.Context, reg ClientRegistration) (*domain.Client, string, error) {
	if err := validateRegistration(reg); err != nil {
		return nil, "", err
	}

	now := s.now()
	client := &domain.Client{
		ID:           ulid.Make().String(),
		RedirectURIs: reg.RedirectURIs,
		GrantTypes:   reg.GrantTypes,
		Scopes:       domain.ParseScope(reg.Scope),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var secret string
	if reg.Confidential {
		var err error
		secret, err = s.keys.Generate(clientSecretLength)
		if err != nil {
			s.logger.Error("Failed to generate client secret", zap.Error(err))
			return nil, "", storageError("generate client secret", err)
		}
		client.Secret, err = password.Hash(secret)
		if err != nil {
			s.logger.Error("Failed to hash client secret", zap.Error(err))
			return nil, "", storageError("hash client secret", err)
		}
	}

	if err := s.clients.SaveClient(ctx, client); err != nil {
		s.logger.Error("Failed to save client", zap.Error(err))
		return nil, "", storageError("save client", err)
	}

	s.logger.Info("Client registered",
		zap.String("client_id", client.ID),
		zap.Strings("grant_types", client.GrantTypes),
		zap.Bool("confidential", reg.Confidential))

	return client, secret, nil
}

// Get returns a client by ID
func (s *ClientService) Get(ctx context.Context, id string) (*domain.Client, error) {
	client, err := s.clients.FindClient(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return nil, domain.ErrClientNotFound
		}
		s.logger.Error("Failed to find client",
			zap.String("client_id", id),
			zap.Error(err))
		return nil, storageError("find client", err)
	}
	return client, nil
}

// List returns every registered client
func (s *ClientService) List(ctx context.Context) ([]*domain.Client, error) {
	clients, err := s.clients.ListClients(ctx)
	if err != nil {
		s.logger.Error("Failed to list clients", zap.Error(err))
		return nil, storageError("list clients", err)
	}
	return clients, nil
}

// Update replaces the redirect URIs, grant types and scope of a client.
// The secret and confidentiality of the client do not change.
func (s *ClientService) Update(ctx context.Context, id string, reg ClientRegistration) (*domain.Client, error) {
	client, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	reg.Confidential = client.IsConfidential()
	if err := validateRegistration(reg); err != nil {
		return nil, err
	}

	client.RedirectURIs = reg.RedirectURIs
	client.GrantTypes = reg.GrantTypes
	client.Scopes = domain.ParseScope(reg.Scope)
	client.UpdatedAt = s.now()

	if err := s.clients.SaveClient(ctx, client); err != nil {
		s.logger.Error("Failed to update client",
			zap.String("client_id", id),
			zap.Error(err))
		return nil, storageError("save client", err)
	}

	return client, nil
}

// Delete removes a client
func (s *ClientService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.clients.DeleteClient(ctx, id); err != nil {
		s.logger.Error("Failed to delete client",
			zap.String("client_id", id),
			zap.Error(err))
		return storageError("delete client", err)
	}

	s.logger.Info("Client deleted", zap.String("client_id", id))
	return nil
}

func validateRegistration(reg ClientRegistration) error {
	if len(reg.GrantTypes) == 0 {
		return domain.ErrInvalidRequest.WithDescription("At least one grant type is required")
	}

	needsRedirect := false
	for _, gt := range reg.GrantTypes {
		if !domain.IsKnownGrantType(gt) {
			return domain.ErrInvalidRequest.WithDescription("Unknown grant type: " + gt)
		}
		switch gt {
		case domain.GrantTypeAuthorizationCode, domain.GrantTypeImplicit:
			needsRedirect = true
		case domain.GrantTypeClientCredentials:
			if !reg.Confidential {
				return domain.ErrInvalidRequest.WithDescription("client_credentials requires a confidential client")
			}
		}
	}

	if needsRedirect && len(reg.RedirectURIs) == 0 {
		return domain.ErrInvalidRequest.WithDescription("At least one redirect URI is required")
	}
	for _, raw := range reg.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			return domain.ErrInvalidRequest.WithDescription("Invalid redirect URI: " + raw)
		}
	}

	return nil
}
