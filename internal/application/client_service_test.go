package application

import (
	"context"
	"errors"
	"testing"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/keygen"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/password"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClientService_Register(t *testing.T) {
	tests := []struct {
		name       string
		reg        ClientRegistration
		wantErr    error
		wantSecret bool
	}{
		{
			name: "confidential client",
			reg: ClientRegistration{
				RedirectURIs: []string{testRedirectURI},
				GrantTypes:   []string{domain.GrantTypeAuthorizationCode, domain.GrantTypeClientCredentials},
				Scope:        "read write",
				Confidential: true,
			},
			wantSecret: true,
		},
		{
			name: "public client",
			reg: ClientRegistration{
				RedirectURIs: []string{testRedirectURI},
				GrantTypes:   []string{domain.GrantTypeImplicit},
			},
		},
		{
			name:    "no grant types",
			reg:     ClientRegistration{Confidential: true},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "unknown grant type",
			reg:     ClientRegistration{GrantTypes: []string{"device_code"}},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "client credentials for a public client",
			reg:     ClientRegistration{GrantTypes: []string{domain.GrantTypeClientCredentials}},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "code flow without redirect",
			reg:     ClientRegistration{GrantTypes: []string{domain.GrantTypeAuthorizationCode}, Confidential: true},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name: "relative redirect",
			reg: ClientRegistration{
				RedirectURIs: []string{"/callback"},
				GrantTypes:   []string{domain.GrantTypeAuthorizationCode},
			},
			wantErr: domain.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewClientStore()
			svc := NewClientService(store, keygen.New(), zap.NewNop())

			client, secret, err := svc.Register(ctx, tt.reg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				clients, _ := store.ListClients(ctx)
				assert.Empty(t, clients)
				return
			}
			require.NoError(t, err)

			assert.NotEmpty(t, client.ID)
			assert.Equal(t, tt.wantSecret, secret != "")
			assert.Equal(t, tt.wantSecret, client.IsConfidential())
			if tt.wantSecret {
				assert.NotEqual(t, secret, client.Secret)
				assert.NoError(t, password.Check(secret, client.Secret))
			}

			stored, err := store.FindClient(ctx, client.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.ParseScope(tt.reg.Scope), stored.Scopes)
		})
	}
}

func TestClientService_UpdateKeepsSecret(t *testing.T) {
	ctx := context.Background()
	store := memory.NewClientStore()
	svc := NewClientService(store, keygen.New(), zap.NewNop())

	client, secret, err := svc.Register(ctx, ClientRegistration{
		GrantTypes:   []string{domain.GrantTypeClientCredentials},
		Scope:        "read",
		Confidential: true,
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, client.ID, ClientRegistration{
		GrantTypes: []string{domain.GrantTypeClientCredentials, domain.GrantTypePassword},
		Scope:      "read write",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.NewScope("read", "write"), updated.Scopes)
	assert.NoError(t, password.Check(secret, updated.Secret))

	_, err = svc.Update(ctx, "missing", ClientRegistration{GrantTypes: []string{domain.GrantTypePassword}})
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestClientService_Delete(t *testing.T) {
	ctx := context.Background()
	svc := NewClientService(memory.NewClientStore(&domain.Client{ID: testClientID}), keygen.New(), zap.NewNop())

	require.NoError(t, svc.Delete(ctx, testClientID))
	assert.ErrorIs(t, svc.Delete(ctx, testClientID), domain.ErrClientNotFound)

	clients, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestClientService_StorageFailure(t *testing.T) {
	ctx := context.Background()
	store := &MockClientStorage{}
	store.On("SaveClient", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	store.On("ListClients", mock.Anything).Return(nil, errors.New("connection refused"))

	svc := NewClientService(store, keygen.New(), zap.NewNop())

	_, _, err := svc.Register(ctx, ClientRegistration{GrantTypes: []string{domain.GrantTypePassword}})
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = svc.List(ctx)
	assert.ErrorIs(t, err, domain.ErrStorage)
	store.AssertExpectations(t)
}
