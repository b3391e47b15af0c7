// Package storagetest holds the behaviour every storage family must share.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TokenStoreFactory returns an empty store for the given kind
type TokenStoreFactory func(t *testing.T, kind domain.TokenKind) domain.TokenStorage

// ClientStoreFactory returns an empty client store
type ClientStoreFactory func(t *testing.T) domain.ClientStorage

// NewToken returns a token of the given kind valid for an hour
func NewToken(kind domain.TokenKind, value string) *domain.Token {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Token{
		Value:     value,
		Kind:      kind,
		ClientID:  "c1",
		UserID:    "u1",
		Scope:     domain.NewScope("read", "write"),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

// RunTokenStorage checks the domain.TokenStorage contract
func RunTokenStorage(t *testing.T, newStore TokenStoreFactory) {
	t.Run("save and find", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t, domain.AuthorizationCodeKind)

		token := NewToken(domain.AuthorizationCodeKind, "value-1")
		token.RedirectURI = "https://client.example.com/callback"
		require.NoError(t, store.Save(ctx, token))

		found, err := store.Find(ctx, "value-1")
		require.NoError(t, err)
		assert.Equal(t, token.Value, found.Value)
		assert.Equal(t, token.Kind, found.Kind)
		assert.Equal(t, token.ClientID, found.ClientID)
		assert.Equal(t, token.UserID, found.UserID)
		assert.Equal(t, token.Scope, found.Scope)
		assert.Equal(t, token.RedirectURI, found.RedirectURI)
		assert.True(t, token.IssuedAt.Equal(found.IssuedAt))
		assert.True(t, token.ExpiresAt.Equal(found.ExpiresAt))
	})

	t.Run("empty user and scope", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t, domain.AccessTokenKind)

		token := NewToken(domain.AccessTokenKind, "value-2")
		token.UserID = ""
		token.Scope = nil
		require.NoError(t, store.Save(ctx, token))

		found, err := store.Find(ctx, "value-2")
		require.NoError(t, err)
		assert.Empty(t, found.UserID)
		assert.True(t, found.Scope.IsEmpty())
	})

	t.Run("duplicate value", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t, domain.AccessTokenKind)

		require.NoError(t, store.Save(ctx, NewToken(domain.AccessTokenKind, "dup")))
		assert.ErrorIs(t, store.Save(ctx, NewToken(domain.AccessTokenKind, "dup")), domain.ErrDuplicateToken)
	})

	t.Run("missing value", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t, domain.RefreshTokenKind)

		_, err := store.Find(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
		_, err = store.Take(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
		assert.NoError(t, store.Delete(ctx, "missing"))
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t, domain.RefreshTokenKind)

		require.NoError(t, store.Save(ctx, NewToken(domain.RefreshTokenKind, "gone")))
		require.NoError(t, store.Delete(ctx, "gone"))

		_, err := store.Find(ctx, "gone")
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})

	t.Run("take is exclusive", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t, domain.AuthorizationCodeKind)
		require.NoError(t, store.Save(ctx, NewToken(domain.AuthorizationCodeKind, "once")))

		var wins, misses int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				token, err := store.Take(ctx, "once")
				switch {
				case err == nil && token.Value == "once":
					atomic.AddInt32(&wins, 1)
				case assert.ErrorIs(t, err, domain.ErrTokenNotFound):
					atomic.AddInt32(&misses, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins)
		assert.Equal(t, int32(7), misses)

		_, err := store.Find(ctx, "once")
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})
}

// RunClientStorage checks the domain.ClientStorage contract
func RunClientStorage(t *testing.T, newStore ClientStoreFactory) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	client := &domain.Client{
		ID:           "client-b",
		Secret:       "$2a$10$hash",
		RedirectURIs: []string{"https://client.example.com/callback"},
		GrantTypes:   []string{domain.GrantTypeAuthorizationCode, domain.GrantTypeRefreshToken},
		Scopes:       domain.NewScope("read"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.SaveClient(ctx, client))
	require.NoError(t, store.SaveClient(ctx, &domain.Client{
		ID:         "client-a",
		GrantTypes: []string{domain.GrantTypeImplicit},
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	found, err := store.FindClient(ctx, "client-b")
	require.NoError(t, err)
	assert.Equal(t, client.Secret, found.Secret)
	assert.Equal(t, client.RedirectURIs, found.RedirectURIs)
	assert.Equal(t, client.GrantTypes, found.GrantTypes)
	assert.Equal(t, client.Scopes, found.Scopes)
	assert.True(t, client.CreatedAt.Equal(found.CreatedAt))

	client.Scopes = domain.NewScope("read", "write")
	client.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.SaveClient(ctx, client))

	found, err = store.FindClient(ctx, "client-b")
	require.NoError(t, err)
	assert.Equal(t, domain.NewScope("read", "write"), found.Scopes)

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "client-a", clients[0].ID)
	assert.Equal(t, "client-b", clients[1].ID)

	require.NoError(t, store.DeleteClient(ctx, "client-b"))
	_, err = store.FindClient(ctx, "client-b")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}
