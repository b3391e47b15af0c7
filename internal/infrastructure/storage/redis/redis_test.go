package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/config"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(context.Background(), config.RedisConfig{Address: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewClient(context.Background(), config.RedisConfig{Address: addr}, zap.NewNop())
	assert.Error(t, err)
}

func TestClient_Health(t *testing.T) {
	client, _ := setupTestRedis(t)
	assert.NoError(t, client.Health(context.Background()))
}

func TestTokenStore_Contract(t *testing.T) {
	storagetest.RunTokenStorage(t, func(t *testing.T, kind domain.TokenKind) domain.TokenStorage {
		client, _ := setupTestRedis(t)
		return NewTokenStore(client, kind)
	})
}

func TestClientStore_Contract(t *testing.T) {
	storagetest.RunClientStorage(t, func(t *testing.T) domain.ClientStorage {
		client, _ := setupTestRedis(t)
		return NewClientStore(client)
	})
}

func TestTokenStore_KeysExpireAfterToken(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	store := NewTokenStore(client, domain.AccessTokenKind)

	token := storagetest.NewToken(domain.AccessTokenKind, "ttl")
	token.ExpiresAt = time.Now().Add(10 * time.Minute)
	require.NoError(t, store.Save(ctx, token))

	key := "oauth2:access_token:ttl"
	require.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.Greater(t, ttl, 10*time.Minute)
	assert.LessOrEqual(t, ttl, 11*time.Minute)

	mr.FastForward(12 * time.Minute)
	_, err := store.Find(ctx, "ttl")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestTokenStore_KindsDoNotShareKeys(t *testing.T) {
	ctx := context.Background()
	client, _ := setupTestRedis(t)
	access := NewTokenStore(client, domain.AccessTokenKind)
	refresh := NewTokenStore(client, domain.RefreshTokenKind)

	require.NoError(t, access.Save(ctx, storagetest.NewToken(domain.AccessTokenKind, "same")))
	require.NoError(t, refresh.Save(ctx, storagetest.NewToken(domain.RefreshTokenKind, "same")))

	found, err := refresh.Find(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, domain.RefreshTokenKind, found.Kind)
}

func TestClientStore_KeepsSecretHash(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	store := NewClientStore(client)

	require.NoError(t, store.SaveClient(ctx, &domain.Client{ID: "c1", Secret: "$2a$10$hash"}))

	raw, err := mr.Get("oauth2:client:c1")
	require.NoError(t, err)
	assert.Contains(t, raw, "$2a$10$hash")

	found, err := store.FindClient(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, found.IsConfidential())
}
