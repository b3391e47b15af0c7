// Package redis stores tokens and clients in Redis.
// Token keys expire shortly after the token itself.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/config"
	"go.uber.org/zap"
)

const (
	keyPrefix = "oauth2:"
	clientSet = keyPrefix + "clients"

	// expiryGrace keeps a token key around after expiry so lookups still see
	// an expired token rather than a missing one
	expiryGrace = time.Minute
)

// Client wraps the Redis connection shared by the stores
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient connects to Redis and checks the connection
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Address == "" {
		cfg.Address = "localhost:6379"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("address", cfg.Address), zap.Int("db", cfg.DB))

	return &Client{
		rdb:    rdb,
		logger: logger,
	}, nil
}

// Close closes the connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// TokenStore implements domain.TokenStorage with one key per token
type TokenStore struct {
	client *Client
	prefix string
	now    func() time.Time
}

// NewTokenStore creates a TokenStore for the given kind
func NewTokenStore(client *Client, kind domain.TokenKind) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: keyPrefix + string(kind) + ":",
		now:    time.Now,
	}
}

func (s *TokenStore) key(value string) string {
	return s.prefix + value
}

// Save implements domain.TokenStorage
func (s *TokenStore) Save(ctx context.Context, token *domain.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	ttl := token.ExpiresAt.Sub(s.now()) + expiryGrace
	if ttl < expiryGrace {
		ttl = expiryGrace
	}

	ok, err := s.client.rdb.SetNX(ctx, s.key(token.Value), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if !ok {
		return domain.ErrDuplicateToken
	}
	return nil
}

// Find implements domain.TokenStorage
func (s *TokenStore) Find(ctx context.Context, value string) (*domain.Token, error) {
	data, err := s.client.rdb.Get(ctx, s.key(value)).Bytes()
	return decodeToken(data, err)
}

// Delete implements domain.TokenStorage
func (s *TokenStore) Delete(ctx context.Context, value string) error {
	if err := s.client.rdb.Del(ctx, s.key(value)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Take implements domain.TokenStorage using GETDEL
func (s *TokenStore) Take(ctx context.Context, value string) (*domain.Token, error) {
	data, err := s.client.rdb.GetDel(ctx, s.key(value)).Bytes()
	return decodeToken(data, err)
}

func decodeToken(data []byte, err error) (*domain.Token, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token domain.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// clientRecord is the stored form of a client, secret hash included
type clientRecord struct {
	ID           string       `json:"id"`
	Secret       string       `json:"secret"`
	RedirectURIs []string     `json:"redirect_uris"`
	GrantTypes   []string     `json:"grant_types"`
	Scopes       domain.Scope `json:"scopes"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ClientStore implements domain.ClientStorage with one key per client and a
// set of client IDs
type ClientStore struct {
	client *Client
}

// NewClientStore creates a new ClientStore
func NewClientStore(client *Client) *ClientStore {
	return &ClientStore{client: client}
}

func clientKey(id string) string {
	return keyPrefix + "client:" + id
}

// SaveClient implements domain.ClientStorage
func (s *ClientStore) SaveClient(ctx context.Context, client *domain.Client) error {
	data, err := json.Marshal(clientRecord(*client))
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	pipe := s.client.rdb.TxPipeline()
	pipe.Set(ctx, clientKey(client.ID), data, 0)
	pipe.SAdd(ctx, clientSet, client.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// FindClient implements domain.ClientStorage
func (s *ClientStore) FindClient(ctx context.Context, id string) (*domain.Client, error) {
	data, err := s.client.rdb.Get(ctx, clientKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return decodeClient(data)
}

// DeleteClient implements domain.ClientStorage
func (s *ClientStore) DeleteClient(ctx context.Context, id string) error {
	pipe := s.client.rdb.TxPipeline()
	pipe.Del(ctx, clientKey(id))
	pipe.SRem(ctx, clientSet, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

// ListClients implements domain.ClientStorage. Clients are ordered by ID.
func (s *ClientStore) ListClients(ctx context.Context) ([]*domain.Client, error) {
	ids, err := s.client.rdb.SMembers(ctx, clientSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = clientKey(id)
	}

	values, err := s.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get clients: %w", err)
	}

	clients := make([]*domain.Client, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		client, err := decodeClient([]byte(data))
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func decodeClient(data []byte) (*domain.Client, error) {
	var record clientRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	client := domain.Client(record)
	return &client, nil
}
