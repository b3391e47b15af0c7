package application

import (
	"context"
	"sync"
	"time"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/keygen"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/password"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/storage/memory"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockClientStorage is a mock implementation of domain.ClientStorage
type MockClientStorage struct {
	mock.Mock
}

func (m *MockClientStorage) FindClient(ctx context.Context, id string) (*domain.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

func (m *MockClientStorage) SaveClient(ctx context.Context, client *domain.Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func (m *MockClientStorage) DeleteClient(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockClientStorage) ListClients(ctx context.Context) ([]*domain.Client, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Client), args.Error(1)
}

// MockTokenStorage is a mock implementation of domain.TokenStorage
type MockTokenStorage struct {
	mock.Mock
}

func (m *MockTokenStorage) Save(ctx context.Context, token *domain.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenStorage) Find(ctx context.Context, value string) (*domain.Token, error) {
	args := m.Called(ctx, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *MockTokenStorage) Delete(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockTokenStorage) Take(ctx context.Context, value string) (*domain.Token, error) {
	args := m.Called(ctx, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

// MockOwnerAuthenticator is a mock implementation of domain.ResourceOwnerAuthenticator
type MockOwnerAuthenticator struct {
	mock.Mock
}

func (m *MockOwnerAuthenticator) Authenticate(ctx context.Context, username, password string) (string, error) {
	args := m.Called(ctx, username, password)
	return args.String(0), args.Error(1)
}

// sequenceKeys returns the given values in order, then falls back to random keys
type sequenceKeys struct {
	mu     sync.Mutex
	values []string
	next   *keygen.Generator
}

func (k *sequenceKeys) Generate(n int) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.values) > 0 {
		v := k.values[0]
		k.values = k.values[1:]
		return v, nil
	}
	return k.next.Generate(n)
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	testClientID     = "c1"
	testClientSecret = "c1-secret"
	testRedirectURI  = "https://client.example.com/callback"
	publicClientID   = "spa"
)

var secretHash string

func init() {
	var err error
	secretHash, err = password.Hash(testClientSecret)
	if err != nil {
		panic(err)
	}
}

// fixture wires the token and grant contexts over memory storage
type fixture struct {
	clock   *clock
	clients *memory.ClientStore
	access  *memory.TokenStore
	refresh *memory.TokenStore
	codes   *memory.TokenStore
	owners  *MockOwnerAuthenticator
	tokens  *TokenContext
	grants  *GrantContext
}

func newFixture(rotate bool) *fixture {
	logger := zap.NewNop()
	f := &fixture{
		clock: newClock(),
		clients: memory.NewClientStore(
			&domain.Client{
				ID:           testClientID,
				Secret:       secretHash,
				RedirectURIs: []string{testRedirectURI},
				GrantTypes:   domain.GrantTypes,
				Scopes:       domain.NewScope("read", "write"),
			},
			&domain.Client{
				ID:           publicClientID,
				RedirectURIs: []string{testRedirectURI},
				GrantTypes: []string{
					domain.GrantTypeAuthorizationCode,
					domain.GrantTypeImplicit,
					domain.GrantTypeRefreshToken,
				},
				Scopes: domain.NewScope("read"),
			},
		),
		access:  memory.NewTokenStore(),
		refresh: memory.NewTokenStore(),
		codes:   memory.NewTokenStore(),
		owners:  &MockOwnerAuthenticator{},
	}

	keys := keygen.New()
	withClock := WithClock(f.clock.Now)
	tokens, err := NewTokenContext(
		NewTokenFacade(domain.AccessTokenKind, time.Hour, f.access, keys, logger, withClock),
		NewTokenFacade(domain.RefreshTokenKind, 10*time.Hour, f.refresh, keys, logger, withClock),
		NewTokenFacade(domain.AuthorizationCodeKind, 6*time.Minute, f.codes, keys, logger, withClock),
	)
	if err != nil {
		panic(err)
	}
	f.tokens = tokens

	grants, err := NewGrantContext(logger,
		NewAuthorizationCodeGrant(f.clients, tokens, logger),
		NewRefreshTokenGrant(f.clients, tokens, rotate, logger),
		NewPasswordGrant(f.clients, f.owners, tokens, logger),
		NewImplicitGrant(f.clients, tokens, logger),
		NewClientCredentialsGrant(f.clients, tokens, logger),
	)
	if err != nil {
		panic(err)
	}
	f.grants = grants

	return f
}

func (f *fixture) storedTokens() int {
	return f.access.Len() + f.refresh.Len() + f.codes.Len()
}
