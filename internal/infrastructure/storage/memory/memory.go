// Package memory keeps tokens and clients in process memory.
// Data does not survive a restart; it suits tests and single-instance development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/manorfm/oauth2-provider/internal/domain"
)

// TokenStore is an in-memory domain.TokenStorage
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]domain.Token
}

// NewTokenStore creates an empty TokenStore
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]domain.Token)}
}

// Save implements domain.TokenStorage
func (s *TokenStore) Save(_ context.Context, token *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.Value]; exists {
		return domain.ErrDuplicateToken
	}
	s.tokens[token.Value] = copyToken(token)
	return nil
}

// Find implements domain.TokenStorage
func (s *TokenStore) Find(_ context.Context, value string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[value]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	t := copyToken(&token)
	return &t, nil
}

// Delete implements domain.TokenStorage
func (s *TokenStore) Delete(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, value)
	return nil
}

// Take implements domain.TokenStorage
func (s *TokenStore) Take(_ context.Context, value string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[value]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	delete(s.tokens, value)
	return &token, nil
}

// Len returns the number of stored tokens
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func copyToken(token *domain.Token) domain.Token {
	t := *token
	t.Scope = append(domain.Scope(nil), token.Scope...)
	return t
}

// ClientStore is an in-memory domain.ClientStorage
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]domain.Client
}

// NewClientStore creates a ClientStore holding the given clients
func NewClientStore(clients ...*domain.Client) *ClientStore {
	s := &ClientStore{clients: make(map[string]domain.Client, len(clients))}
	for _, c := range clients {
		s.clients[c.ID] = copyClient(c)
	}
	return s
}

// FindClient implements domain.ClientStorage
func (s *ClientStore) FindClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	c := copyClient(&client)
	return &c, nil
}

// SaveClient implements domain.ClientStorage
func (s *ClientStore) SaveClient(_ context.Context, client *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[client.ID] = copyClient(client)
	return nil
}

// DeleteClient implements domain.ClientStorage
func (s *ClientStore) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, id)
	return nil
}

// ListClients implements domain.ClientStorage. Clients are ordered by ID.
func (s *ClientStore) ListClients(_ context.Context) ([]*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*domain.Client, 0, len(s.clients))
	for _, client := range s.clients {
		c := copyClient(&client)
		clients = append(clients, &c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ID < clients[j].ID
	})
	return clients, nil
}

func copyClient(client *domain.Client) domain.Client {
	c := *client
	c.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	c.GrantTypes = append([]string(nil), client.GrantTypes...)
	c.Scopes = append(domain.Scope(nil), client.Scopes...)
	return c
}
