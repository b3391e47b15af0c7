// Package postgres stores tokens and clients in PostgreSQL.
// The schema lives in the migrations directory.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/database"
	"go.uber.org/zap"
)

// uniqueViolation is the SQLSTATE of a unique constraint failure
const uniqueViolation = "23505"

var tables = map[domain.TokenKind]string{
	domain.AccessTokenKind:       "access_tokens",
	domain.RefreshTokenKind:      "refresh_tokens",
	domain.AuthorizationCodeKind: "authorization_codes",
}

// TokenStore implements domain.TokenStorage on one table per token kind
type TokenStore struct {
	db     *database.Postgres
	kind   domain.TokenKind
	table  string
	logger *zap.Logger
}

// NewTokenStore creates a TokenStore for the given kind
func NewTokenStore(db *database.Postgres, kind domain.TokenKind, logger *zap.Logger) (*TokenStore, error) {
	table, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("no table for token kind %q", kind)
	}
	return &TokenStore{
		db:     db,
		kind:   kind,
		table:  table,
		logger: logger,
	}, nil
}

// Save implements domain.TokenStorage
func (s *TokenStore) Save(ctx context.Context, token *domain.Token) error {
	scopes, err := json.Marshal(token.Scope)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (value, client_id, user_id, scopes, redirect_uri, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.table), token.Value, token.ClientID, token.UserID, scopes, token.RedirectURI, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateToken
		}
		return err
	}
	return nil
}

// Find implements domain.TokenStorage
func (s *TokenStore) Find(ctx context.Context, value string) (*domain.Token, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT value, client_id, user_id, scopes, redirect_uri, issued_at, expires_at
		FROM %s WHERE value = $1
	`, s.table), value)
	return s.scan(row)
}

// Delete implements domain.TokenStorage
func (s *TokenStore) Delete(ctx context.Context, value string) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE value = $1`, s.table), value)
	return err
}

// Take implements domain.TokenStorage. The row lock taken by DELETE makes a
// concurrent Take of the same value return no rows.
func (s *TokenStore) Take(ctx context.Context, value string) (*domain.Token, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE value = $1
		RETURNING value, client_id, user_id, scopes, redirect_uri, issued_at, expires_at
	`, s.table), value)
	return s.scan(row)
}

func (s *TokenStore) scan(row pgx.Row) (*domain.Token, error) {
	token := &domain.Token{Kind: s.kind}
	var scopes []byte

	err := row.Scan(&token.Value, &token.ClientID, &token.UserID, &scopes, &token.RedirectURI, &token.IssuedAt, &token.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(scopes, &token.Scope); err != nil {
		return nil, err
	}
	return token, nil
}

// ClientStore implements domain.ClientStorage on the oauth2_clients table
type ClientStore struct {
	db     *database.Postgres
	logger *zap.Logger
}

// NewClientStore creates a new ClientStore
func NewClientStore(db *database.Postgres, logger *zap.Logger) *ClientStore {
	return &ClientStore{
		db:     db,
		logger: logger,
	}
}

// SaveClient implements domain.ClientStorage
func (s *ClientStore) SaveClient(ctx context.Context, client *domain.Client) error {
	redirectURIs, err := json.Marshal(nonNil(client.RedirectURIs))
	if err != nil {
		return err
	}

	grantTypes, err := json.Marshal(nonNil(client.GrantTypes))
	if err != nil {
		return err
	}

	scopes, err := json.Marshal(nonNil(client.Scopes))
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO oauth2_clients (id, secret, redirect_uris, grant_types, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			secret = EXCLUDED.secret,
			redirect_uris = EXCLUDED.redirect_uris,
			grant_types = EXCLUDED.grant_types,
			scopes = EXCLUDED.scopes,
			updated_at = EXCLUDED.updated_at
	`, client.ID, client.Secret, redirectURIs, grantTypes, scopes, client.CreatedAt, client.UpdatedAt)
	return err
}

// FindClient implements domain.ClientStorage
func (s *ClientStore) FindClient(ctx context.Context, id string) (*domain.Client, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, secret, redirect_uris, grant_types, scopes, created_at, updated_at
		FROM oauth2_clients WHERE id = $1
	`, id)

	client, err := scanClient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrClientNotFound
	}
	return client, err
}

// DeleteClient implements domain.ClientStorage
func (s *ClientStore) DeleteClient(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM oauth2_clients WHERE id = $1`, id)
	return err
}

// ListClients implements domain.ClientStorage
func (s *ClientStore) ListClients(ctx context.Context) ([]*domain.Client, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, secret, redirect_uris, grant_types, scopes, created_at, updated_at
		FROM oauth2_clients ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []*domain.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}

	return clients, rows.Err()
}

func scanClient(row pgx.Row) (*domain.Client, error) {
	client := &domain.Client{}
	var redirectURIs, grantTypes, scopes []byte

	err := row.Scan(&client.ID, &client.Secret, &redirectURIs, &grantTypes, &scopes, &client.CreatedAt, &client.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(redirectURIs, &client.RedirectURIs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(grantTypes, &client.GrantTypes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scopes, &client.Scopes); err != nil {
		return nil, err
	}

	return client, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
