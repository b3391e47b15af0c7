// Package sqlite stores tokens and clients in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var tables = map[domain.TokenKind]string{
	domain.AccessTokenKind:       "access_tokens",
	domain.RefreshTokenKind:      "refresh_tokens",
	domain.AuthorizationCodeKind: "authorization_codes",
}

// DB is an open SQLite database with the schema applied
type DB struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens the database at path, creating the schema if needed.
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string, logger *zap.Logger) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps an in-memory database alive
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{db: db, logger: logger}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Opened SQLite database", zap.String("path", path))
	return d, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// Health pings the database
func (d *DB) Health(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS oauth2_clients (
			id TEXT PRIMARY KEY,
			secret TEXT NOT NULL DEFAULT '',
			redirect_uris TEXT NOT NULL DEFAULT '[]',
			grant_types TEXT NOT NULL DEFAULT '[]',
			scopes TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, table := range tables {
		queries = append(queries, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			value TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			scopes TEXT NOT NULL DEFAULT '[]',
			redirect_uri TEXT NOT NULL DEFAULT '',
			issued_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`, table))
	}

	for _, query := range queries {
		if _, err := d.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// TokenStore implements domain.TokenStorage on one table per token kind
type TokenStore struct {
	db    *DB
	kind  domain.TokenKind
	table string
}

// NewTokenStore creates a TokenStore for the given kind
func NewTokenStore(db *DB, kind domain.TokenKind) (*TokenStore, error) {
	table, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("no table for token kind %q", kind)
	}
	return &TokenStore{db: db, kind: kind, table: table}, nil
}

// Save implements domain.TokenStorage
func (s *TokenStore) Save(ctx context.Context, token *domain.Token) error {
	scopes, err := json.Marshal(token.Scope)
	if err != nil {
		return err
	}

	_, err = s.db.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (value, client_id, user_id, scopes, redirect_uri, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.table), token.Value, token.ClientID, token.UserID, string(scopes), token.RedirectURI,
		token.IssuedAt.UnixNano(), token.ExpiresAt.UnixNano())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return domain.ErrDuplicateToken
		}
		return err
	}
	return nil
}

// Find implements domain.TokenStorage
func (s *TokenStore) Find(ctx context.Context, value string) (*domain.Token, error) {
	row := s.db.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT value, client_id, user_id, scopes, redirect_uri, issued_at, expires_at
		FROM %s WHERE value = ?
	`, s.table), value)
	return s.scan(row)
}

// Delete implements domain.TokenStorage
func (s *TokenStore) Delete(ctx context.Context, value string) error {
	_, err := s.db.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE value = ?`, s.table), value)
	return err
}

// Take implements domain.TokenStorage with DELETE ... RETURNING
func (s *TokenStore) Take(ctx context.Context, value string) (*domain.Token, error) {
	row := s.db.db.QueryRowContext(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE value = ?
		RETURNING value, client_id, user_id, scopes, redirect_uri, issued_at, expires_at
	`, s.table), value)
	return s.scan(row)
}

func (s *TokenStore) scan(row *sql.Row) (*domain.Token, error) {
	token := &domain.Token{Kind: s.kind}
	var scopes string
	var issuedAt, expiresAt int64

	err := row.Scan(&token.Value, &token.ClientID, &token.UserID, &scopes, &token.RedirectURI, &issuedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(scopes), &token.Scope); err != nil {
		return nil, err
	}
	token.IssuedAt = time.Unix(0, issuedAt).UTC()
	token.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return token, nil
}

// ClientStore implements domain.ClientStorage on the oauth2_clients table
type ClientStore struct {
	db *DB
}

// NewClientStore creates a new ClientStore
func NewClientStore(db *DB) *ClientStore {
	return &ClientStore{db: db}
}

// SaveClient implements domain.ClientStorage
func (s *ClientStore) SaveClient(ctx context.Context, client *domain.Client) error {
	redirectURIs, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return err
	}
	grantTypes, err := json.Marshal(client.GrantTypes)
	if err != nil {
		return err
	}
	scopes, err := json.Marshal(client.Scopes)
	if err != nil {
		return err
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO oauth2_clients (id, secret, redirect_uris, grant_types, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			secret = excluded.secret,
			redirect_uris = excluded.redirect_uris,
			grant_types = excluded.grant_types,
			scopes = excluded.scopes,
			updated_at = excluded.updated_at
	`, client.ID, client.Secret, string(redirectURIs), string(grantTypes), string(scopes),
		client.CreatedAt.UnixNano(), client.UpdatedAt.UnixNano())
	return err
}

// FindClient implements domain.ClientStorage
func (s *ClientStore) FindClient(ctx context.Context, id string) (*domain.Client, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, secret, redirect_uris, grant_types, scopes, created_at, updated_at
		FROM oauth2_clients WHERE id = ?
	`, id)

	client, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrClientNotFound
	}
	return client, err
}

// DeleteClient implements domain.ClientStorage
func (s *ClientStore) DeleteClient(ctx context.Context, id string) error {
	_, err := s.db.db.ExecContext(ctx, `DELETE FROM oauth2_clients WHERE id = ?`, id)
	return err
}

// ListClients implements domain.ClientStorage
func (s *ClientStore) ListClients(ctx context.Context) ([]*domain.Client, error) {
	rows, err := s.db.db.QueryContext(ctx, `
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

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*domain.Client, error) {
	client := &domain.Client{}
	var redirectURIs, grantTypes, scopes string
	var createdAt, updatedAt int64

	err := row.Scan(&client.ID, &client.Secret, &redirectURIs, &grantTypes, &scopes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(redirectURIs), &client.RedirectURIs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(grantTypes), &client.GrantTypes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(scopes), &client.Scopes); err != nil {
		return nil, err
	}
	client.CreatedAt = time.Unix(0, createdAt).UTC()
	client.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return client, nil
}
