package domain

import (
	"context"
	"errors"
	"time"
)

// TokenKind identifies one family of issued credentials
type TokenKind string

const (
	// AccessTokenKind is the bearer credential presented to resource servers
	AccessTokenKind TokenKind = "access_token"
	// RefreshTokenKind is exchanged for new access tokens
	RefreshTokenKind TokenKind = "refresh_token"
	// AuthorizationCodeKind is the single-use code of the authorization code flow
	AuthorizationCodeKind TokenKind = "authorization_code"
)

// TokenKinds lists every kind in registration order
var TokenKinds = []TokenKind{AccessTokenKind, RefreshTokenKind, AuthorizationCodeKind}

var (
	// ErrTokenNotFound is returned by storage when no token has the given value
	ErrTokenNotFound = errors.New("token not found")

	// ErrDuplicateToken is returned by storage when the value is already taken
	ErrDuplicateToken = errors.New("duplicate token value")
)

// Token is an issued access token, refresh token or authorization code
type Token struct {
	Value    string    `json:"value"`
	Kind     TokenKind `json:"kind"`
	ClientID string    `json:"client_id"`
	// UserID is empty for tokens issued to a client acting on its own behalf
	UserID string `json:"user_id,omitempty"`
	Scope  Scope  `json:"scope"`
	// RedirectURI is only set on authorization codes
	RedirectURI string    `json:"redirect_uri,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the token is expired at the given instant
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ExpiresIn returns the whole seconds left before expiry, never negative
func (t *Token) ExpiresIn(now time.Time) int64 {
	remaining := t.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64((remaining + time.Second - 1) / time.Second)
}

// TokenStorage persists tokens of a single kind.
//
// Implementations must make Take atomic: of two concurrent Take calls for the
// same value at most one returns the token, the other gets ErrTokenNotFound.
type TokenStorage interface {
	// Save stores a new token, returning ErrDuplicateToken if the value exists
	Save(ctx context.Context, token *Token) error

	// Find returns the token with the given value or ErrTokenNotFound
	Find(ctx context.Context, value string) (*Token, error)

	// Delete removes the token. Deleting a missing token is not an error.
	Delete(ctx context.Context, value string) error

	// Take atomically returns and removes the token, or returns ErrTokenNotFound
	Take(ctx context.Context, value string) (*Token, error)
}

// KeyGenerator produces random opaque token values
type KeyGenerator interface {
	Generate(byteLength int) (string, error)
}
