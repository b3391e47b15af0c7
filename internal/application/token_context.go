package application

import (
	"errors"
	"fmt"

	"github.com/manorfm/oauth2-provider/internal/domain"
)

var (
	// ErrDuplicateTokenKind is returned when two facades handle the same kind
	ErrDuplicateTokenKind = errors.New("token kind registered twice")

	// ErrUnknownTokenKind is returned when no facade handles a kind
	ErrUnknownTokenKind = errors.New("token kind not registered")
)

// TokenContext routes token operations to the facade of each kind.
// It is built once at startup and read-only afterwards.
type TokenContext struct {
	facades map[domain.TokenKind]*TokenFacade
	kinds   []domain.TokenKind
}

// NewTokenContext registers the facades in order, rejecting duplicate kinds
func NewTokenContext(facades ...*TokenFacade) (*TokenContext, error) {
	tc := &TokenContext{
		facades: make(map[domain.TokenKind]*TokenFacade, len(facades)),
	}
	for _, f := range facades {
		if _, exists := tc.facades[f.Kind()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTokenKind, f.Kind())
		}
		tc.facades[f.Kind()] = f
		tc.kinds = append(tc.kinds, f.Kind())
	}
	return tc, nil
}

// TokenOfKind returns the facade registered for kind
func (tc *TokenContext) TokenOfKind(kind domain.TokenKind) (*TokenFacade, error) {
	f, ok := tc.facades[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTokenKind, kind)
	}
	return f, nil
}

// Kinds returns the registered kinds in registration order
func (tc *TokenContext) Kinds() []domain.TokenKind {
	kinds := make([]domain.TokenKind, len(tc.kinds))
	copy(kinds, tc.kinds)
	return kinds
}

// Require checks that every kind is registered
func (tc *TokenContext) Require(kinds ...domain.TokenKind) error {
	for _, kind := range kinds {
		if _, err := tc.TokenOfKind(kind); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TokenContext) mustKind(kind domain.TokenKind) *TokenFacade {
	f, err := tc.TokenOfKind(kind)
	if err != nil {
		panic(err)
	}
	return f
}

// AccessTokens returns the access token facade
func (tc *TokenContext) AccessTokens() *TokenFacade {
	return tc.mustKind(domain.AccessTokenKind)
}

// RefreshTokens returns the refresh token facade
func (tc *TokenContext) RefreshTokens() *TokenFacade {
	return tc.mustKind(domain.RefreshTokenKind)
}

// AuthorizationCodes returns the authorization code facade
func (tc *TokenContext) AuthorizationCodes() *TokenFacade {
	return tc.mustKind(domain.AuthorizationCodeKind)
}
