package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/manorfm/oauth2-provider/internal/application"

// defaultKeyLength is the random byte length of issued token values
const defaultKeyLength = 32

// TokenFacade issues and validates the tokens of one kind.
// Access tokens, refresh tokens and authorization codes all use this type,
// differing only in lifetime, storage and the single-use flag.
type TokenFacade struct {
	kind      domain.TokenKind
	lifetime  time.Duration
	singleUse bool
	storage   domain.TokenStorage
	keys      domain.KeyGenerator
	keyLength int
	now       func() time.Time
	issued    metric.Int64Counter
	logger    *zap.Logger
}

// FacadeOption configures a TokenFacade
type FacadeOption func(*TokenFacade)

// WithClock replaces time.Now
func WithClock(now func() time.Time) FacadeOption {
	return func(f *TokenFacade) {
		f.now = now
	}
}

// WithKeyLength sets the random byte length of token values
func WithKeyLength(n int) FacadeOption {
	return func(f *TokenFacade) {
		if n > 0 {
			f.keyLength = n
		}
	}
}

// WithSingleUse overrides the single-use flag derived from the kind
func WithSingleUse(singleUse bool) FacadeOption {
	return func(f *TokenFacade) {
		f.singleUse = singleUse
	}
}

// NewTokenFacade creates a facade for one token kind.
// Authorization codes are single-use unless overridden with WithSingleUse.
func NewTokenFacade(
	kind domain.TokenKind,
	lifetime time.Duration,
	storage domain.TokenStorage,
	keys domain.KeyGenerator,
	logger *zap.Logger,
	opts ...FacadeOption,
) *TokenFacade {
	f := &TokenFacade{
		kind:      kind,
		lifetime:  lifetime,
		singleUse: kind == domain.AuthorizationCodeKind,
		storage:   storage,
		keys:      keys,
		keyLength: defaultKeyLength,
		now:       time.Now,
		logger:    logger.With(zap.String("token_kind", string(kind))),
	}
	for _, opt := range opts {
		opt(f)
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"oauth2.tokens.issued",
		metric.WithDescription("Number of tokens issued"),
	)
	if err != nil {
		counter = noop.Int64Counter{}
	}
	f.issued = counter

	return f
}

// Kind returns the token kind handled by the facade
func (f *TokenFacade) Kind() domain.TokenKind {
	return f.kind
}

// Lifetime returns the configured token lifetime
func (f *TokenFacade) Lifetime() time.Duration {
	return f.lifetime
}

// SingleUse reports whether tokens are invalidated on first use
func (f *TokenFacade) SingleUse() bool {
	return f.singleUse
}

// Issue creates and persists a new token
func (f *TokenFacade) Issue(ctx context.Context, clientID, userID string, scope domain.Scope) (*domain.Token, error) {
	return f.issue(ctx, &domain.Token{
		ClientID: clientID,
		UserID:   userID,
		Scope:    scope,
	})
}

// IssueCode creates and persists a token bound to the redirect URI it was requested with
func (f *TokenFacade) IssueCode(ctx context.Context, clientID, userID, redirectURI string, scope domain.Scope) (*domain.Token, error) {
	return f.issue(ctx, &domain.Token{
		ClientID:    clientID,
		UserID:      userID,
		Scope:       scope,
		RedirectURI: redirectURI,
	})
}

func (f *TokenFacade) issue(ctx context.Context, token *domain.Token) (*domain.Token, error) {
	now := f.now()
	token.Kind = f.kind
	token.IssuedAt = now
	token.ExpiresAt = now.Add(f.lifetime)

	// A collision is retried once with a fresh value
	for attempt := 0; ; attempt++ {
		value, err := f.keys.Generate(f.keyLength)
		if err != nil {
			f.logger.Error("Failed to generate token value", zap.Error(err))
			return nil, storageError("generate token value", err)
		}
		token.Value = value

		err = f.storage.Save(ctx, token)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrDuplicateToken) && attempt == 0 {
			f.logger.Warn("Token value collision, retrying")
			continue
		}
		f.logger.Error("Failed to save token",
			zap.String("client_id", token.ClientID),
			zap.Error(err))
		return nil, storageError("save token", err)
	}

	f.issued.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(f.kind))))
	f.logger.Debug("Token issued",
		zap.String("client_id", token.ClientID),
		zap.String("user_id", token.UserID),
		zap.Time("expires_at", token.ExpiresAt))

	return token, nil
}

// Find looks a token up by value. Missing tokens yield domain.ErrTokenNotFound.
func (f *TokenFacade) Find(ctx context.Context, value string) (*domain.Token, error) {
	if value == "" {
		return nil, domain.ErrTokenNotFound
	}
	token, err := f.storage.Find(ctx, value)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		f.logger.Error("Failed to find token", zap.Error(err))
		return nil, storageError("find token", err)
	}
	return token, nil
}

// IsValid reports whether the token has not expired yet.
// Consumed single-use tokens are removed from storage, so they are never found again.
func (f *TokenFacade) IsValid(token *domain.Token) bool {
	if token == nil || token.Kind != f.kind {
		return false
	}
	return !token.IsExpired(f.now())
}

// ExpiresIn returns the seconds left before the token expires
func (f *TokenFacade) ExpiresIn(token *domain.Token) int64 {
	return token.ExpiresIn(f.now())
}

// Invalidate removes a token so it can no longer validate
func (f *TokenFacade) Invalidate(ctx context.Context, value string) error {
	if err := f.storage.Delete(ctx, value); err != nil && !errors.Is(err, domain.ErrTokenNotFound) {
		f.logger.Error("Failed to invalidate token", zap.Error(err))
		return storageError("delete token", err)
	}
	return nil
}

// Consume atomically looks a token up and invalidates it.
// Of two concurrent calls for the same value only one succeeds.
func (f *TokenFacade) Consume(ctx context.Context, value string) (*domain.Token, error) {
	token, err := f.storage.Take(ctx, value)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		f.logger.Error("Failed to consume token", zap.Error(err))
		return nil, storageError("take token", err)
	}
	return token, nil
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}
