package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/config"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/database"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/storage/memory"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/storage/postgres"
	redisstore "github.com/manorfm/oauth2-provider/internal/infrastructure/storage/redis"
	sqlitestore "github.com/manorfm/oauth2-provider/internal/infrastructure/storage/sqlite"
	"go.uber.org/zap"
)

// DefaultSQLitePath is used when the sqlite family is selected without SQLITE_PATH
const DefaultSQLitePath = "oauth2.db"

// Backends holds the storage bound to every port
type Backends struct {
	Plan    Plan
	Clients domain.ClientStorage

	tokens  map[domain.TokenKind]domain.TokenStorage
	checks  map[Family]func(context.Context) error
	closers []func() error
}

// TokenStorage returns the storage bound to kind
func (b *Backends) TokenStorage(kind domain.TokenKind) (domain.TokenStorage, error) {
	s, ok := b.tokens[kind]
	if !ok {
		return nil, fmt.Errorf("no storage bound for token kind %q", kind)
	}
	return s, nil
}

// Health checks every connected backend
func (b *Backends) Health(ctx context.Context) error {
	for family, check := range b.checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", family, err)
		}
	}
	return nil
}

// Close closes every connected backend
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// connection is one opened family able to bind ports
type connection struct {
	tokens  func(kind domain.TokenKind) (domain.TokenStorage, error)
	clients func() domain.ClientStorage
}

// Open resolves the plan, connects each needed family once and binds the ports
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backends, error) {
	plan, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}

	b := &Backends{
		Plan:   plan,
		tokens: make(map[domain.TokenKind]domain.TokenStorage, len(domain.TokenKinds)),
		checks: make(map[Family]func(context.Context) error),
	}

	connections := make(map[Family]*connection)
	for _, family := range plan.Families() {
		conn, err := b.connect(ctx, family, cfg, logger)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to open %s storage: %w", family, err)
		}
		connections[family] = conn
	}

	for _, kind := range domain.TokenKinds {
		family := plan.Family(Port(kind))
		store, err := connections[family].tokens(kind)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.tokens[kind] = store
	}
	b.Clients = connections[plan.Family(ClientPort)].clients()

	fields := []zap.Field{zap.String("default", string(plan.Default))}
	for _, port := range Ports {
		fields = append(fields, zap.String(string(port), string(plan.Family(port))))
	}
	logger.Info("Storage bound", fields...)

	return b, nil
}

func (b *Backends) connect(ctx context.Context, family Family, cfg *config.Config, logger *zap.Logger) (*connection, error) {
	logger = logger.With(zap.String("storage", string(family)))

	switch family {
	case Postgres:
		db, err := database.NewPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { db.Close(); return nil })
		b.checks[family] = db.Ping
		return &connection{
			tokens: func(kind domain.TokenKind) (domain.TokenStorage, error) {
				return postgres.NewTokenStore(db, kind, logger)
			},
			clients: func() domain.ClientStorage { return postgres.NewClientStore(db, logger) },
		}, nil

	case Redis:
		client, err := redisstore.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		b.checks[family] = client.Health
		return &connection{
			tokens: func(kind domain.TokenKind) (domain.TokenStorage, error) {
				return redisstore.NewTokenStore(client, kind), nil
			},
			clients: func() domain.ClientStorage { return redisstore.NewClientStore(client) },
		}, nil

	case SQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = DefaultSQLitePath
		}
		db, err := sqlitestore.Open(ctx, path, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.checks[family] = db.Health
		return &connection{
			tokens: func(kind domain.TokenKind) (domain.TokenStorage, error) {
				return sqlitestore.NewTokenStore(db, kind)
			},
			clients: func() domain.ClientStorage { return sqlitestore.NewClientStore(db) },
		}, nil

	case Memory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		return &connection{
			tokens: func(domain.TokenKind) (domain.TokenStorage, error) {
				return memory.NewTokenStore(), nil
			},
			clients: func() domain.ClientStorage { return memory.NewClientStore() },
		}, nil
	}

	return nil, fmt.Errorf("unknown storage family %q", family)
}
