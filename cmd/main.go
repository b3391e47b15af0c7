package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manorfm/oauth2-provider/internal/application"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/config"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/jwt"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/keygen"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/storage"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/telemetry"
	httprouter "github.com/manorfm/oauth2-provider/internal/interfaces/http"
	"go.uber.org/zap"
)

// @title OAuth2 Provider API
// @version 1.0
// @description OAuth2 authorization server with pluggable token storage
// @host localhost:8080
// @BasePath /
func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Enabled:        cfg.TelemetryEnabled,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	backends, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer backends.Close()

	owners, err := storage.ParseOwners(cfg.ResourceOwners)
	if err != nil {
		logger.Fatal("Failed to load resource owners", zap.Error(err))
	}
	if owners.Len() == 0 {
		logger.Warn("No resource owners configured, password grant and login are unavailable")
	}

	core, err := application.NewCore(cfg.OAuth2, backends.Clients, backends, owners, keygen.New(), logger)
	if err != nil {
		logger.Fatal("Failed to initialize authorization core", zap.Error(err))
	}

	sessions, err := newSessionSigner(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session signer", zap.Error(err))
	}

	router := httprouter.NewRouter(ctx, httprouter.Services{
		Grants:        core.Grants,
		Authorization: core.Authorization,
		Introspection: core.Introspection,
		Clients:       core.Clients,
		Owners:        owners,
		Sessions:      sessions,
		SessionKey:    sessions.PublicKey(),
		AdminUsers:    cfg.AdminUsers,
		Health:        backends.Health,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server",
			zap.Int("port", cfg.ServerPort),
			zap.Strings("grant_types", core.Grants.GrantTypes()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down telemetry", zap.Error(err))
	}

	logger.Info("Server exited properly")
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = lvl
	return zapCfg.Build()
}

// newSessionSigner keeps the signing key on disk when a path is configured so
// sessions survive restarts
func newSessionSigner(cfg *config.Config, logger *zap.Logger) (*jwt.JWT, error) {
	if cfg.SessionKeyPath == "" {
		logger.Warn("SESSION_KEY_PATH not set, sessions end when the process exits")
		return jwt.New(cfg.SessionDuration)
	}
	return jwt.LoadOrGenerate(cfg.SessionKeyPath, cfg.SessionDuration, logger)
}
