package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/manorfm/oauth2-provider/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testDSN returns the database used by integration tests or skips the test
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	return dsn
}

func TestNewPostgres_InvalidHost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.NewConfig()
	cfg.DBHost = "invalid-host.invalid"
	cfg.DBUser = "postgres"
	cfg.DBName = "oauth2_test"

	db, err := NewPostgres(ctx, cfg, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestConnect_InvalidDSN(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", zap.NewNop())
	assert.Error(t, err)
}

func TestPostgres(t *testing.T) {
	dsn := testDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := Connect(ctx, dsn, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, db.Ping(ctx))

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	var result int
	require.NoError(t, db.QueryRow(ctx, "SELECT 1").Scan(&result))
	assert.Equal(t, 1, result)

	_, err = db.Exec(ctx, "SELECT 1")
	require.NoError(t, err)

	require.NoError(t, db.RunMigrations("../../../migrations"))
	// Applying again is a no-op
	require.NoError(t, db.RunMigrations("../../../migrations"))

	db.Close()
	assert.Error(t, db.pool.Ping(ctx))
}
