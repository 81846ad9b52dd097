//go:build integration

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/gdg-garage/observe-api/internal/config"
	"github.com/gdg-garage/observe-api/internal/database"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const postgisImage = "postgis/postgis:16-3.4-alpine"

// NewPostgresDB starts a PostGIS container and returns a migrated connection
// to it. The container is terminated when the test ends.
func NewPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, postgisImage,
		tcpostgres.WithDatabase("observe"),
		tcpostgres.WithUsername("observe"),
		tcpostgres.WithPassword("observe"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := database.Connect(&config.Config{
		DatabaseDriver: config.DriverPostgres,
		DatabaseURL:    dsn,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}
