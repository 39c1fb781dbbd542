package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/repository/postgres"
	"github.com/tendant/listings-idm/pkg/repository/storetest"
)

// setupPostgres starts a disposable PostgreSQL container with the schema
// applied. Integration tests run only when INTEGRATION_TESTS=1.
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run against a PostgreSQL container")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "idm",
			"POSTGRES_PASSWORD": "idm",
			"POSTGRES_DB":       "listings_idm",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://idm:idm@%s:%s/listings_idm?sslmode=disable", host, port.Port())
	db, err := postgres.NewDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, postgres.ApplyMigrations(db))
	// A second run is a no-op.
	require.NoError(t, postgres.ApplyMigrations(db))
	return db
}

func TestAccountsRepository(t *testing.T) {
	db := setupPostgres(t)

	storetest.Run(t, func(t *testing.T) auth.AccountStore {
		_, err := db.Exec("TRUNCATE accounts")
		require.NoError(t, err)
		return postgres.NewAccountsRepository(db)
	})
}

func TestAccountsRepository_RequiresUniqueFilter(t *testing.T) {
	db := setupPostgres(t)
	repo := postgres.NewAccountsRepository(db)

	enabled := true
	_, err := repo.UpdateConditional(context.Background(),
		auth.AccountFilter{MFAEnabled: &enabled},
		auth.AccountPatch{MFAEnabled: &enabled},
	)
	require.Error(t, err)
}

func TestAccountsRepository_SchemaRejectsHalfResetToken(t *testing.T) {
	db := setupPostgres(t)
	repo := postgres.NewAccountsRepository(db)
	ctx := context.Background()

	account := storetest.NewAccount("alice", "alice@example.com")
	require.NoError(t, repo.Insert(ctx, account))

	_, err := db.ExecContext(ctx,
		`UPDATE accounts SET reset_token_hash = 'abc' WHERE id = $1`, account.ID)
	require.Error(t, err, "a reset token hash without an expiry must violate the schema")
}
