//go:build integration

package remote

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a Postgres container and returns a pool.
func setupPostgres(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "config",
			"POSTGRES_PASSWORD": "config",
			"POSTGRES_DB":       "config",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Postgres endpoint: %v", err)
	}

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgres://config:config@%s/config?sslmode=disable", endpoint))
	if err != nil {
		t.Fatalf("Failed to connect to Postgres: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func TestPGStore_Integration(t *testing.T) {
	pool, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		CREATE TABLE calculations (name text PRIMARY KEY, value numeric, unit text);
		INSERT INTO calculations VALUES ('bra_adjustment', 8, '%'), ('grid_rent', 0.5, 'kr/kWh');
		CREATE TABLE content (name text PRIMARY KEY, body text);
	`)
	require.NoError(t, err)

	s := NewPGStore(pool, "")

	v, err := s.FetchDirect(ctx, "calculations", "bra_adjustment")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"bra_adjustment","value":8,"unit":"%"}`, string(v))

	v, err = s.FetchDirect(ctx, "calculations", "")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"bra_adjustment": {"name":"bra_adjustment","value":8,"unit":"%"},
		"grid_rent": {"name":"grid_rent","value":0.5,"unit":"kr/kWh"}
	}`, string(v))

	_, err = s.FetchDirect(ctx, "calculations", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FetchDirect(ctx, "content", "")
	assert.ErrorIs(t, err, ErrNotFound, "empty category")

	_, err = s.FetchDirect(ctx, "municipalities", "0301")
	assert.ErrorIs(t, err, ErrNotFound, "absent table")
}
