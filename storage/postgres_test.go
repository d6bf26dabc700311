package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgres needs Docker; set PRICEWATCH_PG_IT=1 to run it.
func TestPostgres(t *testing.T) {
	if os.Getenv("PRICEWATCH_PG_IT") != "1" {
		t.Skip("set PRICEWATCH_PG_IT=1 to run the postgres integration test")
	}
	ctx := context.Background()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "pricewatch",
				"POSTGRES_PASSWORD": "pricewatch",
				"POSTGRES_DB":       "pricewatch",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pg.Terminate(context.Background()); err != nil {
			t.Error(err)
		}
	})

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://pricewatch:pricewatch@%s:%s/pricewatch?sslmode=disable", host, port.Port())

	s, err := OpenPostgres(ctx, dsn, 2, 2)
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}
