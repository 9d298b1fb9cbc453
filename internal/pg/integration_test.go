//go:build integration

package pg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("apiforge"),
		postgres.WithUsername("apiforge"),
		postgres.WithPassword("apiforge"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewClient(db)
}

func TestIntegration_MaterializeAndQuery(t *testing.T) {
	c := startPostgres(t)
	ctx := context.Background()
	g := blogGraph()

	rep, err := NewMaterializer(c).Materialize(ctx, g, "alice", "k3x9")
	require.NoError(t, err)
	assert.Equal(t, StrategyStandard, rep.Strategy)
	assert.Equal(t, []string{"fk_alice_k3x9_posts_user_id_alice_k3x9_users"}, rep.ForeignKeys)

	// sample rows were inserted
	n, err := c.Count(ctx, From("alice_k3x9_users"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rows, err := c.Run(ctx, From("alice_k3x9_posts").Insert(map[string]any{"title": "hello", "tenant_id": "alice"}))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0]["title"])

	_, err = c.Run(ctx, From("alice_k3x9_posts").Select().Eq("nope", 1))
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "42703", qe.Code)

	// re-materializing replaces the tables
	_, err = NewMaterializer(c).Materialize(ctx, g, "alice", "k3x9")
	require.NoError(t, err)
}
