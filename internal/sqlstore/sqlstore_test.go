package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1, $2, $3", Postgres.Placeholders(3))
	assert.Equal(t, "?, ?", SQLite.Placeholders(2))
	assert.Equal(t, `"a""b"`, Quote(`a"b`))
}

func TestOpenSQLite(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("select 1").Scan(&n))
	assert.Equal(t, 1, n)
}
