package pg

import (
	"context"
	"errors"
	"strings"
	"testing"

	"apiforge/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterialize_Standard(t *testing.T) {
	db := NewMemoryDB()
	g := blogGraph()

	rep, err := NewMaterializer(db).Materialize(context.Background(), g, "alice", "k3x9")
	require.NoError(t, err)
	assert.Equal(t, StrategyStandard, rep.Strategy)
	require.Len(t, rep.Tables, 2)
	for _, st := range rep.Tables {
		assert.True(t, st.Exists)
	}
	assert.Equal(t, []string{"fk_alice_k3x9_posts_user_id_alice_k3x9_users"}, rep.ForeignKeys)
	assert.Equal(t, "alice_k3x9_posts", g.Table("posts").PrefixedName)
}

func TestMaterialize_LongForeignKeyNames(t *testing.T) {
	db := NewMemoryDB()
	g := schema.Normalize(&schema.Graph{Tables: []*schema.Table{
		{Name: "categories", Columns: []schema.Column{{Name: "name", Type: "varchar"}}},
		{Name: "inventory_adjustments", Columns: []schema.Column{
			{Name: "category_ref_primary_id", Type: "uuid", Constraints: []string{"references categories(id)"}},
			{Name: "category_ref_secondary_id", Type: "uuid", Constraints: []string{"references categories(id)"}},
		}},
	}})

	rep, err := NewMaterializer(db).Materialize(context.Background(), g, "acme_corporation", "k3x9")
	require.NoError(t, err)
	require.Len(t, rep.ForeignKeys, 2)
	assert.NotEqual(t, rep.ForeignKeys[0], rep.ForeignKeys[1])
	assert.Len(t, db.ForeignKeys(), 2)
}

func TestMaterialize_FallsBackToDecoupled(t *testing.T) {
	db := NewMemoryDB()
	db.FailExec = func(script string) error {
		if strings.Contains(script, "-- extensions") && strings.Contains(script, "add constraint") {
			return errors.New("syntax error near do")
		}
		return nil
	}

	rep, err := NewMaterializer(db).Materialize(context.Background(), blogGraph(), "alice", "k3x9")
	require.NoError(t, err)
	assert.Equal(t, StrategyDecoupled, rep.Strategy)
	assert.NotEmpty(t, rep.Warnings)
	assert.Len(t, rep.ForeignKeys, 1)
}

func TestMaterialize_FallsBackToAtomic(t *testing.T) {
	db := NewMemoryDB()
	db.FailExec = func(script string) error {
		if strings.Contains(script, "drop table") {
			return errors.New("permission denied for drop")
		}
		return nil
	}

	rep, err := NewMaterializer(db).Materialize(context.Background(), blogGraph(), "alice", "k3x9")
	require.NoError(t, err)
	assert.Equal(t, StrategyAtomic, rep.Strategy)
	assert.Empty(t, rep.ForeignKeys)
	assert.True(t, db.HasTable("alice_k3x9_users"))
}

func TestMaterialize_AllStrategiesFail(t *testing.T) {
	db := NewMemoryDB()
	db.FailExec = func(script string) error {
		if strings.Contains(script, "create table") {
			return errors.New("disk full")
		}
		return nil
	}

	_, err := NewMaterializer(db).Materialize(context.Background(), blogGraph(), "alice", "k3x9")
	var me *MaterializationError
	require.ErrorAs(t, err, &me)
	assert.ElementsMatch(t, []string{"users", "posts"}, me.Missing)
}

func TestMaterialize_ExecutorUnavailable(t *testing.T) {
	db := NewMemoryDB()
	db.Denied = true
	m := NewMaterializer(db)

	_, err := m.Materialize(context.Background(), blogGraph(), "alice", "k3x9")
	require.ErrorIs(t, err, ErrExecutorUnavailable)
	var ue *ExecutorUnavailableError
	require.ErrorAs(t, err, &ue)
	assert.NotEmpty(t, ue.Remediation)
	assert.Empty(t, db.Scripts, "nothing executed before the probe passes")

	// recovers once the privilege is granted
	db.Denied = false
	_, err = m.Materialize(context.Background(), blogGraph(), "alice", "k3x9")
	assert.NoError(t, err)
}

func TestVerify_CaseFolded(t *testing.T) {
	db := NewMemoryDB()
	ctx := context.Background()
	require.NoError(t, db.Exec(ctx, "create table \"Alice_K3x9_Users\" (\n  \"id\" uuid\n);"))

	g := blogGraph()
	g.Tables = g.Tables[:1]
	statuses, missing := NewMaterializer(db).Verify(ctx, g, "alice", "k3x9")
	assert.Empty(t, missing)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].CaseFolded)
	assert.Equal(t, "Alice_K3x9_Users", statuses[0].PhysicalName)
}
