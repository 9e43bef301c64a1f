package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

func TestKeyValueStore_Integration_GetSet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	kv := NewKeyValueStore(store)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := kv.Get(ctx, domain.SnapshotKey(""))
	require.ErrorIs(t, err, domain.ErrKeyNotFound)

	rev, err := kv.Revision(ctx, domain.SnapshotKey(""))
	require.NoError(t, err)
	require.Zero(t, rev)

	require.NoError(t, kv.Set(ctx, domain.SnapshotKey(""), `[]`))
	require.NoError(t, kv.Set(ctx, domain.SnapshotKey(""), `[{"id":"1","title":"A","image_url":"","price":1,"quantity":2}]`))

	value, err := kv.Get(ctx, domain.SnapshotKey(""))
	require.NoError(t, err)
	require.Contains(t, value, `"quantity":2`)

	rev, err = kv.Revision(ctx, domain.SnapshotKey(""))
	require.NoError(t, err)
	require.EqualValues(t, 2, rev)

	require.NoError(t, kv.Ping(ctx))
}

func TestMigrator_Integration_DownUp(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	version, count, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, version)
	require.Equal(t, 2, count)

	require.NoError(t, store.MigrateDown(ctx, 1))
	version, _, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	require.NoError(t, store.MigrateUp(ctx, 0))
	version, count, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, version)
	require.Equal(t, 2, count)
}
