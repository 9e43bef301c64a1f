package app

import (
	"context"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

func TestOpenBackend_Memory(t *testing.T) {
	t.Parallel()

	backend, err := OpenBackend(context.Background(), Config{StorageDriver: StorageDriverMemory}, log.WithField("test", "memory"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	require.NoError(t, backend.Ping(context.Background()))
	_, err = backend.Get(context.Background(), domain.SnapshotKey(""))
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestOpenBackend_SQLite(t *testing.T) {
	t.Parallel()

	cfg := Config{
		StorageDriver: StorageDriverSQLite,
		SQLitePath:    filepath.Join(t.TempDir(), "cart.db"),
	}
	backend, err := OpenBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	require.NoError(t, backend.Set(context.Background(), "k", "v"))
	got, err := backend.Get(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestOpenBackend_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := OpenBackend(context.Background(), Config{StorageDriver: StorageDriverPostgres}, nil)
	require.Error(t, err)
}

func TestOpenBackend_RedisRequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := OpenBackend(context.Background(), Config{StorageDriver: StorageDriverRedis}, nil)
	require.Error(t, err)
}

func TestOpenBackend_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := OpenBackend(context.Background(), Config{StorageDriver: "cassandra"}, nil)
	require.ErrorContains(t, err, "unsupported storage driver")
}
