package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/storage/memory"
	"github.com/vladislavdragonenkov/cartsync/internal/storage/postgres"
	"github.com/vladislavdragonenkov/cartsync/internal/storage/redis"
	"github.com/vladislavdragonenkov/cartsync/internal/storage/sqlite"
)

// Backend объединяет key-value хранилище с проверкой доступности и закрытием.
type Backend interface {
	domain.KeyValueStore
	Ping(ctx context.Context) error
	Close() error
}

// OpenBackend открывает хранилище, выбранное в cfg.StorageDriver.
func OpenBackend(ctx context.Context, cfg Config, logger *log.Entry) (Backend, error) {
	if logger == nil {
		logger = log.WithField("component", "storage")
	}
	logger = logger.WithField("driver", cfg.StorageDriver)

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Warn("using in-memory storage, cart will not survive restarts")
		return memory.NewKeyValueStore(), nil

	case StorageDriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		logger.WithField("path", cfg.SQLitePath).Info("sqlite storage initialized")
		return store, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for postgres storage")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			version, applied, err := store.MigrationStatus(ctx)
			if err == nil {
				logger.WithFields(log.Fields{
					"schema_version": version,
					"applied":        applied,
				}).Info("postgres migrations applied")
			}
		}
		logger.Info("postgres storage initialized")
		return postgres.NewKeyValueStore(store), nil

	case StorageDriverRedis:
		store, err := redis.Open(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("open redis storage: %w", err)
		}
		logger.Info("redis storage initialized")
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
