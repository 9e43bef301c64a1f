package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// KeyValueStore — PostgreSQL-реализация domain.KeyValueStore.
// Каждая запись увеличивает revision строки, что удобно для аудита.
type KeyValueStore struct {
	store *Store
}

// NewKeyValueStore создаёт хранилище поверх открытого Store.
func NewKeyValueStore(store *Store) *KeyValueStore {
	return &KeyValueStore{store: store}
}

// Get возвращает значение по ключу или domain.ErrKeyNotFound.
func (r *KeyValueStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var value string
	err := r.store.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get kv entry: %w", err)
	}
	return value, nil
}

// Set выполняет upsert значения.
func (r *KeyValueStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.store.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at, revision)
		VALUES ($1, $2, NOW(), 1)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = NOW(),
		    revision = kv_entries.revision + 1
	`, key, value); err != nil {
		return fmt.Errorf("set kv entry: %w", err)
	}
	return nil
}

// Revision возвращает число записей по ключу (0, если ключа нет).
func (r *KeyValueStore) Revision(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var revision int64
	err := r.store.db.QueryRowContext(ctx, `SELECT revision FROM kv_entries WHERE key = $1`, key).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get kv revision: %w", err)
	}
	return revision, nil
}

// Ping проверяет доступность базы.
func (r *KeyValueStore) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// Close закрывает подключение.
func (r *KeyValueStore) Close() error {
	return r.store.Close()
}

var _ domain.KeyValueStore = (*KeyValueStore)(nil)
