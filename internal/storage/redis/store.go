// Package redis реализует key-value хранилище снимков корзины поверх Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	goredis "github.com/go-redis/redis/v8"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
	defaultPoolSize     = 10
	defaultMaxRetries   = 3

	opTimeout = 5 * time.Second
)

// KeyValueStore — Redis-реализация domain.KeyValueStore. Снимок хранится
// обычной строкой под ключом сессии.
type KeyValueStore struct {
	client *goredis.Client
}

// Open подключается по адресу host:port или redis:// URL и проверяет соединение.
func Open(ctx context.Context, addr string) (*KeyValueStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	opts, err := goredis.ParseURL(addr)
	if err != nil {
		// Не URL: считаем, что передан host:port.
		opts = &goredis.Options{Addr: addr}
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}

	client := goredis.NewClient(opts)
	client.AddHook(redisotel.NewTracingHook())

	store := &KeyValueStore{client: client}
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// NewKeyValueStore оборачивает готовый клиент.
func NewKeyValueStore(client *goredis.Client) *KeyValueStore {
	return &KeyValueStore{client: client}
}

// Get возвращает значение по ключу или domain.ErrKeyNotFound.
func (s *KeyValueStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, nil
}

// Set сохраняет значение без TTL.
func (s *KeyValueStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (s *KeyValueStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("redis store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close закрывает клиент.
func (s *KeyValueStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ domain.KeyValueStore = (*KeyValueStore)(nil)
