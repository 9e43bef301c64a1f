package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// KeyValueStore — in-memory реализация domain.KeyValueStore для локальной
// разработки и тестов. Данные живут только в пределах процесса.
type KeyValueStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewKeyValueStore возвращает пустое in-memory хранилище.
func NewKeyValueStore() *KeyValueStore {
	return &KeyValueStore{
		items: make(map[string]string),
	}
}

// Get возвращает значение или ErrKeyNotFound, если его нет.
func (s *KeyValueStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.items[key]
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	return value, nil
}

// Set перезаписывает значение по ключу.
func (s *KeyValueStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = value
	return nil
}

// Delete удаляет ключ; отсутствие ключа не ошибка.
func (s *KeyValueStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Ping всегда успешен.
func (s *KeyValueStore) Ping(context.Context) error {
	return nil
}

// Close ничего не освобождает.
func (s *KeyValueStore) Close() error {
	return nil
}

var _ domain.KeyValueStore = (*KeyValueStore)(nil)
