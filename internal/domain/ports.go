package domain

import (
	"context"
	"time"
)

// KeyValueStore — асинхронная граница хранения: get/set строковых значений.
type KeyValueStore interface {
	// Get возвращает значение по ключу или ErrKeyNotFound, если его нет.
	Get(ctx context.Context, key string) (string, error)
	// Set перезаписывает значение целиком; частичные записи не видны.
	Set(ctx context.Context, key, value string) error
}

// SnapshotPublisher публикует сохранённые снимки корзины во внешний канал.
type SnapshotPublisher interface {
	// PublishSnapshot должен быть идемпотентным по (SessionID, Revision).
	PublishSnapshot(ctx context.Context, event SnapshotEvent) error
}

// CartOp задаёт константы операций для метрик/логов.
type CartOp string

const (
	CartOpAdd       CartOp = "add"
	CartOpIncrement CartOp = "increment"
	CartOpDecrement CartOp = "decrement"
)

// SnapshotEvent описывает успешно записанный снимок.
type SnapshotEvent struct {
	SessionID string
	Key       string
	Revision  uint64
	Items     CartState
	SavedAt   time.Time
}
