package domain

import "errors"

var (
	// ErrNotInitialized возвращается при обращении к корзине вне активной сессии
	// (до Init или после Close).
	ErrNotInitialized = errors.New("cart store is not initialized")
	// ErrMalformedSnapshot — сохранённый снимок корзины не удалось разобрать.
	ErrMalformedSnapshot = errors.New("malformed cart snapshot")
	// ErrSnapshotLoad — хранилище не смогло отдать снимок при гидрации.
	ErrSnapshotLoad = errors.New("cart snapshot load failed")
	// ErrPersistenceWrite — запись снимка не удалась после всех попыток.
	ErrPersistenceWrite = errors.New("cart snapshot write failed")
	// ErrKeyNotFound возвращается адаптером хранилища, если ключа нет.
	ErrKeyNotFound = errors.New("key not found")

	// Ошибка отсутствующего идентификатора позиции.
	ErrItemIDRequired = errors.New("line item id is required")
	// Ошибка отрицательного количества в позиции.
	ErrItemQtyNegative = errors.New("line item quantity must be non-negative")
	// Ошибка повторяющегося идентификатора в снимке.
	ErrItemDuplicate = errors.New("line item id is duplicated")
)

// IsNotFound проверяет, что ошибка означает отсутствие ключа в хранилище.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
