package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultNamespace — пространство имён ключа по умолчанию.
	DefaultNamespace = "@GoMarketplace"
	cartItemsSuffix  = "CartItems"
)

// SnapshotKey формирует ключ снимка корзины вида "<namespace>:CartItems".
func SnapshotKey(namespace string) string {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + ":" + cartItemsSuffix
}

// snapshotItem задаёт сериализованную форму LineItem.
type snapshotItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// EncodeSnapshot сериализует полное состояние корзины в JSON-массив.
// Пустая корзина кодируется как "[]".
func EncodeSnapshot(state CartState) (string, error) {
	items := make([]snapshotItem, 0, len(state))
	for _, item := range state {
		items = append(items, snapshotItem{
			ID:       item.ID,
			Title:    item.Title,
			ImageURL: item.ImageURL,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal cart snapshot: %w", err)
	}
	return string(raw), nil
}

// DecodeSnapshot восстанавливает состояние из сохранённого значения.
// Пустая строка и JSON null дают пустую корзину. Любая ошибка разбора или
// нарушение инвариантов оборачивается в ErrMalformedSnapshot.
func DecodeSnapshot(raw string) (CartState, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return CartState{}, nil
	}

	var items []snapshotItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	state := make(CartState, 0, len(items))
	for _, item := range items {
		state = append(state, LineItem{
			ID:       item.ID,
			Title:    item.Title,
			ImageURL: item.ImageURL,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}

	if errs := state.ValidateInvariants(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSnapshot, errors.Join(errs...))
	}

	return state, nil
}
