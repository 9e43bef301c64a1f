package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	EventTypeSnapshotSaved EventType = "cart.snapshot.saved"
)

// TopicCartSnapshots используется по умолчанию для ленты снимков корзины.
const TopicCartSnapshots = "cart.snapshots"

// Kafka headers с метаданными снимка
const (
	HeaderEventType = "x-event-type"
	HeaderSessionID = "x-session-id"
	HeaderRevision  = "x-revision"
)

// SnapshotMessage описывает записанный снимок корзины.
type SnapshotMessage struct {
	EventType     EventType         `json:"event_type"`
	SessionID     string            `json:"session_id"`
	Key           string            `json:"key"`
	Revision      uint64            `json:"revision"`
	Items         []domain.LineItem `json:"items"`
	TotalQuantity int               `json:"total_quantity"`
	SavedAt       time.Time         `json:"saved_at"`
}

// NewSnapshotMessage собирает сообщение из события записи снимка.
func NewSnapshotMessage(event domain.SnapshotEvent) *SnapshotMessage {
	items := event.Items.Clone()
	if items == nil {
		items = domain.CartState{}
	}
	savedAt := event.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	return &SnapshotMessage{
		EventType:     EventTypeSnapshotSaved,
		SessionID:     event.SessionID,
		Key:           event.Key,
		Revision:      event.Revision,
		Items:         items,
		TotalQuantity: items.TotalQuantity(),
		SavedAt:       savedAt,
	}
}

// ParseSnapshotMessage парсит SnapshotMessage из сообщения
func ParseSnapshotMessage(message *sarama.ConsumerMessage) (*SnapshotMessage, error) {
	var event SnapshotMessage
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot message: %w", err)
	}
	if event.EventType != EventTypeSnapshotSaved {
		return nil, fmt.Errorf("unexpected event type %q", event.EventType)
	}
	return &event, nil
}
