package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

type mockConsumerGroup struct {
	consumeFn func(context.Context, []string, sarama.ConsumerGroupHandler) error
	errorsCh  chan error
	closeFn   func() error
}

func (m *mockConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, topics, handler)
	}
	return nil
}

func (m *mockConsumerGroup) Errors() <-chan error {
	return m.errorsCh
}

func (m *mockConsumerGroup) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}
	if m.errorsCh != nil {
		close(m.errorsCh)
	}
	return nil
}

func (m *mockConsumerGroup) Pause(map[string][]int32)  {}
func (m *mockConsumerGroup) Resume(map[string][]int32) {}
func (m *mockConsumerGroup) PauseAll()                 {}
func (m *mockConsumerGroup) ResumeAll()                {}

type mockSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (m *mockSession) Claims() map[string][]int32               { return nil }
func (m *mockSession) MemberID() string                         { return "member" }
func (m *mockSession) GenerationID() int32                      { return 1 }
func (m *mockSession) MarkOffset(string, int32, int64, string)  {}
func (m *mockSession) Commit()                                  {}
func (m *mockSession) ResetOffset(string, int32, int64, string) {}
func (m *mockSession) Context() context.Context                 { return m.ctx }
func (m *mockSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	m.marked = append(m.marked, msg)
}

type mockClaim struct {
	topic     string
	partition int32
	messages  chan *sarama.ConsumerMessage
}

func (m *mockClaim) Topic() string                            { return m.topic }
func (m *mockClaim) Partition() int32                         { return m.partition }
func (m *mockClaim) InitialOffset() int64                     { return 0 }
func (m *mockClaim) HighWaterMarkOffset() int64               { return 0 }
func (m *mockClaim) Messages() <-chan *sarama.ConsumerMessage { return m.messages }

func snapshotPayload(t *testing.T, sessionID string, revision uint64) []byte {
	t.Helper()

	raw, err := json.Marshal(NewSnapshotMessage(domain.SnapshotEvent{
		SessionID: sessionID,
		Key:       domain.SnapshotKey(""),
		Revision:  revision,
		Items:     domain.CartState{{ID: "1", Title: "A", Quantity: 2}},
		SavedAt:   time.Now().UTC(),
	}))
	if err != nil {
		t.Fatalf("marshal snapshot message: %v", err)
	}
	return raw
}

func TestNewConsumerErrors(t *testing.T) {
	handler := func(context.Context, *SnapshotMessage) error { return nil }
	if _, err := NewConsumer([]string{"invalid-broker:9092"}, "group", "", false, handler); err == nil {
		t.Fatal("expected new consumer error")
	}
}

func TestConsumerStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumeCalls := 0
	errorsCh := make(chan error, 1)
	group := &mockConsumerGroup{
		errorsCh: errorsCh,
		consumeFn: func(_ context.Context, topics []string, _ sarama.ConsumerGroupHandler) error {
			consumeCalls++
			if len(topics) != 1 || topics[0] != TopicCartSnapshots {
				t.Errorf("unexpected topics: %v", topics)
			}
			cancel()
			return nil
		},
		closeFn: func() error {
			close(errorsCh)
			return nil
		},
	}

	consumer := newConsumer(group, []string{TopicCartSnapshots}, func(context.Context, *SnapshotMessage) error { return nil })

	errorsCh <- errors.New("background error")
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := consumer.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if consumeCalls == 0 {
		t.Fatal("expected consume call")
	}
}

func TestConsumerStopError(t *testing.T) {
	errorsCh := make(chan error)
	group := &mockConsumerGroup{errorsCh: errorsCh, closeFn: func() error {
		close(errorsCh)
		return errors.New("close failed")
	}}
	consumer := newConsumer(group, nil, nil)
	if err := consumer.Stop(); err == nil {
		t.Fatal("expected stop error")
	}
}

func TestConsumerSetupCleanup(t *testing.T) {
	consumer := &Consumer{}
	if err := consumer.Setup(nil); err != nil {
		t.Fatalf("setup should return nil: %v", err)
	}
	if err := consumer.Cleanup(nil); err != nil {
		t.Fatalf("cleanup should return nil: %v", err)
	}
}

func TestConsumeClaim(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []*SnapshotMessage
	consumer := newConsumer(nil, nil, func(_ context.Context, message *SnapshotMessage) error {
		got = append(got, message)
		return nil
	})

	session := &mockSession{ctx: ctx}
	claim := &mockClaim{topic: TopicCartSnapshots, messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{Topic: TopicCartSnapshots, Offset: 1, Key: []byte("s-1"), Value: snapshotPayload(t, "s-1", 1)}
	claim.messages <- &sarama.ConsumerMessage{Topic: TopicCartSnapshots, Offset: 2, Key: []byte("s-1"), Value: snapshotPayload(t, "s-1", 2)}
	close(claim.messages)

	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim failed: %v", err)
	}
	if len(session.marked) != 2 {
		t.Fatalf("expected two marked messages, got %d", len(session.marked))
	}
	if len(got) != 2 || got[0].Revision != 1 || got[1].Revision != 2 {
		t.Fatalf("unexpected handled messages: %+v", got)
	}
	if got[1].TotalQuantity != 2 || got[1].Items[0].ID != "1" {
		t.Fatalf("unexpected snapshot payload: %+v", got[1])
	}
}

func TestConsumeClaimSkipsPoisonMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	consumer := newConsumer(nil, nil, func(context.Context, *SnapshotMessage) error {
		calls++
		return nil
	})

	session := &mockSession{ctx: ctx}
	claim := &mockClaim{topic: TopicCartSnapshots, messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Topic: TopicCartSnapshots, Offset: 1, Value: []byte("{")}
	close(claim.messages)

	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim failed: %v", err)
	}
	if calls != 0 {
		t.Fatalf("handler must not see unparsable messages, got %d calls", calls)
	}
	if len(session.marked) != 1 {
		t.Fatalf("poison message should be marked to unblock partition, got %d", len(session.marked))
	}
}

func TestHandleMessageRetries(t *testing.T) {
	msg := &sarama.ConsumerMessage{Topic: TopicCartSnapshots, Value: snapshotPayload(t, "s-1", 3)}

	t.Run("success after retry", func(t *testing.T) {
		attempts := 0
		consumer := newConsumer(nil, nil, func(context.Context, *SnapshotMessage) error {
			attempts++
			if attempts < 2 {
				return errors.New("temporary")
			}
			return nil
		})
		consumer.backoff = time.Millisecond

		if err := consumer.handleMessage(context.Background(), msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Fatalf("expected 2 attempts, got %d", attempts)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts := 0
		consumer := newConsumer(nil, nil, func(context.Context, *SnapshotMessage) error {
			attempts++
			return errors.New("permanent")
		})
		consumer.backoff = time.Millisecond

		if err := consumer.handleMessage(context.Background(), msg); err == nil {
			t.Fatal("expected error after max attempts")
		}
		if attempts != defaultHandlerAttempts {
			t.Fatalf("expected %d attempts, got %d", defaultHandlerAttempts, attempts)
		}
	})

	t.Run("stops on context cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		consumer := newConsumer(nil, nil, func(context.Context, *SnapshotMessage) error {
			cancel()
			return errors.New("temporary")
		})
		consumer.backoff = time.Second

		if err := consumer.handleMessage(ctx, msg); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestParseSnapshotMessage(t *testing.T) {
	if _, err := ParseSnapshotMessage(&sarama.ConsumerMessage{Value: []byte("{")}); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := ParseSnapshotMessage(&sarama.ConsumerMessage{Value: []byte(`{"event_type":"order.created"}`)}); err == nil {
		t.Fatal("expected unexpected event type error")
	}
}

func TestConsumeClaimStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := newConsumer(nil, nil, func(context.Context, *SnapshotMessage) error { return nil })
	session := &mockSession{ctx: ctx}
	claim := &mockClaim{topic: TopicCartSnapshots, messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan struct{})
	go func() {
		_ = consumer.ConsumeClaim(session, claim)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not stop after context cancellation")
	}
}
