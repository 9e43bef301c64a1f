// Package cart хранит состояние корзины в памяти и синхронизирует его
// с key-value хранилищем.
//
// Store живёт ровно одну сессию: Init запускает асинхронную гидрацию из
// хранилища, все операции ждут её завершения, каждая мутация сразу видна
// следующему чтению и передаётся в фоновый writer полным снимком. Close
// дожидается записи последнего снимка и завершает сессию.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/cartsync/internal/cart"

// ErrStoreClosed возвращается при повторном Init уже закрытой сессии.
var ErrStoreClosed = errors.New("cart store is closed")

type lifecycle int

const (
	stateNew lifecycle = iota
	stateHydrating
	stateReady
	stateFailed
	stateClosed
)

// Store хранит корзину одной сессии.
type Store struct {
	kv        domain.KeyValueStore
	key       string
	sessionID string
	opts      Options
	logger    *log.Entry
	metrics   *metrics.CartMetrics
	tracer    trace.Tracer

	ready chan struct{}
	wg    sync.WaitGroup

	mu         sync.Mutex
	state      lifecycle
	items      domain.CartState
	hydrateErr error
	writer     *writer
	cancel     context.CancelFunc
}

// New создаёт корзину поверх key-value хранилища. До вызова Init любые
// операции возвращают domain.ErrNotInitialized.
func New(kv domain.KeyValueStore, options ...Option) *Store {
	opts := Options{
		MalformedPolicy:  MalformedDiscard,
		MaxWriteAttempts: defaultMaxWriteAttempts,
		WriteRetryDelay:  defaultWriteRetryDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.MaxWriteAttempts <= 0 {
		opts.MaxWriteAttempts = defaultMaxWriteAttempts
	}
	if opts.WriteRetryDelay < 0 {
		opts.WriteRetryDelay = 0
	}
	if opts.WriteDebounce < 0 {
		opts.WriteDebounce = 0
	}
	if opts.MalformedPolicy == "" {
		opts.MalformedPolicy = MalformedDiscard
	}

	sessionID := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-store")
	}
	key := domain.SnapshotKey(opts.Namespace)
	logger = logger.WithFields(log.Fields{
		"session_id": sessionID,
		"key":        key,
	})
	opts.Logger = logger

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Store{
		kv:        kv,
		key:       key,
		sessionID: sessionID,
		opts:      opts,
		logger:    logger,
		metrics:   opts.Metrics,
		tracer:    tp.Tracer(tracerName),
		ready:     make(chan struct{}),
		items:     domain.CartState{},
	}
}

// SessionID возвращает идентификатор текущей сессии.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Key возвращает ключ, под которым хранится снимок.
func (s *Store) Key() string {
	return s.key
}

// Init открывает сессию: запускает writer и асинхронную гидрацию.
// Повторный вызов на активной сессии ничего не делает.
func (s *Store) Init(ctx context.Context) error {
	if s.kv == nil {
		return fmt.Errorf("cart store: key-value store is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateClosed:
		return ErrStoreClosed
	case stateNew:
	default:
		return nil
	}

	// Сессия переживает отмену ctx вызывающего, но наследует его значения.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.writer = newWriter(s.kv, s.key, s.sessionID, s.opts, s.tracer)
	s.state = stateHydrating

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.writer.run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.hydrate(runCtx)
	}()

	s.logger.Debug("cart session started")
	return nil
}

// Ready возвращает канал, закрываемый по завершении гидрации (успешной или нет).
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady блокируется до завершения гидрации и возвращает её ошибку.
func (s *Store) WaitReady(ctx context.Context) error {
	if err := s.await(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

// Products возвращает копию текущего списка позиций.
func (s *Store) Products(ctx context.Context) (domain.CartState, error) {
	if err := s.await(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked(); err != nil {
		return nil, err
	}
	return s.items.Clone(), nil
}

// AddToCart добавляет товар с количеством 1. Если товар уже в корзине,
// операция эквивалентна Increment и дубликат не создаётся.
func (s *Store) AddToCart(ctx context.Context, product domain.Product) error {
	if product.ID == "" {
		return domain.ErrItemIDRequired
	}

	return s.mutate(ctx, func(items domain.CartState) (domain.CartState, domain.CartOp) {
		if items.Index(product.ID) >= 0 {
			return items.Increment(product.ID), domain.CartOpIncrement
		}
		return items.Append(product), domain.CartOpAdd
	})
}

// Increment увеличивает количество позиции на 1. Неизвестный id не ошибка:
// состояние не меняется, но снимок всё равно записывается.
func (s *Store) Increment(ctx context.Context, id string) error {
	return s.mutate(ctx, func(items domain.CartState) (domain.CartState, domain.CartOp) {
		return items.Increment(id), domain.CartOpIncrement
	})
}

// Decrement уменьшает количество позиции на 1, не опускаясь ниже нуля.
func (s *Store) Decrement(ctx context.Context, id string) error {
	return s.mutate(ctx, func(items domain.CartState) (domain.CartState, domain.CartOp) {
		return items.Decrement(id), domain.CartOpDecrement
	})
}

// Flush ждёт записи всех снимков, поставленных в очередь до вызова.
// Возвращает ошибку последней завершённой записи.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.state == stateNew || s.state == stateClosed {
		s.mu.Unlock()
		return domain.ErrNotInitialized
	}
	w := s.writer
	s.mu.Unlock()

	return w.flush(ctx)
}

// Close завершает сессию: новые операции получают ErrNotInitialized,
// очередь записи дописывается (в пределах ctx), фоновые горутины останавливаются.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	s.state = stateClosed
	s.items = nil
	w := s.writer
	cancel := s.cancel
	s.mu.Unlock()

	if prev == stateNew || prev == stateClosed {
		return nil
	}

	flushErr := w.flush(ctx)
	cancel()
	s.wg.Wait()

	s.logger.Debug("cart session closed")
	if flushErr != nil {
		return fmt.Errorf("flush cart snapshot: %w", flushErr)
	}
	return nil
}

type mutation func(items domain.CartState) (domain.CartState, domain.CartOp)

func (s *Store) mutate(ctx context.Context, fn mutation) error {
	if err := s.await(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.activeLocked(); err != nil {
		return err
	}

	next, op := fn(s.items)
	if err := s.writer.schedule(next); err != nil {
		return err
	}
	s.items = next

	s.metrics.RecordMutation(op)
	s.metrics.ObserveState(next)
	return nil
}

// await ждёт барьер гидрации.
func (s *Store) await(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == stateNew || state == stateClosed {
		return domain.ErrNotInitialized
	}

	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) activeLocked() error {
	switch s.state {
	case stateReady:
		return nil
	case stateFailed:
		return s.hydrateErr
	default:
		return domain.ErrNotInitialized
	}
}
