package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
)

var errWriterStopped = errors.New("snapshot writer stopped")

// pendingSnapshot хранит последний ещё не записанный снимок.
type pendingSnapshot struct {
	revision uint64
	raw      string
	items    domain.CartState
}

// writer сохраняет снимки строго по одному. Если за время записи пришло
// несколько мутаций, записывается только самый свежий снимок.
type writer struct {
	kv             domain.KeyValueStore
	key            string
	sessionID      string
	logger         *log.Entry
	metrics        *metrics.CartMetrics
	tracer         trace.Tracer
	publisher      domain.SnapshotPublisher
	onFailure      WriteFailureHandler
	maxAttempts    int
	retryBaseDelay time.Duration
	debounce       time.Duration

	wake    chan struct{}
	stopped chan struct{}

	mu        sync.Mutex
	pending   *pendingSnapshot
	scheduled uint64
	completed uint64
	lastErr   error
	progress  chan struct{}
}

func newWriter(kv domain.KeyValueStore, key, sessionID string, opts Options, tracer trace.Tracer) *writer {
	return &writer{
		kv:             kv,
		key:            key,
		sessionID:      sessionID,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		tracer:         tracer,
		publisher:      opts.Publisher,
		onFailure:      opts.OnWriteFailure,
		maxAttempts:    opts.MaxWriteAttempts,
		retryBaseDelay: opts.WriteRetryDelay,
		debounce:       opts.WriteDebounce,
		wake:           make(chan struct{}, 1),
		stopped:        make(chan struct{}),
		progress:       make(chan struct{}),
	}
}

// schedule ставит полный снимок в очередь и сразу возвращает управление.
// Вызывается под мьютексом Store, поэтому ревизии монотонны.
func (w *writer) schedule(items domain.CartState) error {
	raw, err := domain.EncodeSnapshot(items)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.scheduled++
	if w.pending != nil {
		w.metrics.RecordWrite(metrics.WriteResultCoalesced)
	}
	w.pending = &pendingSnapshot{revision: w.scheduled, raw: raw, items: items}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// run обрабатывает очередь до отмены ctx.
func (w *writer) run(ctx context.Context) {
	defer close(w.stopped)

	for {
		select {
		case <-ctx.Done():
			w.dropPending()
			return
		case <-w.wake:
		}

		if w.debounce > 0 {
			select {
			case <-ctx.Done():
				w.dropPending()
				return
			case <-time.After(w.debounce):
			}
		}

		w.mu.Lock()
		snap := w.pending
		w.pending = nil
		w.mu.Unlock()
		if snap == nil {
			continue
		}

		err := w.saveWithRetry(ctx, snap)
		if err != nil {
			w.metrics.RecordWrite(metrics.WriteResultFailed)
			w.logger.WithError(err).WithField("revision", snap.revision).Warn("cart snapshot write failed")
			if w.onFailure != nil {
				w.onFailure(snap.revision, err)
			}
		} else {
			w.publish(ctx, snap)
		}
		w.complete(snap.revision, err)
	}
}

// flush ждёт, пока ревизия, актуальная на момент вызова, будет обработана.
func (w *writer) flush(ctx context.Context) error {
	w.mu.Lock()
	target := w.scheduled
	w.mu.Unlock()

	for {
		w.mu.Lock()
		if w.completed >= target {
			err := w.lastErr
			w.mu.Unlock()
			return err
		}
		progress := w.progress
		w.mu.Unlock()

		select {
		case <-progress:
		case <-w.stopped:
			w.mu.Lock()
			done := w.completed >= target
			err := w.lastErr
			w.mu.Unlock()
			if done {
				return err
			}
			return errWriterStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *writer) complete(revision uint64, err error) {
	w.mu.Lock()
	w.completed = revision
	w.lastErr = err
	close(w.progress)
	w.progress = make(chan struct{})
	w.mu.Unlock()
}

func (w *writer) dropPending() {
	w.mu.Lock()
	snap := w.pending
	w.pending = nil
	w.mu.Unlock()

	if snap != nil {
		w.logger.WithField("revision", snap.revision).Warn("writer stopped with unsaved cart snapshot")
	}
}

func (w *writer) saveWithRetry(ctx context.Context, snap *pendingSnapshot) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.save(ctx, snap, attempt)
		if err == nil {
			w.metrics.RecordWrite(metrics.WriteResultSaved)
			return nil
		}
		lastErr = err
		w.metrics.RecordWrite(metrics.WriteResultRetryError)

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrPersistenceWrite, ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: after %d attempts: %w", domain.ErrPersistenceWrite, w.maxAttempts, lastErr)
}

func (w *writer) save(ctx context.Context, snap *pendingSnapshot, attempt int) error {
	ctx, span := w.tracer.Start(ctx, "cart.snapshot.write", trace.WithAttributes(
		attribute.String("cart.key", w.key),
		attribute.Int64("cart.revision", int64(snap.revision)),
		attribute.Int("cart.attempt", attempt),
	))
	defer span.End()

	start := time.Now()
	err := w.kv.Set(ctx, w.key, snap.raw)
	w.metrics.RecordWriteDuration(time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot write failed")
		return err
	}
	return nil
}

func (w *writer) publish(ctx context.Context, snap *pendingSnapshot) {
	if w.publisher == nil {
		return
	}

	event := domain.SnapshotEvent{
		SessionID: w.sessionID,
		Key:       w.key,
		Revision:  snap.revision,
		Items:     snap.items,
		SavedAt:   time.Now().UTC(),
	}
	if err := w.publisher.PublishSnapshot(ctx, event); err != nil {
		w.logger.WithError(err).WithField("revision", snap.revision).Warn("failed to publish cart snapshot")
	}
}

func (w *writer) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}
