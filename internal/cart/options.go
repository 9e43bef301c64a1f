package cart

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
)

const (
	defaultMaxWriteAttempts = 3
	defaultWriteRetryDelay  = 50 * time.Millisecond
)

// MalformedSnapshotPolicy определяет реакцию на неразборчивый снимок при гидрации.
type MalformedSnapshotPolicy string

const (
	// MalformedDiscard — снимок отбрасывается, корзина стартует пустой.
	MalformedDiscard MalformedSnapshotPolicy = "discard"
	// MalformedSurface — гидрация завершается ошибкой ErrMalformedSnapshot.
	MalformedSurface MalformedSnapshotPolicy = "surface"
)

// ParseMalformedSnapshotPolicy разбирает значение из конфигурации.
// Пустая строка означает MalformedDiscard.
func ParseMalformedSnapshotPolicy(raw string) (MalformedSnapshotPolicy, error) {
	switch MalformedSnapshotPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MalformedDiscard:
		return MalformedDiscard, nil
	case MalformedSurface:
		return MalformedSurface, nil
	default:
		return "", fmt.Errorf("unsupported malformed snapshot policy: %q (use discard|surface)", raw)
	}
}

// WriteFailureHandler вызывается writer-горутиной, когда снимок не удалось
// сохранить после всех попыток. err оборачивает domain.ErrPersistenceWrite.
type WriteFailureHandler func(revision uint64, err error)

// Options задаёт параметры Store.
type Options struct {
	Logger           *log.Entry
	Metrics          *metrics.CartMetrics
	Namespace        string
	MalformedPolicy  MalformedSnapshotPolicy
	OnWriteFailure   WriteFailureHandler
	Publisher        domain.SnapshotPublisher
	MaxWriteAttempts int
	WriteRetryDelay  time.Duration
	WriteDebounce    time.Duration
	TracerProvider   trace.TracerProvider
}

// Option настраивает Store.
type Option func(*Options)

// WithLogger задаёт logger для корзины.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики корзины.
func WithMetrics(m *metrics.CartMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithNamespace задаёт пространство имён ключа снимка.
func WithNamespace(namespace string) Option {
	return func(opts *Options) {
		opts.Namespace = namespace
	}
}

// WithMalformedSnapshotPolicy задаёт политику для повреждённого снимка.
func WithMalformedSnapshotPolicy(policy MalformedSnapshotPolicy) Option {
	return func(opts *Options) {
		opts.MalformedPolicy = policy
	}
}

// WithWriteFailureHandler задаёт callback для неудачных записей.
func WithWriteFailureHandler(handler WriteFailureHandler) Option {
	return func(opts *Options) {
		opts.OnWriteFailure = handler
	}
}

// WithSnapshotPublisher задаёт publisher, получающий каждый сохранённый снимок.
func WithSnapshotPublisher(publisher domain.SnapshotPublisher) Option {
	return func(opts *Options) {
		opts.Publisher = publisher
	}
}

// WithMaxWriteAttempts задаёт число попыток записи снимка.
func WithMaxWriteAttempts(attempts int) Option {
	return func(opts *Options) {
		opts.MaxWriteAttempts = attempts
	}
}

// WithWriteRetryDelay задаёт базовый delay для exponential backoff.
func WithWriteRetryDelay(delay time.Duration) Option {
	return func(opts *Options) {
		opts.WriteRetryDelay = delay
	}
}

// WithWriteDebounce задаёт паузу перед записью, чтобы склеить серию мутаций.
func WithWriteDebounce(delay time.Duration) Option {
	return func(opts *Options) {
		opts.WriteDebounce = delay
	}
}

// WithTracerProvider задаёт провайдер трассировки вместо глобального.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(opts *Options) {
		opts.TracerProvider = tp
	}
}
