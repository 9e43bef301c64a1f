package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// Результаты записи снимка.
const (
	WriteResultSaved      = "saved"
	WriteResultRetryError = "retry_error"
	WriteResultFailed     = "failed"
	WriteResultCoalesced  = "coalesced"
)

// Исходы гидрации.
const (
	HydrationLoaded             = "loaded"
	HydrationEmpty              = "empty"
	HydrationMalformedDiscarded = "malformed_discarded"
	HydrationMalformedSurfaced  = "malformed_surfaced"
	HydrationLoadFailed         = "load_failed"
)

// CartMetrics содержит метрики корзины и её синхронизации с хранилищем.
// Все методы безопасно вызывать на nil-указателе.
type CartMetrics struct {
	mutations     *prometheus.CounterVec
	writes        *prometheus.CounterVec
	writeDuration prometheus.Histogram
	hydrations    *prometheus.CounterVec
	lineItems     prometheus.Gauge
	units         prometheus.Gauge
}

// NewCartMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCartMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		mutations: register(registerer, "cart_mutations_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Total number of cart mutations grouped by operation.",
		}, []string{"op"})),
		writes: register(registerer, "cart_snapshot_writes_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_snapshot_writes_total",
			Help: "Total number of snapshot write attempts grouped by result.",
		}, []string{"result"})),
		writeDuration: register(registerer, "cart_snapshot_write_duration_seconds", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cart_snapshot_write_duration_seconds",
			Help:    "Duration of a single snapshot write in seconds.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		})),
		hydrations: register(registerer, "cart_hydrations_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_hydrations_total",
			Help: "Total number of cart hydrations grouped by outcome.",
		}, []string{"outcome"})),
		lineItems: register(registerer, "cart_line_items", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_line_items",
			Help: "Current number of line items in the cart.",
		})),
		units: register(registerer, "cart_units", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_units",
			Help: "Current total quantity across all line items.",
		})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, name string, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

// RecordMutation увеличивает счётчик мутаций по операции.
func (m *CartMetrics) RecordMutation(op domain.CartOp) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(string(op)).Inc()
}

// RecordWrite увеличивает счётчик записей по результату.
func (m *CartMetrics) RecordWrite(result string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(result).Inc()
}

// RecordWriteDuration записывает длительность одной записи.
func (m *CartMetrics) RecordWriteDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.writeDuration.Observe(duration.Seconds())
}

// RecordHydration фиксирует исход гидрации.
func (m *CartMetrics) RecordHydration(outcome string) {
	if m == nil {
		return
	}
	m.hydrations.WithLabelValues(outcome).Inc()
}

// ObserveState обновляет gauge-метрики по текущему состоянию.
func (m *CartMetrics) ObserveState(state domain.CartState) {
	if m == nil {
		return
	}
	m.lineItems.Set(float64(len(state)))
	m.units.Set(float64(state.TotalQuantity()))
}
