package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics описывает метрики HTTP API корзины.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetricsWithRegisterer регистрирует HTTP-метрики в переданном registerer.
func NewHTTPMetricsWithRegisterer(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &HTTPMetrics{
		requests: register(registerer, "cart_http_requests_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_http_requests_total",
			Help: "Total number of HTTP requests grouped by route, method and status code.",
		}, []string{"route", "method", "code"})),
		duration: register(registerer, "cart_http_request_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cart_http_request_duration_seconds",
			Help:    "HTTP request latency grouped by route and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"})),
		inFlight: register(registerer, "cart_http_requests_in_flight", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		})),
	}
}

// Instrument оборачивает обработчик маршрута route счётчиками и гистограммой.
// На nil-указателе возвращает обработчик без изменений.
func (m *HTTPMetrics) Instrument(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerInFlight(m.inFlight,
		promhttp.InstrumentHandlerDuration(m.duration.MustCurryWith(labels),
			promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels), next),
		),
	)
}
