package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetrics_Instrument(t *testing.T) {
	m := NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())

	handler := m.Instrument("/v1/cart", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for range 3 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/cart", nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/v1/cart", "get", "418")); got != 3 {
		t.Fatalf("expected 3 requests, got %v", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Fatalf("expected one duration series, got %d", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("expected no in-flight requests, got %v", got)
	}
}

func TestHTTPMetrics_NilInstrumentIsPassthrough(t *testing.T) {
	var m *HTTPMetrics
	called := false
	handler := m.Instrument("/x", http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	if !called {
		t.Fatal("nil metrics must pass requests through")
	}
}
