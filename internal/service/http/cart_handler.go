// Package httpsvc отдаёт корзину через HTTP JSON API.
package httpsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cartsync/internal/cart"
	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
)

const (
	defaultRequestTimeout = 5 * time.Second
	maxRequestBodyBytes   = 1 << 20

	headerRequestID = "X-Request-ID"
)

// Cart описывает операции корзины, нужные HTTP слою.
type Cart interface {
	Products(ctx context.Context) (domain.CartState, error)
	AddToCart(ctx context.Context, product domain.Product) error
	Increment(ctx context.Context, id string) error
	Decrement(ctx context.Context, id string) error
}

// CartResponse представляет корзину в ответах API.
type CartResponse struct {
	Items         []domain.LineItem `json:"items"`
	LineItems     int               `json:"line_items"`
	TotalQuantity int               `json:"total_quantity"`
}

// ErrorResponse описывает тело ответа с ошибкой.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler реализует HTTP API корзины.
type Handler struct {
	cart    Cart
	logger  *log.Entry
	metrics *metrics.HTTPMetrics
	timeout time.Duration
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics включает HTTP-метрики.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithRequestTimeout ограничивает время обработки запроса, включая ожидание гидрации.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// NewHandler конструирует обработчик поверх корзины.
func NewHandler(c Cart, opts ...Option) *Handler {
	h := &Handler{
		cart:    c,
		logger:  log.WithField("component", "cart-http"),
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register вешает маршруты API на mux.
func (h *Handler) Register(mux *http.ServeMux) {
	h.route(mux, "GET /v1/cart", h.getCart)
	h.route(mux, "POST /v1/cart/items", h.addItem)
	h.route(mux, "POST /v1/cart/items/{id}/increment", h.increment)
	h.route(mux, "POST /v1/cart/items/{id}/decrement", h.decrement)
}

func (h *Handler) route(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	_, path, _ := strings.Cut(pattern, " ")
	mux.Handle(pattern, h.metrics.Instrument(path, h.withRequestContext(fn)))
}

// withRequestContext проставляет request id, таймаут и логирует запрос.
func (h *Handler) withRequestContext(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)

		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		start := time.Now()
		next(w, r.WithContext(withRequestID(ctx, requestID)))

		h.logger.WithFields(log.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("http request served")
	}
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.respondWithCart(w, r, http.StatusOK)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	var product domain.Product
	if err := json.NewDecoder(r.Body).Decode(&product); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	product.ID = strings.TrimSpace(product.ID)

	if err := h.cart.AddToCart(r.Context(), product); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondWithCart(w, r, http.StatusOK)
}

func (h *Handler) increment(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Increment(r.Context(), r.PathValue("id")); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondWithCart(w, r, http.StatusOK)
}

func (h *Handler) decrement(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Decrement(r.Context(), r.PathValue("id")); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondWithCart(w, r, http.StatusOK)
}

func (h *Handler) respondWithCart(w http.ResponseWriter, r *http.Request, status int) {
	items, err := h.cart.Products(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if items == nil {
		items = domain.CartState{}
	}

	writeJSON(w, status, CartResponse{
		Items:         items,
		LineItems:     len(items),
		TotalQuantity: items.TotalQuantity(),
	})
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	entry := h.logger.WithError(err).WithFields(log.Fields{
		"request_id": requestIDFrom(r.Context()),
		"status":     status,
	})
	if status >= http.StatusInternalServerError {
		entry.Warn("cart request failed")
	} else {
		entry.Debug("cart request rejected")
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeError(w, r, status, msg)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		RequestID: requestIDFrom(r.Context()),
	})
}

// statusFromError сопоставляет доменные ошибки HTTP-статусам.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrItemIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotInitialized),
		errors.Is(err, cart.ErrStoreClosed),
		errors.Is(err, domain.ErrSnapshotLoad),
		errors.Is(err, domain.ErrMalformedSnapshot):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
