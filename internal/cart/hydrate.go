package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
)

// hydrate однократно загружает снимок и открывает барьер ready.
func (s *Store) hydrate(ctx context.Context) {
	defer close(s.ready)

	ctx, span := s.tracer.Start(ctx, "cart.hydrate", trace.WithAttributes(
		attribute.String("cart.key", s.key),
	))
	defer span.End()

	items, outcome, err := s.loadSnapshot(ctx)
	s.metrics.RecordHydration(outcome)
	span.SetAttributes(attribute.String("cart.hydration.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Сессию могли закрыть, пока шла загрузка.
	if s.state != stateHydrating {
		return
	}

	if err != nil {
		s.state = stateFailed
		s.hydrateErr = err
		s.logger.WithError(err).WithField("outcome", outcome).Error("cart hydration failed")
		return
	}

	s.items = items
	s.state = stateReady
	s.metrics.ObserveState(items)
	s.logger.WithFields(log.Fields{
		"outcome":    outcome,
		"line_items": len(items),
	}).Info("cart hydrated")
}

func (s *Store) loadSnapshot(ctx context.Context) (domain.CartState, string, error) {
	raw, err := s.kv.Get(ctx, s.key)
	switch {
	case domain.IsNotFound(err):
		return domain.CartState{}, metrics.HydrationEmpty, nil
	case err != nil:
		return nil, metrics.HydrationLoadFailed, fmt.Errorf("%w: %w", domain.ErrSnapshotLoad, err)
	}

	if strings.TrimSpace(raw) == "" {
		return domain.CartState{}, metrics.HydrationEmpty, nil
	}

	items, err := domain.DecodeSnapshot(raw)
	if err == nil {
		return items, metrics.HydrationLoaded, nil
	}
	if !errors.Is(err, domain.ErrMalformedSnapshot) {
		return nil, metrics.HydrationLoadFailed, fmt.Errorf("%w: %w", domain.ErrSnapshotLoad, err)
	}

	if s.opts.MalformedPolicy == MalformedSurface {
		return nil, metrics.HydrationMalformedSurfaced, err
	}

	s.logger.WithError(err).Warn("discarding malformed cart snapshot, starting with empty cart")
	return domain.CartState{}, metrics.HydrationMalformedDiscarded, nil
}
