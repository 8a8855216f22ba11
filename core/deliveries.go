package core

import (
	"context"
	"strings"
	"time"
)

func (s *Service) GetDelivery(ctx context.Context, providerID, deliveryID string) (Delivery, error) {
	if s == nil || s.ingestStore == nil {
		return Delivery{}, MapError(errServiceNotConfigured)
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return Delivery{}, NewBadInputError("provider id and delivery id are required")
	}
	delivery, err := s.ingestStore.GetDelivery(ctx, providerID, deliveryID)
	if err != nil {
		return Delivery{}, s.mapError(err)
	}
	return delivery, nil
}

func (s *Service) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]Delivery, int, error) {
	if s == nil || s.deliveryStore == nil {
		return nil, 0, MapError(errServiceNotConfigured)
	}
	filter.Limit = normalizeLimit(filter.Limit)
	filter.Offset = max(filter.Offset, 0)
	deliveries, total, err := s.deliveryStore.ListDeliveries(ctx, filter)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	return deliveries, total, nil
}

// PruneDeliveries drops processed ledger rows received before the cutoff. A
// zero cutoff uses the configured retention window. Failed deliveries are
// kept for inspection.
func (s *Service) PruneDeliveries(ctx context.Context, before time.Time) (pruned int64, err error) {
	startedAt := time.Now()
	fields := map[string]any{}
	defer func() {
		fields["pruned"] = pruned
		s.observeOperation(ctx, startedAt, "prune_deliveries", err, fields)
	}()

	if s == nil || s.deliveryStore == nil {
		return 0, MapError(errServiceNotConfigured)
	}
	if before.IsZero() {
		before = s.now().Add(-s.config.Schedule.RetentionWindowDuration())
	}
	fields["before"] = before.UTC().Format(time.RFC3339)
	pruned, err = s.deliveryStore.PruneDeliveries(ctx, before.UTC())
	if err != nil {
		return 0, s.mapError(err)
	}
	return pruned, nil
}
