package projector

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/bison360/sync-gateway/internal/kafka"
	"github.com/bison360/sync-gateway/internal/metrics"
	"github.com/bison360/sync-gateway/internal/redisx"
	"github.com/bison360/sync-gateway/internal/syncx"
)

// Service projects the order sync stream into the Redis status cache that
// backs GET /orders/{id}. It is a read model only; Postgres stays the source
// of truth.
type Service struct {
	Cache       redisx.Cache
	ServiceName string
	Log         *zap.Logger
}

// HandleOrderEvent is mounted as the consumer handler for the order sync topic.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env syncx.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup by event id; redelivered events are skipped
	dkey := redisx.DedupKey(s.ServiceName, env.EventID)
	fresh, err := s.Cache.SetNX(ctx, dkey, "1", redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	var platform, externalID string
	var status syncx.Status

	switch env.EventType {
	case syncx.EventOrderUpserted:
		p, err := kafkax.UnwrapPayload[syncx.OrderUpsertedPayload](env.Payload)
		if err != nil {
			return err
		}
		platform, externalID, status = p.Platform, p.ExternalID, p.Status
	case syncx.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[syncx.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		platform, externalID, status = p.Platform, p.ExternalID, syncx.StatusCancelled
	default:
		// PaymentUpdated carries payment fields only, not a status change,
		// so it must not touch the status cache
		return nil
	}

	if externalID == "" || status == "" {
		return nil
	}

	body, _ := json.Marshal(map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err := s.Cache.Set(ctx, redisx.OrderStatusKey(platform, externalID), string(body), redisx.TTLStatusCache); err != nil {
		return err
	}

	metrics.SyncEventsProjectedTotal.Inc()
	s.Log.Debug("projected order status",
		zap.String("platform", platform),
		zap.String("external_id", externalID),
		zap.String("status", string(status)))
	return nil
}
