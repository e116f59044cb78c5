package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/bison360/sync-gateway/internal/kafka"
	"github.com/bison360/sync-gateway/internal/metrics"
	"github.com/bison360/sync-gateway/internal/syncx"
)

// Storage ports. The dispatcher never talks to the database directly so it can
// run against in-memory fakes in tests.

type OrderStore interface {
	Upsert(ctx context.Context, o syncx.ExternalOrder) (created bool, err error)
	Update(ctx context.Context, platform, externalID string, u syncx.OrderUpdate) (found bool, err error)
	MarkCancelled(ctx context.Context, platform, externalID string) (found bool, err error)
	UpdatePayment(ctx context.Context, platform, externalID string, p syncx.PaymentInfo) (found bool, err error)
}

type InventoryStore interface {
	SetQuantities(ctx context.Context, items []syncx.InventoryLevel) error
}

type ReservationStore interface {
	Reserve(ctx context.Context, platform, externalID string, items []syncx.LineItem) ([]syncx.ShortfallItem, error)
	Release(ctx context.Context, platform, externalID string) (released int, err error)
}

type AlertStore interface {
	Create(ctx context.Context, a syncx.InventoryAlert) (string, error)
}

type AuditStore interface {
	Append(ctx context.Context, e syncx.AuditEntry) error
}

// Publisher matches the async kafka producer; sends are buffered and
// fire-and-forget.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Dispatcher routes one verified partner event to exactly one handler,
// applies idempotent writes, republishes the normalized envelope and appends
// a best-effort audit entry.
type Dispatcher struct {
	Platform     string // partner name, e.g. "grownby"
	Service      string // producer stamped into outbound envelopes
	Orders       OrderStore
	Inventory    InventoryStore
	Reservations ReservationStore
	Alerts       AlertStore
	Audit        AuditStore

	OrderEvents     Publisher // optional
	InventoryEvents Publisher // optional

	Log *zap.Logger
	Now func() time.Time // tests override; defaults to time.Now
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// Dispatch must only ever be called with a signature-verified envelope.
// Unknown event types are logged and ignored; any other failure propagates so
// the HTTP layer can answer 500 and let the partner retry.
func (d *Dispatcher) Dispatch(ctx context.Context, actor, traceID string, env Envelope) error {
	var err error
	switch env.EventType {
	case EventOrderCreated:
		err = d.handleOrderCreated(ctx, traceID, env)
	case EventOrderUpdated:
		err = d.handleOrderUpdated(ctx, traceID, env)
	case EventOrderCancelled:
		err = d.handleOrderCancelled(ctx, traceID, env)
	case EventPaymentCompleted:
		err = d.handlePaymentCompleted(ctx, traceID, env)
	case EventInventoryUpdated:
		err = d.handleInventoryUpdated(ctx, traceID, env)
	default:
		d.Log.Info("ignoring unknown webhook event type",
			zap.String("platform", d.Platform),
			zap.String("event_type", env.EventType))
		metrics.WebhookEventsIgnoredTotal.Inc()
	}
	if err != nil {
		return err
	}

	d.audit(ctx, actor, env)
	return nil
}

func (d *Dispatcher) handleOrderCreated(ctx context.Context, traceID string, env Envelope) error {
	var data OrderCreatedData
	if err := decodeData(env, &data, checkOrderCreated); err != nil {
		return err
	}

	// new orders start pending unless the partner stamped an initial status
	// (GrownBy sends paid-at-creation orders); field updates stay
	// last-write-wins either way
	status := syncx.StatusPending
	if data.Status != "" {
		status = syncx.NormalizeStatus(data.Status)
	}
	created, err := d.Orders.Upsert(ctx, syncx.ExternalOrder{
		Platform:      d.Platform,
		ExternalID:    data.ID,
		OrderNumber:   data.OrderNumber,
		CustomerName:  data.Customer.Name,
		CustomerEmail: data.Customer.Email,
		Status:        status,
		TotalCents:    data.TotalCents,
		Items:         data.Items,
		RawPayload:    env.Data,
		SyncedAt:      d.now(),
	})
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", data.ID, err)
	}

	shortfalls, err := d.Reservations.Reserve(ctx, d.Platform, data.ID, data.Items)
	if err != nil {
		return fmt.Errorf("reserve stock for %s: %w", data.ID, err)
	}
	if len(shortfalls) > 0 {
		// advisory only; the order stays accepted
		alertID, err := d.Alerts.Create(ctx, syncx.InventoryAlert{
			Type:   syncx.AlertTypeInsufficientStock,
			Status: syncx.AlertStatusActive,
			Source: d.Platform + ":" + data.ID,
			Items:  shortfalls,
		})
		if err != nil {
			return fmt.Errorf("create stock alert for %s: %w", data.ID, err)
		}
		metrics.InventoryAlertsCreatedTotal.Inc()
		d.Log.Warn("insufficient stock for order",
			zap.String("external_id", data.ID),
			zap.String("alert_id", alertID),
			zap.Int("shortfall_items", len(shortfalls)))

		d.publish(d.InventoryEvents, syncx.EventStockShortfall, data.ID, traceID,
			syncx.StockShortfallPayload{Platform: d.Platform, ExternalID: data.ID, Items: shortfalls})
	}

	d.publish(d.OrderEvents, syncx.EventOrderUpserted, data.ID, traceID,
		syncx.OrderUpsertedPayload{
			Platform:   d.Platform,
			ExternalID: data.ID,
			Status:     status,
			TotalCents: data.TotalCents,
			Items:      data.Items,
			Created:    created,
		})
	return nil
}

func (d *Dispatcher) handleOrderUpdated(ctx context.Context, traceID string, env Envelope) error {
	var data OrderUpdatedData
	if err := decodeData(env, &data, checkOrderUpdated); err != nil {
		return err
	}

	upd := syncx.OrderUpdate{
		Items:      data.Items,
		TotalCents: data.TotalCents,
		RawPayload: env.Data,
		SyncedAt:   d.now(),
	}
	if data.Status != nil {
		s := syncx.NormalizeStatus(*data.Status)
		upd.Status = &s
	}
	found, err := d.Orders.Update(ctx, d.Platform, data.ID, upd)
	if err != nil {
		return fmt.Errorf("update order %s: %w", data.ID, err)
	}
	if !found {
		// update for an order we never ingested: benign no-op
		d.Log.Info("order.updated for unknown order", zap.String("external_id", data.ID))
		return nil
	}

	// the published status drives the projector's read cache; an empty status
	// means unchanged and leaves the cached value alone
	payload := syncx.OrderUpsertedPayload{Platform: d.Platform, ExternalID: data.ID, Items: data.Items}
	if upd.Status != nil {
		payload.Status = *upd.Status
	}
	if data.TotalCents != nil {
		payload.TotalCents = *data.TotalCents
	}
	d.publish(d.OrderEvents, syncx.EventOrderUpserted, data.ID, traceID, payload)
	return nil
}

func (d *Dispatcher) handleOrderCancelled(ctx context.Context, traceID string, env Envelope) error {
	var data OrderCancelledData
	if err := decodeData(env, &data, checkOrderCancelled); err != nil {
		return err
	}

	found, err := d.Orders.MarkCancelled(ctx, d.Platform, data.ID)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", data.ID, err)
	}
	if !found {
		d.Log.Info("order.cancelled for unknown order", zap.String("external_id", data.ID))
	}

	// releases only rows still RESERVED, so a redelivered cancellation
	// cannot credit stock twice
	released, err := d.Reservations.Release(ctx, d.Platform, data.ID)
	if err != nil {
		return fmt.Errorf("release stock for %s: %w", data.ID, err)
	}
	if released > 0 {
		d.Log.Info("released reserved stock",
			zap.String("external_id", data.ID), zap.Int("lines", released))
	}

	d.publish(d.OrderEvents, syncx.EventOrderCancelled, data.ID, traceID,
		syncx.OrderCancelledPayload{Platform: d.Platform, ExternalID: data.ID})
	return nil
}

func (d *Dispatcher) handlePaymentCompleted(ctx context.Context, traceID string, env Envelope) error {
	var data PaymentCompletedData
	if err := decodeData(env, &data, checkPaymentCompleted); err != nil {
		return err
	}

	status := data.PaymentStatus
	if status == "" {
		status = "completed"
	}
	found, err := d.Orders.UpdatePayment(ctx, d.Platform, data.OrderID, syncx.PaymentInfo{
		Status: status,
		Method: data.PaymentMethod,
		Ref:    data.PaymentID,
	})
	if err != nil {
		return fmt.Errorf("update payment for %s: %w", data.OrderID, err)
	}
	if !found {
		d.Log.Info("payment.completed for unknown order", zap.String("external_id", data.OrderID))
		return nil
	}

	d.publish(d.OrderEvents, syncx.EventPaymentUpdated, data.OrderID, traceID,
		syncx.PaymentUpdatedPayload{
			Platform:      d.Platform,
			ExternalID:    data.OrderID,
			PaymentStatus: status,
			PaymentMethod: data.PaymentMethod,
			PaymentRef:    data.PaymentID,
		})
	return nil
}

func (d *Dispatcher) handleInventoryUpdated(ctx context.Context, traceID string, env Envelope) error {
	var data InventoryUpdatedData
	if err := decodeData(env, &data, checkInventoryUpdated); err != nil {
		return err
	}

	if err := d.Inventory.SetQuantities(ctx, data.Items); err != nil {
		return fmt.Errorf("set inventory levels: %w", err)
	}

	d.publish(d.InventoryEvents, syncx.EventInventorySet, "", traceID,
		syncx.InventorySetPayload{Items: data.Items})
	return nil
}

func (d *Dispatcher) publish(p Publisher, eventType, externalID, traceID string, payload any) {
	if p == nil {
		return
	}
	ev := syncx.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    d.now(),
		Producer:      d.Service,
		TraceID:       traceID,
		CorrelationID: d.Platform + ":" + externalID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(syncx.PartitionKey(d.Platform, externalID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	metrics.SyncEventsPublishedTotal.Inc()
}

// audit is best-effort: a failed write is logged and swallowed so it can
// never change the response already owed to the partner.
func (d *Dispatcher) audit(ctx context.Context, actor string, env Envelope) {
	entry := syncx.AuditEntry{
		Action:   "webhook_received",
		Entity:   d.Platform,
		EntityID: entityID(env),
		Details:  env.EventType,
		Actor:    actor,
		Metadata: kafkax.MustMarshal(map[string]any{
			"event_type": env.EventType,
			"data":       env.Data,
		}),
	}
	if err := d.Audit.Append(ctx, entry); err != nil {
		d.Log.Error("audit log write failed",
			zap.String("event_type", env.EventType),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err))
	}
}
