package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bison360/sync-gateway/internal/syncx"
)

// Partner event types. The set is closed; anything else is a
// forward-compatible no-op, not an error.
const (
	EventOrderCreated     = "order.created"
	EventOrderUpdated     = "order.updated"
	EventOrderCancelled   = "order.cancelled"
	EventPaymentCompleted = "payment.completed"
	EventInventoryUpdated = "inventory.updated"
)

// ErrBadPayload marks client-side parse failures: bodies that are not JSON,
// envelopes without an event type, or a known event type whose data has the
// wrong shape. Handlers map it to 400.
var ErrBadPayload = errors.New("malformed webhook payload")

// Envelope is the outer shape of every delivery: {"event_type": ..., "data": {...}}.
// Data stays raw until the event type picks the variant to decode into.
type Envelope struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// DecodeEnvelope parses the raw request body. Unknown event types pass
// through; a missing event_type or data fails closed.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("%w: missing event_type", ErrBadPayload)
	}
	if len(env.Data) == 0 {
		return Envelope{}, fmt.Errorf("%w: missing data", ErrBadPayload)
	}
	return env, nil
}

// ---- per-type payload variants ----

type CustomerData struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type OrderCreatedData struct {
	ID          string          `json:"id"`
	OrderNumber string          `json:"order_number"`
	Customer    CustomerData    `json:"customer"`
	Status      string          `json:"status"`
	TotalCents  int             `json:"total_cents"`
	Items       []syncx.LineItem `json:"items"`
}

type OrderUpdatedData struct {
	ID         string          `json:"id"`
	Status     *string         `json:"status"`
	TotalCents *int            `json:"total_cents"`
	Items      []syncx.LineItem `json:"items"`
}

type OrderCancelledData struct {
	ID    string          `json:"id"`
	Items []syncx.LineItem `json:"items"`
}

type PaymentCompletedData struct {
	OrderID       string `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method"`
	PaymentID     string `json:"payment_id"`
}

type InventoryUpdatedData struct {
	Items []syncx.InventoryLevel `json:"items"`
}

// decodeData unmarshals env.Data into the variant for a known event type and
// validates its required fields, failing closed on a bad shape.
func decodeData[T any](env Envelope, out *T, check func(T) error) error {
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrBadPayload, env.EventType, err)
	}
	if err := check(*out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, env.EventType, err)
	}
	return nil
}

func requireOrderID(id string) error {
	if id == "" {
		return errors.New("missing order id")
	}
	return nil
}

func checkOrderCreated(d OrderCreatedData) error {
	if err := requireOrderID(d.ID); err != nil {
		return err
	}
	for _, it := range d.Items {
		if it.SKU == "" || it.Qty <= 0 {
			return fmt.Errorf("invalid line item sku=%q qty=%d", it.SKU, it.Qty)
		}
	}
	return nil
}

func checkOrderUpdated(d OrderUpdatedData) error   { return requireOrderID(d.ID) }
func checkOrderCancelled(d OrderCancelledData) error { return requireOrderID(d.ID) }

func checkPaymentCompleted(d PaymentCompletedData) error {
	if d.OrderID == "" {
		return errors.New("missing order_id")
	}
	return nil
}

func checkInventoryUpdated(d InventoryUpdatedData) error {
	if len(d.Items) == 0 {
		return errors.New("missing items")
	}
	for _, it := range d.Items {
		if it.SKU == "" || it.Quantity < 0 {
			return fmt.Errorf("invalid level sku=%q quantity=%d", it.SKU, it.Quantity)
		}
	}
	return nil
}

// entityID pulls the partner identifier out of any data blob for audit
// purposes; "unknown" when the shape carries none.
func entityID(env Envelope) string {
	var probe struct {
		ID      string `json:"id"`
		OrderID string `json:"order_id"`
	}
	_ = json.Unmarshal(env.Data, &probe)
	switch {
	case probe.ID != "":
		return probe.ID
	case probe.OrderID != "":
		return probe.OrderID
	default:
		return "unknown"
	}
}
