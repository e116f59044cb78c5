package syncx

import (
	"encoding/json"
	"time"
)

// Internal event types republished on Kafka after a partner webhook is applied.
const (
	EventOrderUpserted  = "OrderUpserted"
	EventOrderCancelled = "OrderCancelled"
	EventPaymentUpdated = "PaymentUpdated"
	EventInventorySet   = "InventorySet"
	EventStockShortfall = "StockShortfall"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g. "sync-gateway"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // platform:external_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload per event type ----

type OrderUpsertedPayload struct {
	Platform   string     `json:"platform"`
	ExternalID string     `json:"external_id"`
	Status     Status     `json:"status,omitempty"` // empty when the update left it unchanged
	TotalCents int        `json:"total_cents"`
	Items      []LineItem `json:"items,omitempty"`
	Created    bool       `json:"created"` // false on idempotent redelivery
}

type OrderCancelledPayload struct {
	Platform   string `json:"platform"`
	ExternalID string `json:"external_id"`
}

type PaymentUpdatedPayload struct {
	Platform      string `json:"platform"`
	ExternalID    string `json:"external_id"`
	PaymentStatus string `json:"payment_status"`
	PaymentMethod string `json:"payment_method,omitempty"`
	PaymentRef    string `json:"payment_ref,omitempty"`
}

type InventorySetPayload struct {
	Items []InventoryLevel `json:"items"`
}

type StockShortfallPayload struct {
	Platform   string          `json:"platform"`
	ExternalID string          `json:"external_id"`
	Items      []ShortfallItem `json:"items"`
}
