package syncx

import (
	"encoding/json"
	"time"
)

// LineItem is a single ordered position as delivered by the partner.
type LineItem struct {
	SKU        string `json:"sku"`
	Name       string `json:"name,omitempty"`
	Qty        int    `json:"quantity"`
	PriceCents int    `json:"price_cents,omitempty"`
}

// ExternalOrder mirrors a partner order locally. At most one row exists per
// (platform, external_id); all writes go through the upsert in OrderRepo.
type ExternalOrder struct {
	ID            string
	Platform      string
	ExternalID    string
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	Status        Status
	TotalCents    int
	Items         []LineItem
	RawPayload    json.RawMessage // original partner payload, kept for replay
	PaymentStatus string
	PaymentMethod string
	PaymentRef    string
	SyncedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderUpdate carries the partial fields of an order.updated event.
// Nil pointers / nil slices mean "not provided, leave as is".
type OrderUpdate struct {
	Status     *Status
	TotalCents *int
	Items      []LineItem
	RawPayload json.RawMessage
	SyncedAt   time.Time
}

// PaymentInfo is applied by payment.completed events.
type PaymentInfo struct {
	Status string
	Method string
	Ref    string
}

// InventoryLevel is an absolute quantity for a SKU (not a delta).
type InventoryLevel struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type InventoryItem struct {
	SKU         string
	Quantity    int
	LastUpdated time.Time
}

// ShortfallItem records one SKU whose on-hand stock could not cover an order.
type ShortfallItem struct {
	SKU       string `json:"sku"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

const (
	AlertTypeInsufficientStock = "insufficient_stock"

	AlertStatusActive   = "active"
	AlertStatusResolved = "resolved"
)

type InventoryAlert struct {
	ID         string
	Type       string
	Status     string
	Source     string // e.g. "grownby:ord_123"
	Items      []ShortfallItem
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// AuditEntry is append-only; rows are never updated or deleted.
type AuditEntry struct {
	ID        string
	Action    string
	Entity    string
	EntityID  string
	Details   string
	Actor     string
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// Reservation tracks stock taken for one order line so cancellation can
// release exactly what was reserved, once.
type Reservation struct {
	Platform   string
	ExternalID string
	SKU        string
	Qty        int
	Status     string // RESERVED | RELEASED
	CreatedAt  time.Time
}
