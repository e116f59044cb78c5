package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bison360/sync-gateway/internal/redisx"
	"github.com/bison360/sync-gateway/internal/syncx"
)

type OrderReader interface {
	Get(ctx context.Context, platform, externalID string) (syncx.ExternalOrder, error)
	List(ctx context.Context, platform string, limit int) ([]syncx.ExternalOrder, error)
}

type InventoryReader interface {
	Get(ctx context.Context, sku string) (syncx.InventoryItem, error)
	List(ctx context.Context) ([]syncx.InventoryItem, error)
}

type AlertStore interface {
	ListActive(ctx context.Context) ([]syncx.InventoryAlert, error)
	Resolve(ctx context.Context, id string) (bool, error)
}

type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]syncx.AuditEntry, error)
}

// AdminHandler serves the back-office read side: synced orders, inventory
// levels, stock alerts and the audit trail.
type AdminHandler struct {
	Platform  string // default platform for single-order lookups
	Orders    OrderReader
	Inventory InventoryReader
	Alerts    AlertStore
	Audit     AuditReader
	Cache     redisx.Cache // optional status fast path
	Log       *zap.Logger
}

func (h *AdminHandler) Register(r *chi.Mux) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/inventory", h.listInventory)
	r.Get("/inventory/{sku}", h.getInventory)
	r.Get("/alerts", h.listAlerts)
	r.Post("/alerts/{id}/resolve", h.resolveAlert)
	r.Get("/audit", h.listAudit)
}

type orderView struct {
	ID            string          `json:"id"`
	Platform      string          `json:"platform"`
	ExternalID    string          `json:"external_id"`
	OrderNumber   string          `json:"order_number,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	Status        syncx.Status     `json:"status"`
	TotalCents    int             `json:"total_cents"`
	Items         []syncx.LineItem `json:"items,omitempty"`
	PaymentStatus string          `json:"payment_status,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	SyncedAt      time.Time       `json:"synced_at"`
}

func toOrderView(o syncx.ExternalOrder) orderView {
	return orderView{
		ID:            o.ID,
		Platform:      o.Platform,
		ExternalID:    o.ExternalID,
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Status:        o.Status,
		TotalCents:    o.TotalCents,
		Items:         o.Items,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		PaymentRef:    o.PaymentRef,
		SyncedAt:      o.SyncedAt,
	}
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.Orders.List(ctx, r.URL.Query().Get("platform"), limit)
	if err != nil {
		h.Log.Error("list orders failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *AdminHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "id")
	if externalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// status fast path, refreshed by the projector
	if h.Cache != nil {
		key := redisx.OrderStatusKey(h.Platform, externalID)
		if s, ok, err := h.Cache.Get(ctx, key); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	o, err := h.Orders.Get(ctx, h.Platform, externalID)
	if err != nil {
		if errors.Is(err, syncx.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		h.Log.Error("get order failed", zap.String("external_id", externalID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	if h.Cache != nil {
		b, _ := json.Marshal(map[string]any{"status": o.Status})
		_ = h.Cache.Set(ctx, redisx.OrderStatusKey(h.Platform, externalID), string(b), redisx.TTLStatusCache)
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *AdminHandler) listInventory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Inventory.List(ctx)
	if err != nil {
		h.Log.Error("list inventory failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	views := make([]inventoryView, 0, len(items))
	for _, it := range items {
		views = append(views, inventoryView{SKU: it.SKU, Quantity: it.Quantity, LastUpdated: it.LastUpdated})
	}
	writeJSON(w, http.StatusOK, views)
}

type inventoryView struct {
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	LastUpdated time.Time `json:"last_updated"`
}

func (h *AdminHandler) getInventory(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	if sku == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing sku"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.Inventory.Get(ctx, sku)
	if err != nil {
		if errors.Is(err, syncx.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		h.Log.Error("get inventory failed", zap.String("sku", sku), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, inventoryView{SKU: it.SKU, Quantity: it.Quantity, LastUpdated: it.LastUpdated})
}

func (h *AdminHandler) listAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	alerts, err := h.Alerts.ListActive(ctx)
	if err != nil {
		h.Log.Error("list alerts failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	type alertView struct {
		ID        string               `json:"id"`
		Type      string               `json:"type"`
		Status    string               `json:"status"`
		Source    string               `json:"source"`
		Items     []syncx.ShortfallItem `json:"items"`
		CreatedAt time.Time            `json:"created_at"`
	}
	views := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, alertView{
			ID: a.ID, Type: a.Type, Status: a.Status, Source: a.Source,
			Items: a.Items, CreatedAt: a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *AdminHandler) resolveAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	found, err := h.Alerts.Resolve(ctx, id)
	if err != nil {
		h.Log.Error("resolve alert failed", zap.String("alert_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) listAudit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.Audit.ListRecent(ctx, limit)
	if err != nil {
		h.Log.Error("list audit failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	type auditView struct {
		ID        string          `json:"id"`
		Action    string          `json:"action"`
		Entity    string          `json:"entity"`
		EntityID  string          `json:"entity_id"`
		Details   string          `json:"details"`
		Actor     string          `json:"actor"`
		Metadata  json.RawMessage `json:"metadata,omitempty"`
		CreatedAt time.Time       `json:"created_at"`
	}
	views := make([]auditView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditView{
			ID: e.ID, Action: e.Action, Entity: e.Entity, EntityID: e.EntityID,
			Details: e.Details, Actor: e.Actor, Metadata: e.Metadata, CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}
