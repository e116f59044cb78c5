package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bison360/sync-gateway/internal/syncx"
)

// ---- in-memory fakes ----

func key(platform, externalID string) string { return platform + ":" + externalID }

type fakeOrders struct {
	orders  map[string]*syncx.ExternalOrder
	upserts int
	fail    error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[string]*syncx.ExternalOrder{}}
}

func (f *fakeOrders) Upsert(_ context.Context, o syncx.ExternalOrder) (bool, error) {
	if f.fail != nil {
		return false, f.fail
	}
	f.upserts++
	k := key(o.Platform, o.ExternalID)
	_, existed := f.orders[k]
	f.orders[k] = &o
	return !existed, nil
}

func (f *fakeOrders) Update(_ context.Context, platform, externalID string, u syncx.OrderUpdate) (bool, error) {
	o, ok := f.orders[key(platform, externalID)]
	if !ok {
		return false, nil
	}
	if u.Status != nil {
		o.Status = *u.Status
	}
	if u.TotalCents != nil {
		o.TotalCents = *u.TotalCents
	}
	if u.Items != nil {
		o.Items = u.Items
	}
	o.SyncedAt = u.SyncedAt
	return true, nil
}

func (f *fakeOrders) MarkCancelled(_ context.Context, platform, externalID string) (bool, error) {
	o, ok := f.orders[key(platform, externalID)]
	if !ok {
		return false, nil
	}
	o.Status = syncx.StatusCancelled
	return true, nil
}

func (f *fakeOrders) UpdatePayment(_ context.Context, platform, externalID string, p syncx.PaymentInfo) (bool, error) {
	o, ok := f.orders[key(platform, externalID)]
	if !ok {
		return false, nil
	}
	o.PaymentStatus, o.PaymentMethod, o.PaymentRef = p.Status, p.Method, p.Ref
	return true, nil
}

type fakeInventory struct {
	levels map[string]int
	fail   error
}

func (f *fakeInventory) SetQuantities(_ context.Context, items []syncx.InventoryLevel) error {
	if f.fail != nil {
		return f.fail
	}
	for _, it := range items {
		f.levels[it.SKU] = it.Quantity
	}
	return nil
}

type fakeReservations struct {
	inv      *fakeInventory
	reserved map[string][]syncx.LineItem // key -> lines still reserved
}

func (f *fakeReservations) Reserve(_ context.Context, platform, externalID string, items []syncx.LineItem) ([]syncx.ShortfallItem, error) {
	k := key(platform, externalID)
	var shortfalls []syncx.ShortfallItem
	for _, it := range items {
		if f.hasLine(k, it.SKU) {
			continue // redelivery: line already reserved
		}
		available := f.inv.levels[it.SKU]
		if available < it.Qty {
			shortfalls = append(shortfalls, syncx.ShortfallItem{SKU: it.SKU, Requested: it.Qty, Available: available})
			continue
		}
		f.inv.levels[it.SKU] = available - it.Qty
		f.reserved[k] = append(f.reserved[k], it)
	}
	return shortfalls, nil
}

func (f *fakeReservations) Release(_ context.Context, platform, externalID string) (int, error) {
	k := key(platform, externalID)
	lines := f.reserved[k]
	for _, it := range lines {
		f.inv.levels[it.SKU] += it.Qty
	}
	delete(f.reserved, k)
	return len(lines), nil
}

func (f *fakeReservations) hasLine(k, sku string) bool {
	for _, it := range f.reserved[k] {
		if it.SKU == sku {
			return true
		}
	}
	return false
}

type fakeAlerts struct {
	created []syncx.InventoryAlert
}

func (f *fakeAlerts) Create(_ context.Context, a syncx.InventoryAlert) (string, error) {
	a.ID = "alert-1"
	f.created = append(f.created, a)
	return a.ID, nil
}

type fakeAudit struct {
	entries []syncx.AuditEntry
	fail    error
}

func (f *fakeAudit) Append(_ context.Context, e syncx.AuditEntry) error {
	if f.fail != nil {
		return f.fail
	}
	f.entries = append(f.entries, e)
	return nil
}

type fakePublisher struct {
	messages [][]byte
}

func (f *fakePublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	f.messages = append(f.messages, value)
}

type fixture struct {
	orders       *fakeOrders
	inventory    *fakeInventory
	reservations *fakeReservations
	alerts       *fakeAlerts
	audit        *fakeAudit
	orderEvents  *fakePublisher
	invEvents    *fakePublisher
	d            *Dispatcher
}

func newFixture() *fixture {
	inv := &fakeInventory{levels: map[string]int{}}
	f := &fixture{
		orders:       newFakeOrders(),
		inventory:    inv,
		reservations: &fakeReservations{inv: inv, reserved: map[string][]syncx.LineItem{}},
		alerts:       &fakeAlerts{},
		audit:        &fakeAudit{},
		orderEvents:  &fakePublisher{},
		invEvents:    &fakePublisher{},
	}
	f.d = &Dispatcher{
		Platform:        "grownby",
		Service:         "sync-gateway-test",
		Orders:          f.orders,
		Inventory:       f.inventory,
		Reservations:    f.reservations,
		Alerts:          f.alerts,
		Audit:           f.audit,
		OrderEvents:     f.orderEvents,
		InventoryEvents: f.invEvents,
		Log:             zap.NewNop(),
		Now:             func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func mustEnvelope(t *testing.T, eventType, data string) Envelope {
	t.Helper()
	env, err := DecodeEnvelope([]byte(`{"event_type":"` + eventType + `","data":` + data + `}`))
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

// ---- tests ----

func TestDispatch_OrderCreated(t *testing.T) {
	f := newFixture()
	f.inventory.levels["SKU-A"] = 10

	env := mustEnvelope(t, EventOrderCreated, `{
		"id":"ord_1","order_number":"GB-1001",
		"customer":{"name":"Ada Byrne","email":"ada@example.com"},
		"total_cents":2599,
		"items":[{"sku":"SKU-A","quantity":3,"price_cents":500}]
	}`)
	if err := f.d.Dispatch(context.Background(), "grownby-webhook", "", env); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	o, ok := f.orders.orders["grownby:ord_1"]
	if !ok {
		t.Fatal("order not upserted")
	}
	if o.Status != syncx.StatusPending {
		t.Errorf("status = %q, want pending", o.Status)
	}
	if o.CustomerEmail != "ada@example.com" || o.TotalCents != 2599 {
		t.Errorf("order fields not carried over: %+v", o)
	}
	if got := f.inventory.levels["SKU-A"]; got != 7 {
		t.Errorf("stock after reserve = %d, want 7", got)
	}
	if len(f.alerts.created) != 0 {
		t.Errorf("no alert expected, got %d", len(f.alerts.created))
	}
	if len(f.audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(f.audit.entries))
	}
	e := f.audit.entries[0]
	if e.Action != "webhook_received" || e.Entity != "grownby" || e.EntityID != "ord_1" || e.Details != EventOrderCreated {
		t.Errorf("audit entry = %+v", e)
	}
	if len(f.orderEvents.messages) != 1 {
		t.Errorf("published order events = %d, want 1", len(f.orderEvents.messages))
	}
}

func TestDispatch_OrderCreated_Idempotent(t *testing.T) {
	f := newFixture()
	f.inventory.levels["SKU-A"] = 10

	env := mustEnvelope(t, EventOrderCreated,
		`{"id":"ord_1","items":[{"sku":"SKU-A","quantity":3}]}`)
	for i := 0; i < 2; i++ {
		if err := f.d.Dispatch(context.Background(), "grownby-webhook", "", env); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}

	if len(f.orders.orders) != 1 {
		t.Errorf("order records = %d, want exactly 1", len(f.orders.orders))
	}
	if got := f.inventory.levels["SKU-A"]; got != 7 {
		t.Errorf("stock decremented twice: %d, want 7", got)
	}
}

func TestDispatch_OrderCreated_Shortfall(t *testing.T) {
	f := newFixture()
	f.inventory.levels["X"] = 5

	env := mustEnvelope(t, EventOrderCreated,
		`{"id":"ord_2","items":[{"sku":"X","quantity":10},{"sku":"Y","quantity":1}]}`)
	if err := f.d.Dispatch(context.Background(), "grownby-webhook", "", env); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(f.alerts.created) != 1 {
		t.Fatalf("alerts = %d, want 1", len(f.alerts.created))
	}
	a := f.alerts.created[0]
	if a.Type != syncx.AlertTypeInsufficientStock || a.Status != syncx.AlertStatusActive {
		t.Errorf("alert = %+v", a)
	}
	want := []syncx.ShortfallItem{
		{SKU: "X", Requested: 10, Available: 5},
		{SKU: "Y", Requested: 1, Available: 0}, // unknown SKU counts as zero on hand
	}
	if len(a.Items) != len(want) {
		t.Fatalf("shortfall items = %+v", a.Items)
	}
	for i, s := range want {
		if a.Items[i] != s {
			t.Errorf("shortfall[%d] = %+v, want %+v", i, a.Items[i], s)
		}
	}
	// shortfall is advisory, the order is still recorded
	if _, ok := f.orders.orders["grownby:ord_2"]; !ok {
		t.Error("order should be created despite shortfall")
	}
	if f.inventory.levels["X"] != 5 {
		t.Errorf("short item must not be decremented, got %d", f.inventory.levels["X"])
	}
}

func TestDispatch_OrderUpdated(t *testing.T) {
	f := newFixture()
	created := mustEnvelope(t, EventOrderCreated, `{"id":"ord_1","total_cents":100}`)
	if err := f.d.Dispatch(context.Background(), "a", "", created); err != nil {
		t.Fatal(err)
	}

	updated := mustEnvelope(t, EventOrderUpdated, `{"id":"ord_1","status":"completed","total_cents":250}`)
	if err := f.d.Dispatch(context.Background(), "a", "", updated); err != nil {
		t.Fatal(err)
	}

	o := f.orders.orders["grownby:ord_1"]
	if o.Status != syncx.StatusFulfilled {
		t.Errorf("status = %q, want fulfilled (normalized from completed)", o.Status)
	}
	if o.TotalCents != 250 {
		t.Errorf("total = %d, want 250", o.TotalCents)
	}

	// the update's publication must carry the new status so read models
	// tracking the stream stay in step with the row
	if len(f.orderEvents.messages) != 2 {
		t.Fatalf("published order events = %d, want 2", len(f.orderEvents.messages))
	}
	var env2 syncx.Envelope
	if err := json.Unmarshal(f.orderEvents.messages[1], &env2); err != nil {
		t.Fatal(err)
	}
	var p syncx.OrderUpsertedPayload
	if err := json.Unmarshal(env2.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Status != syncx.StatusFulfilled || p.TotalCents != 250 {
		t.Errorf("published payload = %+v, want status fulfilled total 250", p)
	}
}

func TestDispatch_OrderCreated_PartnerStatus(t *testing.T) {
	f := newFixture()
	env := mustEnvelope(t, EventOrderCreated, `{"id":"ord_9","status":"PAID"}`)
	if err := f.d.Dispatch(context.Background(), "a", "", env); err != nil {
		t.Fatal(err)
	}
	if got := f.orders.orders["grownby:ord_9"].Status; got != syncx.StatusPaid {
		t.Errorf("status = %q, want paid (partner-stamped, normalized)", got)
	}
}

func TestDispatch_OrderUpdated_UnknownOrderIsNoop(t *testing.T) {
	f := newFixture()
	env := mustEnvelope(t, EventOrderUpdated, `{"id":"ghost","status":"paid"}`)
	if err := f.d.Dispatch(context.Background(), "a", "", env); err != nil {
		t.Fatalf("update miss must not error: %v", err)
	}
	if len(f.orders.orders) != 0 {
		t.Error("no order should appear")
	}
	if len(f.audit.entries) != 1 {
		t.Error("no-op still gets an audit entry")
	}
}

func TestDispatch_OrderCancelled_ReleasesOnce(t *testing.T) {
	f := newFixture()
	f.inventory.levels["A"] = 5

	created := mustEnvelope(t, EventOrderCreated, `{"id":"ord_1","items":[{"sku":"A","quantity":3}]}`)
	if err := f.d.Dispatch(context.Background(), "a", "", created); err != nil {
		t.Fatal(err)
	}
	if f.inventory.levels["A"] != 2 {
		t.Fatalf("reserve failed, stock = %d", f.inventory.levels["A"])
	}

	cancelled := mustEnvelope(t, EventOrderCancelled, `{"id":"ord_1","items":[{"sku":"A","quantity":3}]}`)
	for i := 0; i < 2; i++ { // second delivery must not double-credit
		if err := f.d.Dispatch(context.Background(), "a", "", cancelled); err != nil {
			t.Fatal(err)
		}
	}

	if f.orders.orders["grownby:ord_1"].Status != syncx.StatusCancelled {
		t.Error("order not cancelled")
	}
	if got := f.inventory.levels["A"]; got != 5 {
		t.Errorf("stock after release = %d, want 5", got)
	}
}

func TestDispatch_PaymentCompleted(t *testing.T) {
	f := newFixture()
	created := mustEnvelope(t, EventOrderCreated, `{"id":"ord_1"}`)
	if err := f.d.Dispatch(context.Background(), "a", "", created); err != nil {
		t.Fatal(err)
	}

	paid := mustEnvelope(t, EventPaymentCompleted,
		`{"order_id":"ord_1","payment_status":"paid","payment_method":"card","payment_id":"pi_42"}`)
	if err := f.d.Dispatch(context.Background(), "a", "", paid); err != nil {
		t.Fatal(err)
	}

	o := f.orders.orders["grownby:ord_1"]
	if o.PaymentStatus != "paid" || o.PaymentMethod != "card" || o.PaymentRef != "pi_42" {
		t.Errorf("payment fields = %q %q %q", o.PaymentStatus, o.PaymentMethod, o.PaymentRef)
	}
}

func TestDispatch_InventoryUpdated_AbsoluteSet(t *testing.T) {
	f := newFixture()
	f.inventory.levels["A"] = 3

	env := mustEnvelope(t, EventInventoryUpdated,
		`{"items":[{"sku":"A","quantity":42},{"sku":"B","quantity":0}]}`)
	if err := f.d.Dispatch(context.Background(), "a", "", env); err != nil {
		t.Fatal(err)
	}

	if f.inventory.levels["A"] != 42 {
		t.Errorf("quantity is an absolute set, got %d", f.inventory.levels["A"])
	}
	if v, ok := f.inventory.levels["B"]; !ok || v != 0 {
		t.Errorf("zero quantity must be applied, got %d (present %v)", v, ok)
	}
	if len(f.invEvents.messages) != 1 {
		t.Errorf("inventory events = %d, want 1", len(f.invEvents.messages))
	}
}

func TestDispatch_UnknownEventType_Noop(t *testing.T) {
	f := newFixture()
	env := mustEnvelope(t, "unused.event", `{"id":"whatever"}`)
	if err := f.d.Dispatch(context.Background(), "a", "", env); err != nil {
		t.Fatalf("unknown event types must not error: %v", err)
	}
	if len(f.orders.orders) != 0 || len(f.alerts.created) != 0 {
		t.Error("unknown event must not mutate records")
	}
	if len(f.orderEvents.messages) != 0 || len(f.invEvents.messages) != 0 {
		t.Error("unknown event must not publish")
	}
	if len(f.audit.entries) != 1 {
		t.Errorf("audit entries = %d, want 1", len(f.audit.entries))
	}
}

func TestDispatch_BadShape_FailsClosed(t *testing.T) {
	f := newFixture()
	cases := []struct {
		eventType string
		data      string
	}{
		{EventOrderCreated, `{"order_number":"GB-1"}`},                  // missing id
		{EventOrderCreated, `{"id":"o","items":[{"sku":"","quantity":1}]}`}, // empty sku
		{EventOrderCreated, `{"id":"o","items":[{"sku":"A","quantity":0}]}`},
		{EventOrderCancelled, `{"items":[]}`},
		{EventPaymentCompleted, `{"payment_status":"paid"}`},
		{EventInventoryUpdated, `{"items":[]}`},
		{EventInventoryUpdated, `{"items":[{"sku":"A","quantity":-1}]}`},
		{EventInventoryUpdated, `{"items":"nope"}`},
	}
	for _, tc := range cases {
		env := mustEnvelope(t, tc.eventType, tc.data)
		err := f.d.Dispatch(context.Background(), "a", "", env)
		if !errors.Is(err, ErrBadPayload) {
			t.Errorf("%s %s: err = %v, want ErrBadPayload", tc.eventType, tc.data, err)
		}
	}
	if len(f.audit.entries) != 0 {
		t.Error("failed dispatches must not audit")
	}
}

func TestDispatch_AuditFailureSwallowed(t *testing.T) {
	f := newFixture()
	f.audit.fail = errors.New("audit db down")

	env := mustEnvelope(t, EventOrderCreated, `{"id":"ord_1"}`)
	if err := f.d.Dispatch(context.Background(), "a", "", env); err != nil {
		t.Fatalf("audit failure must not fail the dispatch: %v", err)
	}
	if _, ok := f.orders.orders["grownby:ord_1"]; !ok {
		t.Error("order write must survive audit failure")
	}
}

func TestDispatch_PublishedEnvelopeShape(t *testing.T) {
	f := newFixture()
	env := mustEnvelope(t, EventOrderCreated, `{"id":"ord_1","total_cents":700}`)
	if err := f.d.Dispatch(context.Background(), "a", "trace-9", env); err != nil {
		t.Fatal(err)
	}
	if len(f.orderEvents.messages) != 1 {
		t.Fatalf("messages = %d", len(f.orderEvents.messages))
	}

	var out syncx.Envelope
	if err := json.Unmarshal(f.orderEvents.messages[0], &out); err != nil {
		t.Fatalf("published envelope not json: %v", err)
	}
	if out.EventType != syncx.EventOrderUpserted || out.EventVersion != 1 {
		t.Errorf("envelope = %+v", out)
	}
	if out.Producer != "sync-gateway-test" || out.TraceID != "trace-9" {
		t.Errorf("producer/trace = %q %q", out.Producer, out.TraceID)
	}
	if out.CorrelationID != "grownby:ord_1" {
		t.Errorf("correlation = %q", out.CorrelationID)
	}

	var p syncx.OrderUpsertedPayload
	if err := json.Unmarshal(out.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.ExternalID != "ord_1" || p.TotalCents != 700 || !p.Created {
		t.Errorf("payload = %+v", p)
	}
}
