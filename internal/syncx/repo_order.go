package syncx

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepo struct{ DB *pgxpool.Pool }

var ErrNotFound = errors.New("record not found")

// Upsert inserts or refreshes the row for (platform, external_id). The
// ON CONFLICT clause is the only idempotency guarantee; concurrent
// redeliveries race here and last write wins per field.
func (r *OrderRepo) Upsert(ctx context.Context, o ExternalOrder) (created bool, err error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return false, err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	var inserted bool
	err = r.DB.QueryRow(ctx, `
		INSERT INTO external_orders
			(id, platform, external_id, order_number, customer_name, customer_email,
			 status, total_cents, items, raw_payload, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (platform, external_id) DO UPDATE SET
			order_number   = EXCLUDED.order_number,
			customer_name  = EXCLUDED.customer_name,
			customer_email = EXCLUDED.customer_email,
			status         = EXCLUDED.status,
			total_cents    = EXCLUDED.total_cents,
			items          = EXCLUDED.items,
			raw_payload    = EXCLUDED.raw_payload,
			synced_at      = EXCLUDED.synced_at,
			updated_at     = now()
		RETURNING (xmax = 0)`,
		o.ID, o.Platform, o.ExternalID, o.OrderNumber, o.CustomerName, o.CustomerEmail,
		string(o.Status), o.TotalCents, items, []byte(o.RawPayload), o.SyncedAt,
	).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Update applies the provided fields to an existing order. A miss is not an
// error: webhooks for orders we never saw are benign no-ops.
func (r *OrderRepo) Update(ctx context.Context, platform, externalID string, u OrderUpdate) (found bool, err error) {
	var items []byte
	if u.Items != nil {
		if items, err = json.Marshal(u.Items); err != nil {
			return false, err
		}
	}
	var status *string
	if u.Status != nil {
		s := string(*u.Status)
		status = &s
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE external_orders SET
			status      = COALESCE($3, status),
			total_cents = COALESCE($4, total_cents),
			items       = COALESCE($5, items),
			raw_payload = COALESCE($6, raw_payload),
			synced_at   = $7,
			updated_at  = now()
		WHERE platform=$1 AND external_id=$2`,
		platform, externalID, status, u.TotalCents, items, []byte(u.RawPayload), u.SyncedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *OrderRepo) MarkCancelled(ctx context.Context, platform, externalID string) (found bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE external_orders
		SET status=$3, synced_at=now(), updated_at=now()
		WHERE platform=$1 AND external_id=$2`,
		platform, externalID, string(StatusCancelled))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *OrderRepo) UpdatePayment(ctx context.Context, platform, externalID string, p PaymentInfo) (found bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE external_orders
		SET payment_status=$3, payment_method=$4, payment_ref=$5, synced_at=now(), updated_at=now()
		WHERE platform=$1 AND external_id=$2`,
		platform, externalID, p.Status, p.Method, p.Ref)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *OrderRepo) Get(ctx context.Context, platform, externalID string) (ExternalOrder, error) {
	var (
		o      ExternalOrder
		status string
		items  []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, platform, external_id, order_number, customer_name, customer_email,
		       status, total_cents, items, raw_payload,
		       COALESCE(payment_status,''), COALESCE(payment_method,''), COALESCE(payment_ref,''),
		       synced_at, created_at, updated_at
		FROM external_orders WHERE platform=$1 AND external_id=$2`,
		platform, externalID).Scan(
		&o.ID, &o.Platform, &o.ExternalID, &o.OrderNumber, &o.CustomerName, &o.CustomerEmail,
		&status, &o.TotalCents, &items, (*[]byte)(&o.RawPayload),
		&o.PaymentStatus, &o.PaymentMethod, &o.PaymentRef,
		&o.SyncedAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExternalOrder{}, ErrNotFound
	}
	if err != nil {
		return ExternalOrder{}, err
	}
	o.Status = Status(status)
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return ExternalOrder{}, err
		}
	}
	return o, nil
}

func (r *OrderRepo) List(ctx context.Context, platform string, limit int) ([]ExternalOrder, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, platform, external_id, order_number, customer_name, customer_email,
		       status, total_cents, synced_at, created_at, updated_at
		FROM external_orders
		WHERE ($1 = '' OR platform = $1)
		ORDER BY synced_at DESC
		LIMIT $2`, platform, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExternalOrder
	for rows.Next() {
		var (
			o      ExternalOrder
			status string
		)
		if err := rows.Scan(&o.ID, &o.Platform, &o.ExternalID, &o.OrderNumber,
			&o.CustomerName, &o.CustomerEmail, &status, &o.TotalCents,
			&o.SyncedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}
