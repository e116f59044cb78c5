package syncx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReservationRepo struct{ DB *pgxpool.Pool }

// Reserve locks each SKU row (FOR UPDATE), decrements stock where enough is on
// hand and records a reservation per line. Items that cannot be covered, and
// items with an unknown SKU (treated as zero available), come back as
// shortfalls instead; the order itself is still accepted, so coverable items
// commit even when others fall short.
//
// Lines that already carry a reservation row are skipped, so a redelivered
// order.created cannot decrement stock twice. A concurrent redelivery racing
// past the existence check hits the reservation primary key instead, rolls
// back and retries via the partner's 500 handling.
func (r *ReservationRepo) Reserve(ctx context.Context, platform, externalID string, items []LineItem) ([]ShortfallItem, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var shortfalls []ShortfallItem
	for _, it := range items {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM reservations
				WHERE platform=$1 AND external_id=$2 AND sku=$3
			)`, platform, externalID, it.SKU).Scan(&exists); err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		var available int
		err := tx.QueryRow(ctx,
			`SELECT quantity FROM inventory WHERE sku=$1 FOR UPDATE`, it.SKU).Scan(&available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				shortfalls = append(shortfalls, ShortfallItem{SKU: it.SKU, Requested: it.Qty, Available: 0})
				continue
			}
			return nil, err
		}
		if available < it.Qty {
			shortfalls = append(shortfalls, ShortfallItem{SKU: it.SKU, Requested: it.Qty, Available: available})
			continue
		}

		if _, err := tx.Exec(ctx,
			`UPDATE inventory SET quantity = quantity - $2, last_updated = now() WHERE sku=$1`,
			it.SKU, it.Qty); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations (platform, external_id, sku, qty, status)
			VALUES ($1,$2,$3,$4,'RESERVED')`,
			platform, externalID, it.SKU, it.Qty); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return shortfalls, nil
}

// Release credits stock back for every row still RESERVED and flips it to
// RELEASED in the same transaction. A second release finds no RESERVED rows
// and does nothing, so double-cancellation cannot double-credit inventory.
func (r *ReservationRepo) Release(ctx context.Context, platform, externalID string) (released int, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT sku, qty FROM reservations
		WHERE platform=$1 AND external_id=$2 AND status='RESERVED'
		FOR UPDATE`, platform, externalID)
	if err != nil {
		return 0, err
	}
	type rec struct {
		sku string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.sku, &x.qty); err != nil {
			rows.Close()
			return 0, err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx,
			`UPDATE inventory SET quantity = quantity + $2, last_updated = now() WHERE sku=$1`,
			x.sku, x.qty); err != nil {
			return 0, err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status='RELEASED'
		WHERE platform=$1 AND external_id=$2 AND status='RESERVED'`,
		platform, externalID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(recs), nil
}
