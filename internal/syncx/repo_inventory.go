package syncx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InventoryRepo struct{ DB *pgxpool.Pool }

// SetQuantities applies absolute levels for every SKU in one transaction, so a
// mid-batch failure leaves no partially applied update behind.
func (r *InventoryRepo) SetQuantities(ctx context.Context, items []InventoryLevel) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO inventory (sku, quantity, last_updated)
			VALUES ($1, $2, now())
			ON CONFLICT (sku) DO UPDATE SET
				quantity = EXCLUDED.quantity,
				last_updated = now()`,
			it.SKU, it.Quantity); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *InventoryRepo) Get(ctx context.Context, sku string) (InventoryItem, error) {
	var it InventoryItem
	err := r.DB.QueryRow(ctx,
		`SELECT sku, quantity, last_updated FROM inventory WHERE sku=$1`, sku).
		Scan(&it.SKU, &it.Quantity, &it.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return InventoryItem{}, ErrNotFound
	}
	return it, err
}

func (r *InventoryRepo) List(ctx context.Context) ([]InventoryItem, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT sku, quantity, last_updated FROM inventory ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InventoryItem
	for rows.Next() {
		var it InventoryItem
		if err := rows.Scan(&it.SKU, &it.Quantity, &it.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
