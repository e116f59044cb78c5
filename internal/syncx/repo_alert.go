package syncx

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AlertRepo struct{ DB *pgxpool.Pool }

func (r *AlertRepo) Create(ctx context.Context, a InventoryAlert) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = AlertStatusActive
	}
	items, err := json.Marshal(a.Items)
	if err != nil {
		return "", err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO inventory_alerts (id, alert_type, status, source, items)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, a.Type, a.Status, a.Source, items)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

func (r *AlertRepo) Resolve(ctx context.Context, id string) (found bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE inventory_alerts SET status=$2, resolved_at=now()
		WHERE id=$1 AND status=$3`,
		id, AlertStatusResolved, AlertStatusActive)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *AlertRepo) ListActive(ctx context.Context) ([]InventoryAlert, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, alert_type, status, source, items, created_at, resolved_at
		FROM inventory_alerts
		WHERE status=$1
		ORDER BY created_at DESC`, AlertStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InventoryAlert
	for rows.Next() {
		var (
			a     InventoryAlert
			items []byte
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Status, &a.Source, &items, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, err
		}
		if len(items) > 0 {
			if err := json.Unmarshal(items, &a.Items); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
