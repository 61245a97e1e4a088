package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
)

type DeliveryRepo struct{ db *sql.DB }

func NewDeliveryRepo(db *sql.DB) repository.DeliveryRepository {
	return &DeliveryRepo{db: db}
}

// buildDeliveryWhere renders the filter as a WHERE clause.
// Empty fields are not constrained.
func buildDeliveryWhere(f repository.DeliveryFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Mechanism != "" {
		args = append(args, f.Mechanism)
		conds = append(conds, fmt.Sprintf("mechanism = $%d", len(args)))
	}
	if f.EmailFrequency != "" {
		args = append(args, f.EmailFrequency)
		conds = append(conds, fmt.Sprintf("email_frequency = $%d", len(args)))
	}
	if f.UserID != 0 {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (repo *DeliveryRepo) Create(ctx context.Context, d *entity.Delivery) error {
	const query = `
INSERT INTO deliveries
  (user_id, user_email, user_phone, subscription_id, subscription_type, interest_id, interest_in,
   seen_through_id, mechanism, email_frequency, item, item_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id`
	itemJSON, err := marshalJSON(d.Item, "{}")
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	err = repo.db.QueryRowContext(ctx, query,
		d.UserID, d.UserEmail, d.UserPhone, d.SubscriptionID, d.SubscriptionType, d.InterestID, d.InterestIn,
		d.SeenThroughID, d.Mechanism, d.EmailFrequency, itemJSON, nullableTime(d.Item.Date), d.CreatedAt,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *DeliveryRepo) List(ctx context.Context, filter repository.DeliveryFilter) ([]*entity.Delivery, error) {
	defer observe("DeliveryRepo.List", time.Now())
	where, args := buildDeliveryWhere(filter)
	query := `
SELECT id, user_id, user_email, user_phone, subscription_id, subscription_type, interest_id, interest_in,
       seen_through_id, mechanism, email_frequency, item, created_at
FROM deliveries` + where + `
ORDER BY item_date DESC NULLS LAST, id ASC`
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	deliveries := make([]*entity.Delivery, 0, 64)
	for rows.Next() {
		var d entity.Delivery
		var itemJSON []byte
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.UserEmail, &d.UserPhone, &d.SubscriptionID, &d.SubscriptionType,
			&d.InterestID, &d.InterestIn, &d.SeenThroughID, &d.Mechanism, &d.EmailFrequency,
			&itemJSON, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		if err := unmarshalJSON(itemJSON, &d.Item); err != nil {
			return nil, fmt.Errorf("List: item: %w", err)
		}
		deliveries = append(deliveries, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows.Err: %w", err)
	}
	return deliveries, nil
}

func (repo *DeliveryRepo) Count(ctx context.Context, filter repository.DeliveryFilter) (int64, error) {
	where, args := buildDeliveryWhere(filter)
	var n int64
	if err := repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

func (repo *DeliveryRepo) CountDistinctInterests(ctx context.Context, filter repository.DeliveryFilter) (int64, error) {
	where, args := buildDeliveryWhere(filter)
	var n int64
	query := `SELECT COUNT(DISTINCT seen_through_id) FROM deliveries` + where
	if err := repo.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountDistinctInterests: %w", err)
	}
	return n, nil
}

func (repo *DeliveryRepo) DistinctUsers(ctx context.Context, filter repository.DeliveryFilter) ([]int64, error) {
	where, args := buildDeliveryWhere(filter)
	query := `SELECT DISTINCT user_id FROM deliveries` + where + ` ORDER BY user_id ASC`
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("DistinctUsers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0, 16)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("DistinctUsers: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (repo *DeliveryRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM deliveries WHERE id = ANY($1)`
	res, err := repo.db.ExecContext(ctx, query, ids)
	if err != nil {
		return 0, fmt.Errorf("DeleteByIDs: %w", err)
	}
	return res.RowsAffected()
}

func (repo *DeliveryRepo) DeleteByInterest(ctx context.Context, interestID int64) (int64, error) {
	const query = `DELETE FROM deliveries WHERE interest_id = $1 OR seen_through_id = $1`
	res, err := repo.db.ExecContext(ctx, query, interestID)
	if err != nil {
		return 0, fmt.Errorf("DeleteByInterest: %w", err)
	}
	return res.RowsAffected()
}

type ReceiptRepo struct{ db *sql.DB }

func NewReceiptRepo(db *sql.DB) repository.ReceiptRepository {
	return &ReceiptRepo{db: db}
}

func (repo *ReceiptRepo) Create(ctx context.Context, r *entity.Receipt) error {
	const query = `
INSERT INTO receipts (user_id, user_email, mechanism, email_frequency, subject, content, deliveries, delivered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	deliveriesJSON, err := marshalJSON(r.Deliveries, "[]")
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	err = repo.db.QueryRowContext(ctx, query,
		r.UserID, r.UserEmail, r.Mechanism, r.EmailFrequency, r.Subject, r.Content, deliveriesJSON, r.DeliveredAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *ReceiptRepo) ListByUser(ctx context.Context, userID int64) ([]*entity.Receipt, error) {
	const query = `
SELECT id, user_id, user_email, mechanism, email_frequency, subject, content, deliveries, delivered_at
FROM receipts
WHERE user_id = $1
ORDER BY delivered_at DESC, id DESC`
	rows, err := repo.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	defer func() { _ = rows.Close() }()

	receipts := make([]*entity.Receipt, 0, 16)
	for rows.Next() {
		var r entity.Receipt
		var deliveriesJSON []byte
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.UserEmail, &r.Mechanism, &r.EmailFrequency,
			&r.Subject, &r.Content, &deliveriesJSON, &r.DeliveredAt,
		); err != nil {
			return nil, fmt.Errorf("ListByUser: %w", err)
		}
		if err := unmarshalJSON(deliveriesJSON, &r.Deliveries); err != nil {
			return nil, fmt.Errorf("ListByUser: deliveries: %w", err)
		}
		receipts = append(receipts, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUser: rows.Err: %w", err)
	}
	return receipts, nil
}
