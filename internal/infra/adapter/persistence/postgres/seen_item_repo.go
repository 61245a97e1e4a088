package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
)

type SeenItemRepo struct{ db *sql.DB }

func NewSeenItemRepo(db *sql.DB) repository.SeenItemRepository {
	return &SeenItemRepo{db: db}
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (repo *SeenItemRepo) Exists(ctx context.Context, interestID int64, itemID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM seen_items WHERE interest_id = $1 AND item_id = $2)`
	var exists bool
	if err := repo.db.QueryRowContext(ctx, query, interestID, itemID).Scan(&exists); err != nil {
		return false, fmt.Errorf("Exists: %w", err)
	}
	return exists, nil
}

// ExistsBatch はバッチで存在チェックを行い、N+1問題を解消する
func (repo *SeenItemRepo) ExistsBatch(ctx context.Context, interestID int64, itemIDs []string) (map[string]bool, error) {
	defer observe("SeenItemRepo.ExistsBatch", time.Now())
	result := make(map[string]bool, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}
	for _, id := range itemIDs {
		result[id] = false
	}

	const query = `SELECT item_id FROM seen_items WHERE interest_id = $1 AND item_id = ANY($2)`
	rows, err := repo.db.QueryContext(ctx, query, interestID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("ExistsBatch: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ExistsBatch: Scan: %w", err)
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ExistsBatch: rows.Err: %w", err)
	}
	return result, nil
}

func (repo *SeenItemRepo) Create(ctx context.Context, item *entity.SeenItem) error {
	const query = `
INSERT INTO seen_items
  (interest_id, subscription_id, user_id, subscription_type, interest_in, interest_type, item_type,
   item_id, date, data, search_url, find_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id`
	dataJSON, err := marshalJSON(item.Data, "{}")
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	err = repo.db.QueryRowContext(ctx, query,
		item.InterestID, item.SubscriptionID, item.UserID, item.SubscriptionType, item.InterestIn,
		item.InterestType, item.ItemType, item.ItemID, nullableTime(item.Date), dataJSON,
		item.SearchURL, item.FindURL, item.CreatedAt,
	).Scan(&item.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("Create: %w", entity.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *SeenItemRepo) ListByInterest(ctx context.Context, interestID int64) ([]*entity.SeenItem, error) {
	const query = `
SELECT id, interest_id, subscription_id, user_id, subscription_type, interest_in, interest_type, item_type,
       item_id, date, data, search_url, find_url, created_at
FROM seen_items
WHERE interest_id = $1
ORDER BY date DESC NULLS LAST, id DESC`
	rows, err := repo.db.QueryContext(ctx, query, interestID)
	if err != nil {
		return nil, fmt.Errorf("ListByInterest: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]*entity.SeenItem, 0, 64)
	for rows.Next() {
		var it entity.SeenItem
		var date sql.NullTime
		var dataJSON []byte
		if err := rows.Scan(
			&it.ID, &it.InterestID, &it.SubscriptionID, &it.UserID, &it.SubscriptionType, &it.InterestIn,
			&it.InterestType, &it.ItemType, &it.ItemID, &date, &dataJSON, &it.SearchURL, &it.FindURL, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ListByInterest: %w", err)
		}
		if date.Valid {
			it.Date = date.Time
		}
		if err := unmarshalJSON(dataJSON, &it.Data); err != nil {
			return nil, fmt.Errorf("ListByInterest: data: %w", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByInterest: rows.Err: %w", err)
	}
	return items, nil
}

func (repo *SeenItemRepo) CountByInterest(ctx context.Context, interestID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM seen_items WHERE interest_id = $1`
	var n int64
	if err := repo.db.QueryRowContext(ctx, query, interestID).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountByInterest: %w", err)
	}
	return n, nil
}

func (repo *SeenItemRepo) Delete(ctx context.Context, interestID int64, itemID string) error {
	const query = `DELETE FROM seen_items WHERE interest_id = $1 AND item_id = $2`
	if _, err := repo.db.ExecContext(ctx, query, interestID, itemID); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func (repo *SeenItemRepo) DeleteBySubscription(ctx context.Context, subscriptionID int64) (int64, error) {
	const query = `DELETE FROM seen_items WHERE subscription_id = $1`
	res, err := repo.db.ExecContext(ctx, query, subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("DeleteBySubscription: %w", err)
	}
	return res.RowsAffected()
}

func (repo *SeenItemRepo) DeleteByInterest(ctx context.Context, interestID int64) (int64, error) {
	const query = `DELETE FROM seen_items WHERE interest_id = $1`
	res, err := repo.db.ExecContext(ctx, query, interestID)
	if err != nil {
		return 0, fmt.Errorf("DeleteByInterest: %w", err)
	}
	return res.RowsAffected()
}
