package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
)

type SubscriptionRepo struct{ db *sql.DB }

func NewSubscriptionRepo(db *sql.DB) repository.SubscriptionRepository {
	return &SubscriptionRepo{db: db}
}

const subscriptionColumns = `id, interest_id, user_id, subscription_type, interest_in, data, initialized, last_checked_at, created_at`

func scanSubscription(row rowScanner) (*entity.Subscription, error) {
	var sub entity.Subscription
	var dataJSON []byte
	if err := row.Scan(
		&sub.ID, &sub.InterestID, &sub.UserID, &sub.SubscriptionType, &sub.InterestIn,
		&dataJSON, &sub.Initialized, &sub.LastCheckedAt, &sub.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(dataJSON, &sub.Data); err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	return &sub, nil
}

func (repo *SubscriptionRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Subscription, error) {
	defer observe(op, time.Now())
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	// パフォーマンス最適化: 事前割り当て
	subs := make([]*entity.Subscription, 0, 64)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows.Err: %w", op, err)
	}
	return subs, nil
}

func (repo *SubscriptionRepo) Get(ctx context.Context, id int64) (*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE id = $1
LIMIT 1`
	sub, err := scanSubscription(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return sub, nil
}

func (repo *SubscriptionRepo) ListByInterest(ctx context.Context, interestID int64) ([]*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE interest_id = $1
ORDER BY id ASC`
	return repo.list(ctx, "ListByInterest", query, interestID)
}

func (repo *SubscriptionRepo) ListInitialized(ctx context.Context) ([]*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE initialized = TRUE
ORDER BY last_checked_at ASC NULLS FIRST, id ASC`
	return repo.list(ctx, "ListInitialized", query)
}

func (repo *SubscriptionRepo) ListUninitialized(ctx context.Context) ([]*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE initialized = FALSE
ORDER BY id ASC`
	return repo.list(ctx, "ListUninitialized", query)
}

func (repo *SubscriptionRepo) Create(ctx context.Context, sub *entity.Subscription) error {
	const query = `
INSERT INTO subscriptions (interest_id, user_id, subscription_type, interest_in, data, initialized, last_checked_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	dataJSON, err := marshalJSON(sub.Data, "{}")
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	err = repo.db.QueryRowContext(ctx, query,
		sub.InterestID, sub.UserID, sub.SubscriptionType, sub.InterestIn,
		dataJSON, sub.Initialized, sub.LastCheckedAt, sub.CreatedAt,
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *SubscriptionRepo) MarkInitialized(ctx context.Context, id int64, checkedAt time.Time) error {
	const query = `UPDATE subscriptions SET initialized = TRUE, last_checked_at = $1 WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, query, checkedAt, id); err != nil {
		return fmt.Errorf("MarkInitialized: %w", err)
	}
	return nil
}

func (repo *SubscriptionRepo) TouchCheckedAt(ctx context.Context, id int64, checkedAt time.Time) error {
	const query = `UPDATE subscriptions SET last_checked_at = $1 WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, query, checkedAt, id); err != nil {
		return fmt.Errorf("TouchCheckedAt: %w", err)
	}
	return nil
}

func (repo *SubscriptionRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM subscriptions WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func (repo *SubscriptionRepo) DeleteByInterest(ctx context.Context, interestID int64) error {
	const query = `DELETE FROM subscriptions WHERE interest_id = $1`
	if _, err := repo.db.ExecContext(ctx, query, interestID); err != nil {
		return fmt.Errorf("DeleteByInterest: %w", err)
	}
	return nil
}
