package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
)

type CacheRepo struct{ db *sql.DB }

func NewCacheRepo(db *sql.DB) repository.CacheRepository {
	return &CacheRepo{db: db}
}

func (repo *CacheRepo) Get(ctx context.Context, url, function, subscriptionType string) (string, bool, error) {
	const query = `
SELECT content
FROM caches
WHERE url = $1 AND function = $2 AND subscription_type = $3
LIMIT 1`
	var content string
	err := repo.db.QueryRowContext(ctx, query, url, function, subscriptionType).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("Get: %w", err)
	}
	return content, true, nil
}

func (repo *CacheRepo) Put(ctx context.Context, url, function, subscriptionType, content string) error {
	const query = `
INSERT INTO caches (url, function, subscription_type, content, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (url, function, subscription_type)
DO UPDATE SET content = EXCLUDED.content, created_at = EXCLUDED.created_at`
	if _, err := repo.db.ExecContext(ctx, query, url, function, subscriptionType, content, time.Now()); err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	return nil
}

func (repo *CacheRepo) Clear(ctx context.Context, subscriptionType string) (int64, error) {
	const query = `DELETE FROM caches WHERE subscription_type = $1`
	res, err := repo.db.ExecContext(ctx, query, subscriptionType)
	if err != nil {
		return 0, fmt.Errorf("Clear: %w", err)
	}
	return res.RowsAffected()
}

type ReportRepo struct{ db *sql.DB }

func NewReportRepo(db *sql.DB) repository.ReportRepository {
	return &ReportRepo{db: db}
}

func (repo *ReportRepo) CreateReport(ctx context.Context, r *entity.Report) error {
	const query = `
INSERT INTO reports (status, source, message, attached, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	attachedJSON, err := marshalJSON(r.Attached, "{}")
	if err != nil {
		return fmt.Errorf("CreateReport: %w", err)
	}
	if err := repo.db.QueryRowContext(ctx, query,
		r.Status, r.Source, r.Message, attachedJSON, r.CreatedAt,
	).Scan(&r.ID); err != nil {
		return fmt.Errorf("CreateReport: %w", err)
	}
	return nil
}

func (repo *ReportRepo) CreateEvent(ctx context.Context, e *entity.Event) error {
	const query = `
INSERT INTO events (type, subscription_type, interest_in, data, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	dataJSON, err := marshalJSON(e.Data, "{}")
	if err != nil {
		return fmt.Errorf("CreateEvent: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if err := repo.db.QueryRowContext(ctx, query,
		e.Type, e.SubscriptionType, e.InterestIn, dataJSON, e.CreatedAt,
	).Scan(&e.ID); err != nil {
		return fmt.Errorf("CreateEvent: %w", err)
	}
	return nil
}

func (repo *ReportRepo) ListEvents(ctx context.Context, eventType string, limit int) ([]*entity.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, type, subscription_type, interest_in, data, created_at
FROM events
WHERE type = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	rows, err := repo.db.QueryContext(ctx, query, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]*entity.Event, 0, limit)
	for rows.Next() {
		var e entity.Event
		var dataJSON []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.SubscriptionType, &e.InterestIn, &dataJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListEvents: %w", err)
		}
		if err := unmarshalJSON(dataJSON, &e.Data); err != nil {
			return nil, fmt.Errorf("ListEvents: data: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEvents: rows.Err: %w", err)
	}
	return events, nil
}
