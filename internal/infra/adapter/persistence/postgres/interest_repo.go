package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
)

type InterestRepo struct{ db *sql.DB }

func NewInterestRepo(db *sql.DB) repository.InterestRepository {
	return &InterestRepo{db: db}
}

const interestColumns = `id, user_id, interest_in, in_normal, interest_type, search_type, item_type,
data, tags, notifications, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterest(row rowScanner) (*entity.Interest, error) {
	var in entity.Interest
	var dataJSON, tagsJSON []byte
	if err := row.Scan(
		&in.ID, &in.UserID, &in.In, &in.InNormal, &in.InterestType, &in.SearchType, &in.ItemType,
		&dataJSON, &tagsJSON, &in.Notifications, &in.CreatedAt, &in.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(dataJSON, &in.Data); err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	if err := unmarshalJSON(tagsJSON, &in.Tags); err != nil {
		return nil, fmt.Errorf("tags: %w", err)
	}
	return &in, nil
}

func (repo *InterestRepo) queryInterests(ctx context.Context, op, query string, args ...any) ([]*entity.Interest, error) {
	defer observe(op, time.Now())
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	interests := make([]*entity.Interest, 0, 16)
	for rows.Next() {
		in, err := scanInterest(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		interests = append(interests, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows.Err: %w", op, err)
	}
	return interests, nil
}

func (repo *InterestRepo) Get(ctx context.Context, id int64) (*entity.Interest, error) {
	query := `SELECT ` + interestColumns + `
FROM interests
WHERE id = $1
LIMIT 1`
	in, err := scanInterest(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return in, nil
}

func (repo *InterestRepo) FindCandidates(ctx context.Context, userID int64, interestType, inNormal string) ([]*entity.Interest, error) {
	query := `SELECT ` + interestColumns + `
FROM interests
WHERE user_id = $1 AND interest_type = $2 AND in_normal = $3
ORDER BY id ASC`
	return repo.queryInterests(ctx, "FindCandidates", query, userID, interestType, inNormal)
}

func (repo *InterestRepo) ListByUser(ctx context.Context, userID int64) ([]*entity.Interest, error) {
	query := `SELECT ` + interestColumns + `
FROM interests
WHERE user_id = $1
ORDER BY created_at DESC, id DESC`
	return repo.queryInterests(ctx, "ListByUser", query, userID)
}

func (repo *InterestRepo) ListTagFollowers(ctx context.Context, tagIDs []string) ([]*entity.Interest, error) {
	if len(tagIDs) == 0 {
		return []*entity.Interest{}, nil
	}
	query := `SELECT ` + interestColumns + `
FROM interests
WHERE interest_type = 'tag' AND interest_in = ANY($1)
ORDER BY id ASC`
	return repo.queryInterests(ctx, "ListTagFollowers", query, tagIDs)
}

func (repo *InterestRepo) Create(ctx context.Context, in *entity.Interest) error {
	const query = `
INSERT INTO interests
  (user_id, interest_in, in_normal, interest_type, search_type, item_type, data, tags, notifications, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`
	dataJSON, err := marshalJSON(in.Data, "{}")
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	tagsJSON, err := marshalJSON(in.Tags, "[]")
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	err = repo.db.QueryRowContext(ctx, query,
		in.UserID, in.In, in.InNormal, in.InterestType, in.SearchType, in.ItemType,
		dataJSON, tagsJSON, in.Notifications, in.CreatedAt, in.UpdatedAt,
	).Scan(&in.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (repo *InterestRepo) Update(ctx context.Context, in *entity.Interest) error {
	const query = `
UPDATE interests SET
  interest_in = $1, in_normal = $2, search_type = $3, item_type = $4,
  data = $5, tags = $6, notifications = $7, updated_at = $8
WHERE id = $9`
	dataJSON, err := marshalJSON(in.Data, "{}")
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	tagsJSON, err := marshalJSON(in.Tags, "[]")
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	res, err := repo.db.ExecContext(ctx, query,
		in.In, in.InNormal, in.SearchType, in.ItemType,
		dataJSON, tagsJSON, in.Notifications, in.UpdatedAt, in.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: RowsAffected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Update: %w", entity.ErrNotFound)
	}
	return nil
}

func (repo *InterestRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM interests WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}
