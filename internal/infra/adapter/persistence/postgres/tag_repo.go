package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
)

type TagRepo struct{ db *sql.DB }

func NewTagRepo(db *sql.DB) repository.TagRepository {
	return &TagRepo{db: db}
}

func (repo *TagRepo) Get(ctx context.Context, id int64) (*entity.Tag, error) {
	const query = `
SELECT id, user_id, name, public, created_at
FROM tags
WHERE id = $1
LIMIT 1`
	var tag entity.Tag
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&tag.ID, &tag.UserID, &tag.Name, &tag.Public, &tag.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &tag, nil
}

func (repo *TagRepo) ListPublicByUser(ctx context.Context, userID int64) ([]*entity.Tag, error) {
	const query = `
SELECT id, user_id, name, public, created_at
FROM tags
WHERE user_id = $1 AND public = TRUE
ORDER BY name ASC`
	rows, err := repo.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListPublicByUser: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tags := make([]*entity.Tag, 0, 8)
	for rows.Next() {
		var tag entity.Tag
		if err := rows.Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.Public, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListPublicByUser: %w", err)
		}
		tags = append(tags, &tag)
	}
	return tags, rows.Err()
}

func (repo *TagRepo) Create(ctx context.Context, tag *entity.Tag) error {
	const query = `
INSERT INTO tags (user_id, name, public, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query, tag.UserID, tag.Name, tag.Public, tag.CreatedAt).Scan(&tag.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("Create: %w", entity.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}
