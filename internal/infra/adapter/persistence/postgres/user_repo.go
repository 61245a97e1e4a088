package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
)

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) repository.UserRepository {
	return &UserRepo{db: db}
}

func (repo *UserRepo) get(ctx context.Context, op, where string, arg any) (*entity.User, error) {
	query := `
SELECT id, email, phone, phone_confirmed, confirmed, username, notifications, created_at
FROM users
WHERE ` + where + `
LIMIT 1`
	var u entity.User
	err := repo.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Phone, &u.PhoneConfirmed, &u.Confirmed,
		&u.Username, &u.Notifications, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

func (repo *UserRepo) Get(ctx context.Context, id int64) (*entity.User, error) {
	return repo.get(ctx, "Get", "id = $1", id)
}

func (repo *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return repo.get(ctx, "GetByEmail", "email = $1", email)
}

func (repo *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const query = `
INSERT INTO users (email, phone, phone_confirmed, confirmed, username, notifications, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		u.Email, u.Phone, u.PhoneConfirmed, u.Confirmed, u.Username, u.Notifications, u.CreatedAt,
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("Create: %w", entity.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}
