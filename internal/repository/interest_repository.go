package repository

import (
	"context"

	"scout-alerts/internal/domain/entity"
)

// InterestRepository persists interests.
// Get returns (nil, nil) when the interest does not exist.
type InterestRepository interface {
	Get(ctx context.Context, id int64) (*entity.Interest, error)
	// FindCandidates returns the user's interests with the same type and normalized subject;
	// callers apply strict data equality on top.
	FindCandidates(ctx context.Context, userID int64, interestType, inNormal string) ([]*entity.Interest, error)
	ListByUser(ctx context.Context, userID int64) ([]*entity.Interest, error)
	// ListTagFollowers returns tag interests following any of the given tag IDs.
	ListTagFollowers(ctx context.Context, tagIDs []string) ([]*entity.Interest, error)
	Create(ctx context.Context, interest *entity.Interest) error
	Update(ctx context.Context, interest *entity.Interest) error
	Delete(ctx context.Context, id int64) error
}

// UserRepository reads user accounts. Get returns (nil, nil) when missing.
type UserRepository interface {
	Get(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Create(ctx context.Context, user *entity.User) error
}

// TagRepository reads tags.
type TagRepository interface {
	Get(ctx context.Context, id int64) (*entity.Tag, error)
	ListPublicByUser(ctx context.Context, userID int64) ([]*entity.Tag, error)
	Create(ctx context.Context, tag *entity.Tag) error
}
