package repository

import (
	"context"
	"time"

	"scout-alerts/internal/domain/entity"
)

// SubscriptionRepository persists subscriptions.
// Get returns (nil, nil) when the subscription does not exist.
type SubscriptionRepository interface {
	Get(ctx context.Context, id int64) (*entity.Subscription, error)
	ListByInterest(ctx context.Context, interestID int64) ([]*entity.Subscription, error)
	// ListInitialized returns every initialized subscription, the working set of a check cycle.
	ListInitialized(ctx context.Context) ([]*entity.Subscription, error)
	// ListUninitialized returns subscriptions whose first poll has not yet succeeded.
	ListUninitialized(ctx context.Context) ([]*entity.Subscription, error)
	Create(ctx context.Context, sub *entity.Subscription) error
	MarkInitialized(ctx context.Context, id int64, checkedAt time.Time) error
	TouchCheckedAt(ctx context.Context, id int64, checkedAt time.Time) error
	Delete(ctx context.Context, id int64) error
	DeleteByInterest(ctx context.Context, interestID int64) error
}
