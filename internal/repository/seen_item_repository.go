package repository

import (
	"context"

	"scout-alerts/internal/domain/entity"
)

// SeenItemRepository is the dedup store. (interest_id, item_id) is unique;
// Create returns entity.ErrDuplicate when the pair already exists.
type SeenItemRepository interface {
	Exists(ctx context.Context, interestID int64, itemID string) (bool, error)
	// ExistsBatch checks several item IDs for one interest in one round trip.
	// Every requested ID is present in the returned map.
	ExistsBatch(ctx context.Context, interestID int64, itemIDs []string) (map[string]bool, error)
	Create(ctx context.Context, item *entity.SeenItem) error
	ListByInterest(ctx context.Context, interestID int64) ([]*entity.SeenItem, error)
	CountByInterest(ctx context.Context, interestID int64) (int64, error)
	// Delete removes one (interest, item) pair so a later check sees the item as new.
	Delete(ctx context.Context, interestID int64, itemID string) error
	DeleteBySubscription(ctx context.Context, subscriptionID int64) (int64, error)
	DeleteByInterest(ctx context.Context, interestID int64) (int64, error)
}
