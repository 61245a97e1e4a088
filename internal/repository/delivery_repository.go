package repository

import (
	"context"

	"scout-alerts/internal/domain/entity"
)

// DeliveryFilter selects queued deliveries. Empty fields match anything.
type DeliveryFilter struct {
	Mechanism      string
	EmailFrequency string
	UserID         int64
}

// DeliveryRepository is the delivery queue.
type DeliveryRepository interface {
	Create(ctx context.Context, delivery *entity.Delivery) error
	// List returns matching deliveries ordered by item date, newest first.
	List(ctx context.Context, filter DeliveryFilter) ([]*entity.Delivery, error)
	Count(ctx context.Context, filter DeliveryFilter) (int64, error)
	// CountDistinctInterests counts the distinct seen-through interests among matching deliveries.
	CountDistinctInterests(ctx context.Context, filter DeliveryFilter) (int64, error)
	DistinctUsers(ctx context.Context, filter DeliveryFilter) ([]int64, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
	DeleteByInterest(ctx context.Context, interestID int64) (int64, error)
}

// ReceiptRepository is the append-only log of sent messages.
type ReceiptRepository interface {
	Create(ctx context.Context, receipt *entity.Receipt) error
	ListByUser(ctx context.Context, userID int64) ([]*entity.Receipt, error)
}
