package repository

import (
	"context"

	"scout-alerts/internal/domain/entity"
)

// CacheRepository stores raw provider responses keyed by
// (url, function, subscription type). Entries never expire;
// Clear drops every entry of one subscription type.
type CacheRepository interface {
	Get(ctx context.Context, url, function, subscriptionType string) (content string, found bool, err error)
	Put(ctx context.Context, url, function, subscriptionType, content string) error
	Clear(ctx context.Context, subscriptionType string) (int64, error)
}

// ReportRepository persists operator reports and pipeline events.
type ReportRepository interface {
	CreateReport(ctx context.Context, report *entity.Report) error
	CreateEvent(ctx context.Context, event *entity.Event) error
	ListEvents(ctx context.Context, eventType string, limit int) ([]*entity.Event, error)
}
