package entity

import "time"

// Event types.
const (
	EventBackfills   = "backfills"
	EventDoubleCheck = "double_check"
	EventOrphan      = "orphaned_subscription"
)

// Event is an audit record for pipeline anomalies that were handled
// without delivering anything (backfills, vetoed matches, orphan cleanup).
type Event struct {
	ID               int64
	Type             string
	SubscriptionType string
	InterestIn       string
	Data             map[string]any
	CreatedAt        time.Time
}
