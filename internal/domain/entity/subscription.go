package entity

import "time"

// Subscription is one provider-specific polling unit under an interest.
type Subscription struct {
	ID               int64
	InterestID       int64
	UserID           int64
	SubscriptionType string // provider type, e.g. "federal_bills"
	InterestIn       string
	Data             map[string]string
	Initialized      bool
	LastCheckedAt    *time.Time
	CreatedAt        time.Time
}

// Query returns the search query of the subscription, falling back to InterestIn.
func (s *Subscription) Query() string {
	if q := s.Data["query"]; q != "" {
		return q
	}
	return s.InterestIn
}
