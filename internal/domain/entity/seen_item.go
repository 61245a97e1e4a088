package entity

import "time"

// SeenItem records that an interest has observed a provider item.
// (InterestID, ItemID) is unique; rows are never mutated.
//
// Adapters also return SeenItem values from Parse before they are persisted,
// so the same type doubles as the parsed provider item.
type SeenItem struct {
	ID               int64
	InterestID       int64
	SubscriptionID   int64
	UserID           int64
	SubscriptionType string
	InterestIn       string
	InterestType     string
	ItemType         string
	ItemID           string
	Date             time.Time
	Data             map[string]any
	SearchURL        string
	FindURL          string
	CreatedAt        time.Time
}

// AssignTo stamps the item with its originating subscription.
func (s *SeenItem) AssignTo(sub *Subscription) {
	s.SubscriptionID = sub.ID
	s.SubscriptionType = sub.SubscriptionType
	s.InterestID = sub.InterestID
	s.UserID = sub.UserID
	s.InterestIn = sub.InterestIn
}

// DataString returns Data[key] when it holds a string.
func (s *SeenItem) DataString(key string) string {
	if s.Data == nil {
		return ""
	}
	if v, ok := s.Data[key].(string); ok {
		return v
	}
	return ""
}

// Copy returns a shallow copy with a copied Data map, suitable for
// embedding as a snapshot in deliveries and receipts.
func (s *SeenItem) Copy() SeenItem {
	cp := *s
	if s.Data != nil {
		cp.Data = make(map[string]any, len(s.Data))
		for k, v := range s.Data {
			cp.Data[k] = v
		}
	}
	return cp
}
