package entity

import "time"

// Delivery is a queued, not-yet-sent notification for one (recipient, item).
//
// InterestID is the interest that discovered the item; SeenThroughID is the
// interest the recipient receives it through. They differ only for deliveries
// fanned out to followers of a public tag.
type Delivery struct {
	ID               int64
	UserID           int64
	UserEmail        string
	UserPhone        string
	SubscriptionID   int64
	SubscriptionType string
	InterestID       int64
	InterestIn       string
	SeenThroughID    int64
	Mechanism        string
	EmailFrequency   string
	Item             SeenItem
	CreatedAt        time.Time
}

// Receipt is the write-once log of a dispatched message.
type Receipt struct {
	ID             int64
	UserID         int64
	UserEmail      string
	Mechanism      string
	EmailFrequency string
	Subject        string
	Content        string
	Deliveries     []Delivery // snapshot of the consolidated deliveries
	DeliveredAt    time.Time
}
