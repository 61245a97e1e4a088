package entity

import "time"

// Tag is a named collection of a user's interests. Public tags can be
// followed by other users through interests of type "tag" whose In is the tag ID.
type Tag struct {
	ID        int64
	UserID    int64
	Name      string
	Public    bool
	CreatedAt time.Time
}
