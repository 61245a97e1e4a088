package entity

import "time"

// User is the account that owns interests and receives deliveries.
// Authentication lives outside this module; only the fields the
// delivery pipeline reads are modeled here.
type User struct {
	ID             int64
	Email          string
	Phone          string
	PhoneConfirmed bool
	Confirmed      bool
	Username       string
	// Notifications is the account-wide default (none, email_daily, email_immediate, sms).
	Notifications string
	CreatedAt     time.Time
}

// ResolveNotifications returns the effective preference for interest:
// the interest override when set, otherwise the user default.
func (u *User) ResolveNotifications(interest *Interest) string {
	if interest != nil && interest.Notifications != "" {
		return interest.Notifications
	}
	if u.Notifications == "" {
		return NotificationsNone
	}
	return u.Notifications
}

// CanReceiveSMS reports whether the user has a confirmed phone number.
func (u *User) CanReceiveSMS() bool {
	return u.Phone != "" && u.PhoneConfirmed
}
