package entity

import (
	"fmt"
	"strings"
	"time"
)

// Interest types.
const (
	InterestTypeSearch = "search"
	InterestTypeItem   = "item"
	InterestTypeFeed   = "feed"
	InterestTypeTag    = "tag"
)

// Notification preferences stored on users and (optionally) on interests.
const (
	NotificationsNone           = "none"
	NotificationsEmailDaily     = "email_daily"
	NotificationsEmailImmediate = "email_immediate"
	NotificationsSMS            = "sms"
)

// Delivery mechanisms and email frequencies.
const (
	MechanismEmail = "email"
	MechanismSMS   = "sms"

	FrequencyImmediate = "immediate"
	FrequencyDaily     = "daily"
)

// SearchTypeAll subscribes a search interest to every search-capable provider.
const SearchTypeAll = "all"

// reservedDataKeys are data keys that describe the subject itself rather than a filter.
var reservedDataKeys = map[string]bool{
	"query":      true,
	"query_type": true,
	"url":        true,
	"title":      true,
}

// Interest is a user's subject of attention: a search query, a specific item,
// an external feed, or another user's public tag.
//
// An interest owns its subscriptions, seen items and deliveries; they are
// referenced by InterestID and removed together with it.
type Interest struct {
	ID           int64
	UserID       int64
	In           string // subject: query string, item id, feed URL or tag id
	InNormal     string // normalized subject used for uniqueness
	InterestType string // search, item, feed, tag
	SearchType   string // provider type or "all" (search interests only)
	ItemType     string // e.g. "bill" (item interests only)
	Data         map[string]string
	Tags         []string
	// Notifications overrides the owner's default when non-empty.
	Notifications string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks required fields and fills InNormal.
func (i *Interest) Validate() error {
	if i.UserID == 0 {
		return &ValidationError{Field: "user_id", Message: "user is required"}
	}
	if strings.TrimSpace(i.In) == "" {
		return &ValidationError{Field: "in", Message: "subject is required"}
	}
	switch i.InterestType {
	case InterestTypeSearch, InterestTypeItem, InterestTypeFeed, InterestTypeTag:
	default:
		return &ValidationError{
			Field:   "interest_type",
			Message: fmt.Sprintf("unknown interest type %q", i.InterestType),
		}
	}
	if i.InterestType == InterestTypeSearch && i.SearchType == "" {
		return &ValidationError{Field: "search_type", Message: "search interests need a search type"}
	}
	if i.InterestType == InterestTypeItem && i.ItemType == "" {
		return &ValidationError{Field: "item_type", Message: "item interests need an item type"}
	}
	if i.Notifications != "" && !validNotifications(i.Notifications) {
		return &ValidationError{
			Field:   "notifications",
			Message: fmt.Sprintf("unknown notification setting %q", i.Notifications),
		}
	}
	i.InNormal = NormalizeIn(i.In)
	return nil
}

// IsSearch reports whether the interest is a search query.
func (i *Interest) IsSearch() bool { return i.InterestType == InterestTypeSearch }

// IsItem reports whether the interest follows a single item.
func (i *Interest) IsItem() bool { return i.InterestType == InterestTypeItem }

// IsFeed reports whether the interest follows an external feed.
func (i *Interest) IsFeed() bool { return i.InterestType == InterestTypeFeed }

// IsTag reports whether the interest follows another user's public tag.
func (i *Interest) IsTag() bool { return i.InterestType == InterestTypeTag }

// Filters returns the filter portion of Data (everything that is not the subject).
func (i *Interest) Filters() map[string]string {
	filters := make(map[string]string)
	if !i.IsSearch() {
		return filters
	}
	for k, v := range i.Data {
		if reservedDataKeys[k] || v == "" {
			continue
		}
		filters[k] = v
	}
	return filters
}

// HasTag reports whether the interest carries the given tag name.
func (i *Interest) HasTag(name string) bool {
	name = NormalizeTag(name)
	for _, t := range i.Tags {
		if NormalizeTag(t) == name {
			return true
		}
	}
	return false
}

// SameData reports strict equality between the interest data and data:
// same keys, same values, no extra or missing keys.
func (i *Interest) SameData(data map[string]string) bool {
	return sameStrings(i.Data, data)
}

// SameFilters is SameData restricted to the filter portion of Data, so that
// the subject keys (query, url, ...) do not take part in the comparison.
func (i *Interest) SameFilters(filters map[string]string) bool {
	return sameStrings(i.Filters(), filters)
}

func sameStrings(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		other, ok := b[k]
		if !ok || other != v {
			return false
		}
	}
	return true
}

// NormalizeIn lowercases and collapses whitespace in an interest subject.
func NormalizeIn(in string) string {
	return strings.Join(strings.Fields(strings.ToLower(in)), " ")
}

// NormalizeTag normalizes a tag name for comparison.
func NormalizeTag(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

func validNotifications(n string) bool {
	switch n {
	case NotificationsNone, NotificationsEmailDaily, NotificationsEmailImmediate, NotificationsSMS:
		return true
	}
	return false
}

// DeliveryOptions maps a notification preference onto a mechanism and email frequency.
// ok is false when the preference does not produce a delivery ("none" or unknown).
func DeliveryOptions(notifications string) (mechanism, frequency string, ok bool) {
	switch notifications {
	case NotificationsEmailImmediate:
		return MechanismEmail, FrequencyImmediate, true
	case NotificationsEmailDaily:
		return MechanismEmail, FrequencyDaily, true
	case NotificationsSMS:
		return MechanismSMS, FrequencyImmediate, true
	default:
		return "", "", false
	}
}
