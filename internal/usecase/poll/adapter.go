// Package poll implements the subscription poller: it builds provider URLs,
// fetches responses through the cache or the network, parses them into items,
// and turns newly seen items into scheduled deliveries.
package poll

import (
	"context"
	"net/http"
	"time"

	"scout-alerts/internal/domain/entity"
)

// Poll functions.
const (
	FuncSearch     = "search"
	FuncInitialize = "initialize"
	FuncCheck      = "check"
	FuncSync       = "sync"
	FuncFind       = "find"
)

// Options tunes a single poll.
type Options struct {
	// CacheOnly reads the cache and never touches the network.
	// A miss yields a Result with Miss set.
	CacheOnly bool
	Page      int
	PerPage   int
	// Since bounds sync polls to items changed after the given time.
	Since time.Time
	// Extra carries adapter-specific parameters.
	Extra map[string]string
}

// Adapter is the capability set of one provider.
type Adapter interface {
	// Type is the subscription type served by the adapter, e.g. "federal_bills".
	Type() string
	URL(sub *entity.Subscription, function string, opts Options) (string, error)
	// Parse converts a raw response into items carrying a provider ID and a date.
	// Responses that cannot be understood must return an error wrapping ErrMalformedResponse.
	Parse(body []byte, function string, opts Options) ([]*entity.SeenItem, error)
	// ShortName is the pluralized human name, e.g. "bill" or "bills".
	ShortName(n int) string
	InterestName(interest *entity.Interest) string
}

// RawFetcher is implemented by adapters that download their own responses
// (feeds and other non-JSON sources).
type RawFetcher interface {
	FetchRaw(ctx context.Context, url string) ([]byte, error)
}

// DoubleChecker is implemented by adapters that can veto a match they suspect
// to be a false positive. Returning false suppresses delivery of the item.
type DoubleChecker interface {
	DoubleCheck(item *entity.SeenItem, sub *entity.Subscription) bool
}

// HTTPCustomizer is implemented by adapters that need auth or headers on
// outgoing requests.
type HTTPCustomizer interface {
	CustomizeRequest(req *http.Request)
}

// DetailFinder is implemented by adapters that can look up a single item.
type DetailFinder interface {
	DetailURL(itemID string, opts Options) (string, error)
	ParseDetail(body []byte) (*entity.SeenItem, error)
}

// SyncURLBuilder is implemented by adapters that support site-wide sync polls.
type SyncURLBuilder interface {
	SyncURL(opts Options) (string, error)
}

// Filterer is implemented by adapters that can describe search filters.
type Filterer interface {
	FilterName(key, value string) string
}

// ItemRenderer is implemented by adapters that render their items for messages.
type ItemRenderer interface {
	RenderItem(item *entity.SeenItem) string
}

// Registry resolves adapters by subscription type. It is built once at startup.
type Registry interface {
	Adapter(subscriptionType string) (Adapter, bool)
	// SearchTypes lists the subscription types that accept search queries.
	SearchTypes() []string
	// ItemTypes maps an item type (e.g. "bill") to the subscription type used
	// to look the item up and the subscription types that follow it.
	ItemTypes(itemType string) (findType string, subscriptionTypes []string, ok bool)
}

// Fetcher downloads a URL and returns the response body.
// customize may be nil.
type Fetcher interface {
	Fetch(ctx context.Context, url string, customize func(*http.Request)) ([]byte, error)
}

// Scheduler queues a newly seen item for delivery to the owner of seenThrough.
type Scheduler interface {
	ScheduleDelivery(ctx context.Context, item *entity.SeenItem, discovering *entity.Interest, subscriptionType string, seenThrough *entity.Interest) error
}

// FollowerSource finds the interests that receive another interest's items
// through a followed public tag.
type FollowerSource interface {
	Followers(ctx context.Context, interest *entity.Interest) ([]*entity.Interest, error)
}

// Locker serializes work on a key. release must be called when acquired is true.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), acquired bool, err error)
}
