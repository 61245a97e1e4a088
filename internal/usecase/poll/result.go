package poll

import "scout-alerts/internal/domain/entity"

// Result is the outcome of every poll: items, a structured error, or a
// cache-only miss.
type Result struct {
	Items []*entity.SeenItem
	Err   *PollError
	// Miss is set when a cache-only poll found nothing cached.
	Miss bool
	// Cached is set when the body came from the cache.
	Cached bool
	URL    string
}

// OK reports whether the poll produced items (possibly zero of them).
func (r Result) OK() bool { return r.Err == nil && !r.Miss }

// Item returns the first item, or nil. Used by single-item lookups.
func (r Result) Item() *entity.SeenItem {
	if len(r.Items) == 0 {
		return nil
	}
	return r.Items[0]
}

func failed(err *PollError) Result {
	return Result{Err: err, URL: err.URL}
}
