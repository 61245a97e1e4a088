package poll_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/infra/adapter/persistence/memory"
	"scout-alerts/internal/usecase/poll"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

/* ───────── fake adapter ───────── */

// fakeAdapter parses bodies of the form [{"id": "...", "date": "..."}].
type fakeAdapter struct {
	typ          string
	panicOnParse bool
}

func (a *fakeAdapter) Type() string { return a.typ }

func (a *fakeAdapter) URL(sub *entity.Subscription, function string, _ poll.Options) (string, error) {
	return fmt.Sprintf("https://provider.test/%s?q=%s&fn=%s", a.typ, url.QueryEscape(sub.Query()), function), nil
}

func (a *fakeAdapter) Parse(body []byte, _ string, _ poll.Options) ([]*entity.SeenItem, error) {
	if a.panicOnParse {
		panic("parser exploded")
	}
	var raw []struct {
		ID   string    `json:"id"`
		Date time.Time `json:"date"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", poll.ErrMalformedResponse, err)
	}
	items := make([]*entity.SeenItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, &entity.SeenItem{
			ItemID: r.ID,
			Date:   r.Date,
			Data:   map[string]any{"title": "Item " + r.ID},
		})
	}
	return items, nil
}

func (a *fakeAdapter) ShortName(n int) string {
	if n == 1 {
		return "item"
	}
	return "items"
}

func (a *fakeAdapter) InterestName(in *entity.Interest) string { return in.In }

// vetoAdapter rejects the listed item IDs in its double check.
type vetoAdapter struct {
	*fakeAdapter
	veto map[string]bool
}

func (a *vetoAdapter) DoubleCheck(item *entity.SeenItem, _ *entity.Subscription) bool {
	return !a.veto[item.ItemID]
}

// syncAdapter supports site-wide sync polls.
type syncAdapter struct {
	*fakeAdapter
}

func (a *syncAdapter) SyncURL(_ poll.Options) (string, error) {
	return "https://provider.test/" + a.typ + "/sync", nil
}

type fakeRegistry map[string]poll.Adapter

func (r fakeRegistry) Adapter(typ string) (poll.Adapter, bool) {
	a, ok := r[typ]
	return a, ok
}

func (r fakeRegistry) SearchTypes() []string {
	types := make([]string, 0, len(r))
	for typ := range r {
		types = append(types, typ)
	}
	return types
}

func (r fakeRegistry) ItemTypes(string) (string, []string, bool) { return "", nil, false }

/* ───────── fake fetcher ───────── */

type fakeFetcher struct {
	mu    sync.Mutex
	body  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, _ func(*http.Request)) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func (f *fakeFetcher) respond(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body = body
	f.err = nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

/* ───────── recording collaborators ───────── */

type scheduled struct {
	ItemID        string
	DiscoveringID int64
	SeenThroughID int64
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduled
	// failFor makes scheduling for this seen-through interest fail.
	failFor int64
}

func (s *recordingScheduler) ScheduleDelivery(_ context.Context, item *entity.SeenItem, discovering *entity.Interest, _ string, seenThrough *entity.Interest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor != 0 && seenThrough.ID == s.failFor {
		return errors.New("deliveries table unavailable")
	}
	s.calls = append(s.calls, scheduled{ItemID: item.ItemID, DiscoveringID: discovering.ID, SeenThroughID: seenThrough.ID})
	return nil
}

func (s *recordingScheduler) Calls() []scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduled(nil), s.calls...)
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []*entity.Report
}

func (r *fakeReporter) Report(_ context.Context, report *entity.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *fakeReporter) Reports() []*entity.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.Report(nil), r.reports...)
}

type fakeFollowers map[int64][]*entity.Interest

func (f fakeFollowers) Followers(_ context.Context, interest *entity.Interest) ([]*entity.Interest, error) {
	return f[interest.ID], nil
}

/* ───────── fixture ───────── */

type fixture struct {
	store     *memory.Store
	fetcher   *fakeFetcher
	scheduler *recordingScheduler
	reporter  *fakeReporter
	svc       *poll.Service
	interest  *entity.Interest
	sub       *entity.Subscription
}

type fixtureOption func(*poll.Deps, *poll.Config)

func withFollowers(f poll.FollowerSource) fixtureOption {
	return func(d *poll.Deps, _ *poll.Config) { d.Followers = f }
}

func withLocker(l poll.Locker) fixtureOption {
	return func(d *poll.Deps, _ *poll.Config) { d.Locker = l }
}

func withNoCache() fixtureOption {
	return func(_ *poll.Deps, c *poll.Config) { c.NoCache = true }
}

func newFixture(t *testing.T, adapter poll.Adapter, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:     memory.NewStore(),
		fetcher:   &fakeFetcher{body: "[]"},
		scheduler: &recordingScheduler{},
		reporter:  &fakeReporter{},
	}

	f.interest = &entity.Interest{
		UserID:       1,
		In:           "clean water",
		InterestType: entity.InterestTypeSearch,
		SearchType:   adapter.Type(),
	}
	require.NoError(t, f.store.Interests().Create(ctx, f.interest))

	f.sub = &entity.Subscription{
		InterestID:       f.interest.ID,
		UserID:           1,
		SubscriptionType: adapter.Type(),
		InterestIn:       f.interest.In,
	}
	require.NoError(t, f.store.Subscriptions().Create(ctx, f.sub))

	deps := poll.Deps{
		Registry:      fakeRegistry{adapter.Type(): adapter},
		Fetcher:       f.fetcher,
		Cache:         f.store.Cache(),
		SeenItems:     f.store.SeenItems(),
		Subscriptions: f.store.Subscriptions(),
		Interests:     f.store.Interests(),
		Events:        f.store.Reports(),
		Scheduler:     f.scheduler,
		Reporter:      f.reporter,
	}
	cfg := poll.DefaultConfig()
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	f.svc = poll.NewService(deps, cfg).WithClock(func() time.Time { return testNow })
	return f
}

func (f *fixture) seenCount(t *testing.T) int64 {
	t.Helper()
	n, err := f.store.SeenItems().CountByInterest(context.Background(), f.interest.ID)
	require.NoError(t, err)
	return n
}

func (f *fixture) storedSub(t *testing.T) *entity.Subscription {
	t.Helper()
	sub, err := f.store.Subscriptions().Get(context.Background(), f.sub.ID)
	require.NoError(t, err)
	return sub
}

func body(ids ...string) string {
	parts := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, map[string]any{"id": id, "date": testNow.Add(-time.Hour)})
	}
	b, _ := json.Marshal(parts)
	return string(b)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
