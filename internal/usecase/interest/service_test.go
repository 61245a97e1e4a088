package interest_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/infra/adapter/persistence/memory"
	"scout-alerts/internal/repository"
	"scout-alerts/internal/usecase/interest"
	"scout-alerts/internal/usecase/poll"
)

/*────────────────────  スタブ  ────────────────────*/

type stubAdapter struct{ typ string }

func (a stubAdapter) Type() string { return a.typ }
func (a stubAdapter) URL(*entity.Subscription, string, poll.Options) (string, error) {
	return "", nil
}
func (a stubAdapter) Parse([]byte, string, poll.Options) ([]*entity.SeenItem, error) {
	return nil, nil
}
func (a stubAdapter) ShortName(int) string                    { return a.typ }
func (a stubAdapter) InterestName(in *entity.Interest) string { return in.In }

type stubRegistry struct{}

func (stubRegistry) Adapter(typ string) (poll.Adapter, bool) {
	switch typ {
	case "bills", "regulations", "bills_activity", "feed":
		return stubAdapter{typ: typ}, true
	}
	return nil, false
}

func (stubRegistry) SearchTypes() []string { return []string{"bills", "regulations"} }

func (stubRegistry) ItemTypes(itemType string) (string, []string, bool) {
	if itemType == "bill" {
		return "bills", []string{"bills_activity"}, true
	}
	return "", nil, false
}

type recordingInitializer struct {
	subs []*entity.Subscription
	err  error
}

func (r *recordingInitializer) Initialize(_ context.Context, sub *entity.Subscription) error {
	r.subs = append(r.subs, sub)
	return r.err
}

type stubFinder struct {
	item *entity.SeenItem
	err  *poll.PollError
	typ  string
}

func (f *stubFinder) Find(_ context.Context, subscriptionType, _ string, _ poll.Options) poll.Result {
	f.typ = subscriptionType
	if f.err != nil {
		return poll.Result{Err: f.err}
	}
	if f.item == nil {
		return poll.Result{}
	}
	return poll.Result{Items: []*entity.SeenItem{f.item}}
}

type stubFeeds struct {
	details map[string]string
	err     error
}

func (f stubFeeds) FetchDetails(context.Context, string) (map[string]string, error) {
	return f.details, f.err
}

type fixture struct {
	store *memory.Store
	init  *recordingInitializer
	svc   *interest.Service
}

func newFixture(finder interest.ItemFinder, feeds interest.FeedInspector) *fixture {
	store := memory.NewStore()
	init := &recordingInitializer{}
	return &fixture{
		store: store,
		init:  init,
		svc: interest.NewService(interest.Deps{
			Interests:     store.Interests(),
			Subscriptions: store.Subscriptions(),
			SeenItems:     store.SeenItems(),
			Deliveries:    store.Deliveries(),
			Tags:          store.Tags(),
			Registry:      stubRegistry{},
			Initializer:   init,
			Finder:        finder,
			Feeds:         feeds,
		}),
	}
}

func (f *fixture) subscriptionTypes(t *testing.T, interestID int64) []string {
	t.Helper()
	subs, err := f.store.Subscriptions().ListByInterest(t.Context(), interestID)
	require.NoError(t, err)
	types := make([]string, 0, len(subs))
	for _, s := range subs {
		types = append(types, s.SubscriptionType)
	}
	return types
}

/*────────────────────  検索  ────────────────────*/

func TestFindOrCreateSearch_CreatesWithSubscriptions(t *testing.T) {
	f := newFixture(nil, nil)

	in, created, err := f.svc.FindOrCreateSearch(t.Context(), interest.SearchInput{UserID: 1, Query: "Clean  Water"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, in.ID)
	assert.Equal(t, entity.SearchTypeAll, in.SearchType)
	assert.Equal(t, "clean water", in.InNormal)
	assert.Equal(t, map[string]string{"query": "Clean  Water", "query_type": "simple"}, in.Data)

	assert.ElementsMatch(t, []string{"bills", "regulations"}, f.subscriptionTypes(t, in.ID))
	assert.Len(t, f.init.subs, 2)
}

func TestFindOrCreateSearch_StrictFilterEquality(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := t.Context()

	base := interest.SearchInput{UserID: 1, SearchType: "bills", Query: "clean water", Filters: map[string]string{"stage": "enacted"}}
	first, created, err := f.svc.FindOrCreateSearch(ctx, base)
	require.NoError(t, err)
	require.True(t, created)

	// 正規化後に同じクエリ・同じフィルタ → 既存
	same := base
	same.Query = "CLEAN water"
	found, created, err := f.svc.FindOrCreateSearch(ctx, same)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, found.ID)

	// フィルタが1つ多い → 別の関心
	extra := base
	extra.Filters = map[string]string{"stage": "enacted", "chamber": "house"}
	other, created, err := f.svc.FindOrCreateSearch(ctx, extra)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	// フィルタなし → 別の関心
	none := base
	none.Filters = nil
	other, created, err = f.svc.FindOrCreateSearch(ctx, none)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	// 検索タイプが違う → 別の関心
	all := base
	all.SearchType = entity.SearchTypeAll
	_, created, err = f.svc.FindOrCreateSearch(ctx, all)
	require.NoError(t, err)
	assert.True(t, created)

	// 別ユーザー → 別の関心
	otherUser := base
	otherUser.UserID = 2
	_, created, err = f.svc.FindOrCreateSearch(ctx, otherUser)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestFindOrCreateSearch_EmptyQuery(t *testing.T) {
	f := newFixture(nil, nil)

	_, _, err := f.svc.FindOrCreateSearch(t.Context(), interest.SearchInput{UserID: 1, Query: "  "})
	var verr *entity.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestCreate_InitializeFailureIsNotFatal(t *testing.T) {
	f := newFixture(nil, nil)
	f.init.err = errors.New("provider down")

	in, created, err := f.svc.FindOrCreateSearch(t.Context(), interest.SearchInput{UserID: 1, SearchType: "bills", Query: "farm bill"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"bills"}, f.subscriptionTypes(t, in.ID))
}

/*────────────────────  アイテム  ────────────────────*/

func TestFindOrCreateItem(t *testing.T) {
	finder := &stubFinder{item: &entity.SeenItem{ItemID: "hr1-118", Data: map[string]any{"title": "Clean Water Act", "votes": 12}}}
	f := newFixture(finder, nil)
	ctx := t.Context()

	in, created, err := f.svc.FindOrCreateItem(ctx, 1, "bill", "hr1-118")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "bills", finder.typ)
	assert.Equal(t, "Clean Water Act", in.Data["title"])
	_, hasVotes := in.Data["votes"]
	assert.False(t, hasVotes)
	assert.Equal(t, []string{"bills_activity"}, f.subscriptionTypes(t, in.ID))

	again, created, err := f.svc.FindOrCreateItem(ctx, 1, "bill", "hr1-118")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, in.ID, again.ID)
}

func TestFindOrCreateItem_Errors(t *testing.T) {
	t.Run("unknown item type", func(t *testing.T) {
		f := newFixture(&stubFinder{}, nil)
		_, _, err := f.svc.FindOrCreateItem(t.Context(), 1, "treaty", "t1")
		assert.True(t, errors.Is(err, interest.ErrUnknownItemType))
	})

	t.Run("not found at provider", func(t *testing.T) {
		f := newFixture(&stubFinder{}, nil)
		_, _, err := f.svc.FindOrCreateItem(t.Context(), 1, "bill", "hr999-118")
		assert.True(t, errors.Is(err, interest.ErrItemNotFound))
		assert.True(t, interest.IsNotFound(err))
	})

	t.Run("provider error", func(t *testing.T) {
		f := newFixture(&stubFinder{err: &poll.PollError{Kind: poll.KindNetwork, Message: "timeout", Err: errors.New("timeout")}}, nil)
		_, _, err := f.svc.FindOrCreateItem(t.Context(), 1, "bill", "hr1-118")
		require.Error(t, err)
		var perr *poll.PollError
		assert.True(t, errors.As(err, &perr))
	})
}

/*────────────────────  フィード  ────────────────────*/

func TestFindOrCreateFeed(t *testing.T) {
	feeds := stubFeeds{details: map[string]string{"title": "Example Blog", "site_url": "https://example.com", "description": ""}}
	f := newFixture(nil, feeds)
	ctx := t.Context()

	in, created, err := f.svc.FindOrCreateFeed(ctx, 1, "https://example.com/feed.xml")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, map[string]string{"title": "Example Blog", "site_url": "https://example.com"}, in.Data)
	assert.Equal(t, []string{"feed"}, f.subscriptionTypes(t, in.ID))

	again, created, err := f.svc.FindOrCreateFeed(ctx, 1, " https://example.com/feed.xml ")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, in.ID, again.ID)
}

func TestFindOrCreateFeed_Invalid(t *testing.T) {
	f := newFixture(nil, stubFeeds{err: errors.New("not a feed")})

	_, _, err := f.svc.FindOrCreateFeed(t.Context(), 1, "https://example.com/page.html")
	assert.True(t, errors.Is(err, interest.ErrInvalidFeed))

	_, _, err = f.svc.FindOrCreateFeed(t.Context(), 1, "ftp://example.com/feed")
	var verr *entity.ValidationError
	assert.True(t, errors.As(err, &verr))
}

/*────────────────────  タグ  ────────────────────*/

func TestFindOrCreateTag(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := t.Context()

	public := &entity.Tag{UserID: 1, Name: "water", Public: true}
	private := &entity.Tag{UserID: 1, Name: "secret"}
	require.NoError(t, f.store.Tags().Create(ctx, public))
	require.NoError(t, f.store.Tags().Create(ctx, private))

	in, created, err := f.svc.FindOrCreateTag(ctx, 2, public.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, strconv.FormatInt(public.ID, 10), in.In)
	assert.Equal(t, "water", in.Data["name"])
	assert.Empty(t, f.subscriptionTypes(t, in.ID))
	assert.Empty(t, f.init.subs)

	again, created, err := f.svc.FindOrCreateTag(ctx, 2, public.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, in.ID, again.ID)

	_, _, err = f.svc.FindOrCreateTag(ctx, 2, private.ID)
	assert.True(t, errors.Is(err, interest.ErrTagNotFollowable))
	_, _, err = f.svc.FindOrCreateTag(ctx, 1, public.ID)
	assert.True(t, errors.Is(err, interest.ErrTagNotFollowable))
	_, _, err = f.svc.FindOrCreateTag(ctx, 2, 9999)
	assert.True(t, errors.Is(err, interest.ErrTagNotFollowable))
}

/*────────────────────  購読タイプ  ────────────────────*/

func TestSubscriptionTypes(t *testing.T) {
	svc := newFixture(nil, nil).svc

	tests := []struct {
		name     string
		interest *entity.Interest
		want     []string
	}{
		{"search all", &entity.Interest{InterestType: entity.InterestTypeSearch, SearchType: entity.SearchTypeAll}, []string{"bills", "regulations"}},
		{"search one", &entity.Interest{InterestType: entity.InterestTypeSearch, SearchType: "regulations"}, []string{"regulations"}},
		{"search unknown", &entity.Interest{InterestType: entity.InterestTypeSearch, SearchType: "treaties"}, nil},
		{"item", &entity.Interest{InterestType: entity.InterestTypeItem, ItemType: "bill"}, []string{"bills_activity"}},
		{"item unknown", &entity.Interest{InterestType: entity.InterestTypeItem, ItemType: "treaty"}, nil},
		{"feed", &entity.Interest{InterestType: entity.InterestTypeFeed}, []string{"feed"}},
		{"tag", &entity.Interest{InterestType: entity.InterestTypeTag}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.SubscriptionTypes(tt.interest))
		})
	}
}

func TestSubscriptionsFor_CopiesData(t *testing.T) {
	svc := newFixture(nil, nil).svc
	in := &entity.Interest{ID: 5, UserID: 1, In: "clean water", InterestType: entity.InterestTypeSearch,
		SearchType: "bills", Data: map[string]string{"query": "clean water"}}

	subs := svc.SubscriptionsFor(in)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(5), subs[0].InterestID)
	assert.Equal(t, int64(1), subs[0].UserID)
	assert.Equal(t, "clean water", subs[0].InterestIn)

	subs[0].Data["query"] = "changed"
	assert.Equal(t, "clean water", in.Data["query"])
}

/*────────────────────  更新・削除  ────────────────────*/

func TestUpdateNotifications(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := t.Context()
	in, _, err := f.svc.FindOrCreateSearch(ctx, interest.SearchInput{UserID: 1, Query: "clean water"})
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateNotifications(ctx, in.ID, entity.NotificationsSMS))
	got, err := f.store.Interests().Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.NotificationsSMS, got.Notifications)

	var verr *entity.ValidationError
	assert.True(t, errors.As(f.svc.UpdateNotifications(ctx, in.ID, "carrier_pigeon"), &verr))
	assert.True(t, errors.Is(f.svc.UpdateNotifications(ctx, 9999, ""), interest.ErrInterestNotFound))
}

func TestDestroy_Cascades(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := t.Context()

	in, _, err := f.svc.FindOrCreateSearch(ctx, interest.SearchInput{UserID: 1, Query: "clean water"})
	require.NoError(t, err)
	keep, _, err := f.svc.FindOrCreateSearch(ctx, interest.SearchInput{UserID: 1, Query: "clean air"})
	require.NoError(t, err)

	require.NoError(t, f.store.SeenItems().Create(ctx, &entity.SeenItem{InterestID: in.ID, ItemID: "hr1-118"}))
	require.NoError(t, f.store.SeenItems().Create(ctx, &entity.SeenItem{InterestID: keep.ID, ItemID: "hr1-118"}))
	require.NoError(t, f.store.Deliveries().Create(ctx, &entity.Delivery{UserID: 1, InterestID: in.ID, SeenThroughID: in.ID}))
	require.NoError(t, f.store.Deliveries().Create(ctx, &entity.Delivery{UserID: 1, InterestID: keep.ID, SeenThroughID: keep.ID}))

	require.NoError(t, f.svc.Destroy(ctx, in.ID))

	gone, err := f.store.Interests().Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Empty(t, f.subscriptionTypes(t, in.ID))
	n, err := f.store.SeenItems().CountByInterest(ctx, in.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// 他の関心は残る
	assert.Len(t, f.subscriptionTypes(t, keep.ID), 2)
	n, err = f.store.SeenItems().CountByInterest(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	queued, err := f.store.Deliveries().Count(ctx, repository.DeliveryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), queued)

	assert.True(t, errors.Is(f.svc.Destroy(ctx, in.ID), interest.ErrInterestNotFound))
	var verr *entity.ValidationError
	assert.True(t, errors.As(f.svc.Destroy(ctx, 0), &verr))
}
