package poll_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/usecase/poll"
)

func TestPoll_SearchResponsesAreCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAdapter{typ: "bills"})
	f.fetcher.respond(body("A", "B"))

	first := f.svc.Poll(ctx, f.sub, poll.FuncSearch, poll.Options{})
	require.True(t, first.OK())
	assert.False(t, first.Cached)
	assert.Len(t, first.Items, 2)

	second := f.svc.Poll(ctx, f.sub, poll.FuncSearch, poll.Options{})
	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.Len(t, second.Items, 2)

	assert.Equal(t, 1, f.fetcher.Calls())
}

func TestPoll_CheckIsNeverCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAdapter{typ: "bills"})
	f.fetcher.respond(body("A"))

	f.svc.Poll(ctx, f.sub, poll.FuncCheck, poll.Options{})
	f.svc.Poll(ctx, f.sub, poll.FuncCheck, poll.Options{})

	assert.Equal(t, 2, f.fetcher.Calls())
}

func TestPoll_NoCacheConfig(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAdapter{typ: "bills"}, withNoCache())
	f.fetcher.respond(body("A"))

	f.svc.Poll(ctx, f.sub, poll.FuncSearch, poll.Options{})
	f.svc.Poll(ctx, f.sub, poll.FuncSearch, poll.Options{})

	assert.Equal(t, 2, f.fetcher.Calls())
}

func TestPoll_CacheOnlyMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAdapter{typ: "bills"})

	result := f.svc.Poll(ctx, f.sub, poll.FuncSearch, poll.Options{CacheOnly: true})

	assert.True(t, result.Miss)
	assert.Nil(t, result.Err)
	assert.False(t, result.OK())
	assert.Equal(t, 0, f.fetcher.Calls())
}

func TestPoll_MalformedResponseIsNotCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAdapter{typ: "bills"})
	f.fetcher.respond("{not json")

	result := f.svc.Poll(ctx, f.sub, poll.FuncSearch, poll.Options{})
	require.NotNil(t, result.Err)
	assert.Equal(t, poll.KindMalformed, result.Err.Kind)

	cached := f.svc.Poll(ctx, f.sub, poll.FuncSearch, poll.Options{CacheOnly: true})
	assert.True(t, cached.Miss)
	assert.Empty(t, f.reporter.Reports())
}

func TestPoll_StampsItemsWithSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAdapter{typ: "bills"})
	f.fetcher.respond(body("A"))

	result := f.svc.Poll(ctx, f.sub, poll.FuncCheck, poll.Options{})
	require.True(t, result.OK())

	item := result.Item()
	require.NotNil(t, item)
	assert.Equal(t, f.sub.ID, item.SubscriptionID)
	assert.Equal(t, f.interest.ID, item.InterestID)
	assert.Equal(t, "bills", item.SubscriptionType)
	assert.Equal(t, "clean water", item.InterestIn)
	assert.Equal(t, result.URL, item.SearchURL)
}

func TestPoll_PanicIsReportedAsUnexpected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAdapter{typ: "bills", panicOnParse: true})
	f.fetcher.respond(body("A"))

	result := f.svc.Poll(ctx, f.sub, poll.FuncCheck, poll.Options{})

	require.NotNil(t, result.Err)
	assert.Equal(t, poll.KindUnexpected, result.Err.Kind)
	assert.Contains(t, result.Err.Message, "parser exploded")

	reports := f.reporter.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, entity.ReportFailure, reports[0].Status)
	assert.Equal(t, f.sub.ID, reports[0].Attached["subscription_id"])
}

func TestSync_PanicIsReportedAsUnexpected(t *testing.T) {
	f := newFixture(t, &syncAdapter{&fakeAdapter{typ: "bills", panicOnParse: true}})
	f.fetcher.respond(body("A"))

	result := f.svc.Sync(context.Background(), "bills", poll.Options{})

	require.NotNil(t, result.Err)
	assert.Equal(t, poll.KindUnexpected, result.Err.Kind)

	reports := f.reporter.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, entity.ReportFailure, reports[0].Status)
	assert.Equal(t, poll.FuncSync, reports[0].Attached["function"])
	assert.Contains(t, reports[0].Attached["url"], "/bills/sync")
}

func TestSync_ItemsAreStampedWithType(t *testing.T) {
	f := newFixture(t, &syncAdapter{&fakeAdapter{typ: "bills"}})
	f.fetcher.respond(body("A", "B"))

	result := f.svc.Sync(context.Background(), "bills", poll.Options{})

	require.Nil(t, result.Err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "bills", result.Items[0].SubscriptionType)
	assert.Empty(t, f.reporter.Reports())
}

func TestPoll_UnknownProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &fakeAdapter{typ: "bills"})
	sub := &entity.Subscription{ID: 77, SubscriptionType: "missing"}

	result := f.svc.Poll(ctx, sub, poll.FuncCheck, poll.Options{})

	require.NotNil(t, result.Err)
	assert.ErrorIs(t, result.Err, poll.ErrUnknownProvider)
	assert.Len(t, f.reporter.Reports(), 1)
}

func TestFind_UnsupportedWithoutDetailFinder(t *testing.T) {
	f := newFixture(t, &fakeAdapter{typ: "bills"})

	result := f.svc.Find(context.Background(), "bills", "A", poll.Options{})

	require.NotNil(t, result.Err)
	assert.ErrorIs(t, result.Err, poll.ErrUnsupported)
}

func TestSync_UnsupportedWithoutSyncURL(t *testing.T) {
	f := newFixture(t, &fakeAdapter{typ: "bills"})

	result := f.svc.Sync(context.Background(), "bills", poll.Options{})

	require.NotNil(t, result.Err)
	assert.ErrorIs(t, result.Err, poll.ErrUnsupported)
}
