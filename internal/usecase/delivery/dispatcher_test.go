package delivery_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/infra/lock"
	"scout-alerts/internal/repository"
	"scout-alerts/internal/usecase/delivery"
	"scout-alerts/internal/utils/text"
)

var (
	emailImmediate = delivery.Selector{Mechanism: entity.MechanismEmail, EmailFrequency: entity.FrequencyImmediate}
	emailDaily     = delivery.Selector{Mechanism: entity.MechanismEmail, EmailFrequency: entity.FrequencyDaily}
	sms            = delivery.Selector{Mechanism: entity.MechanismSMS}
)

func (f *fixture) queued(t *testing.T) int64 {
	t.Helper()
	n, err := f.store.Deliveries().Count(t.Context(), repository.DeliveryFilter{})
	require.NoError(t, err)
	return n
}

func (f *fixture) receipts(t *testing.T, user *entity.User) []*entity.Receipt {
	t.Helper()
	rcs, err := f.store.Receipts().ListByUser(t.Context(), user.ID)
	require.NoError(t, err)
	return rcs
}

/* ───── Selector ───── */

func TestDeliver_InvalidSelector(t *testing.T) {
	f := newFixture(t, nil)

	for _, sel := range []delivery.Selector{
		{Mechanism: "pigeon"},
		{Mechanism: entity.MechanismEmail},
		{Mechanism: entity.MechanismEmail, EmailFrequency: "weekly"},
	} {
		_, err := f.dispatcher.Deliver(t.Context(), sel, delivery.DeliverOptions{})
		assert.True(t, errors.Is(err, delivery.ErrInvalidSelector), "selector %+v", sel)
	}
}

/* ───── Immediate email ───── */

func TestDeliver_ImmediateEmail_OneMessagePerInterest(t *testing.T) {
	f := newFixture(t, lock.NewKeyedMutex())
	user := f.user(t, "a@example.com", entity.NotificationsEmailImmediate)
	water := f.search(t, user, "clean water")
	air := f.search(t, user, "clean air")
	f.queue(t, user, water, "bills", entity.MechanismEmail, entity.FrequencyImmediate, 2)
	f.queue(t, user, air, "regulations", entity.MechanismEmail, entity.FrequencyImmediate, 1)

	stats, err := f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{})
	require.NoError(t, err)

	emails := f.transport.Emails()
	require.Len(t, emails, 2)
	subjects := []string{emails[0].Subject, emails[1].Subject}
	assert.ElementsMatch(t, []string{"clean water - 2 new bills", "clean air - 1 new regulation"}, subjects)
	for _, e := range emails {
		assert.Equal(t, "a@example.com", e.To)
		assert.Contains(t, e.Body, "/account/unsubscribe")
	}

	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 2, stats.Receipts)
	assert.Equal(t, 3, stats.Deliveries)
	assert.NotEmpty(t, stats.RunID)
	assert.Zero(t, f.queued(t))
	assert.True(t, f.reporter.Has(entity.ReportSuccess))
}

func TestDeliver_ReceiptSnapshotsDeliveries(t *testing.T) {
	f := newFixture(t, nil)
	user := f.user(t, "a@example.com", entity.NotificationsEmailImmediate)
	water := f.search(t, user, "clean water")
	queued := f.queue(t, user, water, "bills", entity.MechanismEmail, entity.FrequencyImmediate, 2)

	_, err := f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{})
	require.NoError(t, err)

	rcs := f.receipts(t, user)
	require.Len(t, rcs, 1)
	rc := rcs[0]
	assert.Equal(t, entity.MechanismEmail, rc.Mechanism)
	assert.Equal(t, entity.FrequencyImmediate, rc.EmailFrequency)
	assert.Equal(t, "clean water - 2 new bills", rc.Subject)
	assert.Equal(t, f.transport.Emails()[0].Body, rc.Content)
	assert.Equal(t, testNow, rc.DeliveredAt)

	require.Len(t, rc.Deliveries, 2)
	ids := []int64{rc.Deliveries[0].ID, rc.Deliveries[1].ID}
	assert.ElementsMatch(t, []int64{queued[0].ID, queued[1].ID}, ids)
	assert.Equal(t, "clean water", rc.Deliveries[0].InterestIn)
}

func TestDeliver_SkipsOtherQueues(t *testing.T) {
	f := newFixture(t, nil)
	user := f.user(t, "a@example.com", entity.NotificationsEmailDaily)
	water := f.search(t, user, "clean water")
	f.queue(t, user, water, "bills", entity.MechanismEmail, entity.FrequencyDaily, 2)

	stats, err := f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats.Receipts)
	assert.Empty(t, f.transport.Emails())
	assert.Equal(t, int64(2), f.queued(t))
}

/* ───── Daily digest ───── */

func TestDeliver_DailyDigest_OneMessagePerUser(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.user(t, "alice@example.com", entity.NotificationsEmailDaily)
	bob := f.user(t, "bob@example.com", entity.NotificationsEmailDaily)
	water := f.search(t, alice, "clean water")
	air := f.search(t, alice, "clean air")
	bobs := f.search(t, bob, "farm bill")
	f.queue(t, alice, water, "bills", entity.MechanismEmail, entity.FrequencyDaily, 2)
	f.queue(t, alice, air, "regulations", entity.MechanismEmail, entity.FrequencyDaily, 1)
	f.queue(t, bob, bobs, "bills", entity.MechanismEmail, entity.FrequencyDaily, 1)

	stats, err := f.dispatcher.Deliver(t.Context(), emailDaily, delivery.DeliverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)

	emails := f.transport.Emails()
	require.Len(t, emails, 2)
	byTo := map[string]sentMessage{emails[0].To: emails[0], emails[1].To: emails[1]}

	digest := byTo["alice@example.com"]
	assert.Equal(t, "Daily digest - 3 new results", digest.Subject)
	assert.Contains(t, digest.Body, "- clean water - 2 new bills")
	assert.Contains(t, digest.Body, "- clean air - 1 new regulation")
	assert.Equal(t, "Daily digest - 1 new result", byTo["bob@example.com"].Subject)

	require.Len(t, f.receipts(t, alice), 1)
	assert.Len(t, f.receipts(t, alice)[0].Deliveries, 3)
	assert.Zero(t, f.queued(t))
}

/* ───── Failures ───── */

func TestDeliver_TransportFailureKeepsDeliveries(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.fail = true
	user := f.user(t, "a@example.com", entity.NotificationsEmailImmediate)
	water := f.search(t, user, "clean water")
	f.queue(t, user, water, "bills", entity.MechanismEmail, entity.FrequencyImmediate, 2)

	stats, err := f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failures)
	assert.Zero(t, stats.Receipts)
	assert.Equal(t, int64(2), f.queued(t))
	assert.Empty(t, f.receipts(t, user))
	assert.True(t, f.reporter.Has(entity.ReportFailure))

	// the next run picks them up
	f.transport.fail = false
	stats, err = f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Receipts)
	assert.Zero(t, f.queued(t))
}

func TestDeliver_UnconfirmedUserSkipped(t *testing.T) {
	f := newFixture(t, nil)
	user := &entity.User{Email: "a@example.com", Notifications: entity.NotificationsEmailImmediate}
	require.NoError(t, f.store.Users().Create(t.Context(), user))
	water := f.search(t, user, "clean water")
	f.queue(t, user, water, "bills", entity.MechanismEmail, entity.FrequencyImmediate, 1)

	stats, err := f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedUsers)
	assert.Empty(t, f.transport.Emails())
	assert.Equal(t, int64(1), f.queued(t))
}

func TestDeliver_DeletedInterestStillDelivers(t *testing.T) {
	f := newFixture(t, nil)
	user := f.user(t, "a@example.com", entity.NotificationsEmailImmediate)
	water := f.search(t, user, "clean water")
	f.queue(t, user, water, "bills", entity.MechanismEmail, entity.FrequencyImmediate, 1)
	require.NoError(t, f.store.Interests().Delete(t.Context(), water.ID))

	_, err := f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{})
	require.NoError(t, err)

	emails := f.transport.Emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "clean water - 1 new bill", emails[0].Subject)
}

/* ───── Flood guard ───── */

func TestDeliver_FloodAbortsWithoutChanges(t *testing.T) {
	f := newFixture(t, nil)
	user := f.user(t, "a@example.com", entity.NotificationsEmailImmediate)
	water := f.search(t, user, "clean water")
	f.queue(t, user, water, "bills", entity.MechanismEmail, entity.FrequencyImmediate, 21)

	stats, err := f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, delivery.ErrFloodDetected))
	assert.Equal(t, int64(21), stats.Flood.Deliveries)

	assert.Empty(t, f.transport.Emails())
	assert.Equal(t, int64(21), f.queued(t))
	assert.Empty(t, f.receipts(t, user))
	assert.True(t, f.reporter.Has(entity.ReportWarning))
}

func TestDeliver_ForceBypassesFloodGuard(t *testing.T) {
	f := newFixture(t, nil)
	user := f.user(t, "a@example.com", entity.NotificationsEmailImmediate)
	water := f.search(t, user, "clean water")
	f.queue(t, user, water, "bills", entity.MechanismEmail, entity.FrequencyImmediate, 21)

	stats, err := f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Receipts)
	assert.Equal(t, 21, stats.Deliveries)
	assert.Zero(t, f.queued(t))
}

/* ───── Dry run ───── */

func TestDeliver_DryRunChangesNothing(t *testing.T) {
	f := newFixture(t, nil)
	user := f.user(t, "a@example.com", entity.NotificationsEmailImmediate)
	water := f.search(t, user, "clean water")
	f.queue(t, user, water, "bills", entity.MechanismEmail, entity.FrequencyImmediate, 2)

	stats, err := f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DryRun)
	assert.Zero(t, stats.Receipts)
	assert.Empty(t, f.transport.Emails())
	assert.Equal(t, int64(2), f.queued(t))
	assert.Empty(t, f.receipts(t, user))
}

/* ───── Locking ───── */

func TestDeliver_SkipsUserAlreadyBeingDelivered(t *testing.T) {
	locker := lock.NewKeyedMutex()
	f := newFixture(t, locker)
	user := f.user(t, "a@example.com", entity.NotificationsEmailImmediate)
	water := f.search(t, user, "clean water")
	f.queue(t, user, water, "bills", entity.MechanismEmail, entity.FrequencyImmediate, 1)

	release, ok, err := locker.TryLock(t.Context(), "deliver:user:"+itoa(user.ID))
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedUsers)
	assert.Empty(t, f.transport.Emails())
	assert.Equal(t, int64(1), f.queued(t))

	release()
	stats, err = f.dispatcher.Deliver(t.Context(), emailImmediate, delivery.DeliverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Receipts)
}

/* ───── SMS ───── */

func (f *fixture) smsUser(t *testing.T, email string) *entity.User {
	t.Helper()
	u := &entity.User{
		Email:          email,
		Phone:          "+15555550100",
		PhoneConfirmed: true,
		Confirmed:      true,
		Notifications:  entity.NotificationsSMS,
	}
	require.NoError(t, f.store.Users().Create(t.Context(), u))
	return u
}

func TestDeliver_SMS(t *testing.T) {
	f := newFixture(t, nil)
	user := f.smsUser(t, "a@example.com")
	water := f.search(t, user, "clean water")
	f.queue(t, user, water, "bills", entity.MechanismSMS, entity.FrequencyImmediate, 2)

	stats, err := f.dispatcher.Deliver(t.Context(), sms, delivery.DeliverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Receipts)

	msgs := f.transport.SMS()
	require.Len(t, msgs, 1)
	assert.Equal(t, "+15555550100", msgs[0].To)
	assert.Equal(t, `[Scout] new bills on "clean water" https://scout.test/interests/`+itoa(water.ID), msgs[0].Body)

	rcs := f.receipts(t, user)
	require.Len(t, rcs, 1)
	assert.Equal(t, entity.MechanismSMS, rcs[0].Mechanism)
	assert.Equal(t, entity.FrequencyImmediate, rcs[0].EmailFrequency)
}

func TestDeliver_SMS_LongQueryIsTruncated(t *testing.T) {
	f := newFixture(t, nil)
	user := f.smsUser(t, "a@example.com")
	long := f.search(t, user, strings.Repeat("water ", 33)+"xx")
	f.queue(t, user, long, "bills", entity.MechanismSMS, entity.FrequencyImmediate, 1)

	_, err := f.dispatcher.Deliver(t.Context(), sms, delivery.DeliverOptions{})
	require.NoError(t, err)

	msgs := f.transport.SMS()
	require.Len(t, msgs, 1)
	assert.LessOrEqual(t, text.CountRunes(msgs[0].Body), delivery.SMSLimit)
	assert.Contains(t, msgs[0].Body, text.Ellipsis)
	assert.True(t, f.reporter.Has(entity.ReportWarning))
	assert.Zero(t, f.queued(t))
}

func TestDeliver_SMS_UnshortenableIsDropped(t *testing.T) {
	long := strings.Repeat("x", 200)
	f := newFixture(t, nil)
	f.renderer = delivery.NewRenderer(fakeRegistry{"bills": &fakeAdapter{typ: "bills", singular: long, plural: long}}, testBaseURL)
	f.dispatcher = delivery.NewDispatcher(delivery.Deps{
		Users:      f.store.Users(),
		Interests:  f.store.Interests(),
		Deliveries: f.store.Deliveries(),
		Receipts:   f.store.Receipts(),
		Transport:  f.transport,
		Renderer:   f.renderer,
		Reporter:   f.reporter,
	})
	user := f.smsUser(t, "a@example.com")
	water := f.search(t, user, "clean water")
	f.queue(t, user, water, "bills", entity.MechanismSMS, entity.FrequencyImmediate, 1)

	stats, err := f.dispatcher.Deliver(t.Context(), sms, delivery.DeliverOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dropped)
	assert.Empty(t, f.transport.SMS())
	assert.True(t, f.reporter.Has(entity.ReportFailure))
	assert.Zero(t, f.queued(t))

	reported := len(f.reporter.Reports())
	stats, err = f.dispatcher.Deliver(t.Context(), sms, delivery.DeliverOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats.Dropped)
	assert.Len(t, f.reporter.Reports(), reported)
}
