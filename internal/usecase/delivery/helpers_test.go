package delivery_test

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/infra/adapter/persistence/memory"
	"scout-alerts/internal/repository"
	"scout-alerts/internal/usecase/delivery"
	"scout-alerts/internal/usecase/poll"
)

const testBaseURL = "https://scout.test"

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

/* ───────── fake adapters ───────── */

type fakeAdapter struct {
	typ      string
	singular string
	plural   string
	filters  map[string]string
}

func (a *fakeAdapter) Type() string { return a.typ }

func (a *fakeAdapter) URL(*entity.Subscription, string, poll.Options) (string, error) {
	return "https://provider.test/" + a.typ, nil
}

func (a *fakeAdapter) Parse([]byte, string, poll.Options) ([]*entity.SeenItem, error) {
	return nil, nil
}

func (a *fakeAdapter) ShortName(n int) string {
	if n == 1 {
		return a.singular
	}
	return a.plural
}

func (a *fakeAdapter) InterestName(in *entity.Interest) string {
	if in.IsItem() {
		return strings.ToUpper(in.In)
	}
	return in.In
}

func (a *fakeAdapter) FilterName(key, value string) string {
	if name, ok := a.filters[key+"="+value]; ok {
		return name
	}
	return ""
}

type fakeRegistry map[string]poll.Adapter

func (r fakeRegistry) Adapter(typ string) (poll.Adapter, bool) {
	a, ok := r[typ]
	return a, ok
}

func (r fakeRegistry) SearchTypes() []string { return []string{"bills", "regulations"} }

func (r fakeRegistry) ItemTypes(itemType string) (string, []string, bool) {
	if itemType == "bill" {
		return "bills", []string{"bills_activity"}, true
	}
	return "", nil, false
}

func newRegistry() fakeRegistry {
	return fakeRegistry{
		"bills": &fakeAdapter{typ: "bills", singular: "bill", plural: "bills",
			filters: map[string]string{"stage=enacted": "Enacted"}},
		"regulations":    &fakeAdapter{typ: "regulations", singular: "regulation", plural: "regulations"},
		"bills_activity": &fakeAdapter{typ: "bills_activity", singular: "action", plural: "actions"},
	}
}

/* ───────── fake transport ───────── */

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type fakeTransport struct {
	mu     sync.Mutex
	emails []sentMessage
	sms    []sentMessage
	fail   bool
}

func (t *fakeTransport) SendEmail(_ context.Context, to, subject, body string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return false
	}
	t.emails = append(t.emails, sentMessage{To: to, Subject: subject, Body: body})
	return true
}

func (t *fakeTransport) SendSMS(_ context.Context, to, body string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return false
	}
	t.sms = append(t.sms, sentMessage{To: to, Body: body})
	return true
}

func (t *fakeTransport) Emails() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.emails...)
}

func (t *fakeTransport) SMS() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sms...)
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

func (r *fakeReporter) Has(status string) bool {
	for _, rep := range r.Reports() {
		if rep.Status == status {
			return true
		}
	}
	return false
}

/* ───────── fixture ───────── */

type fixture struct {
	store      *memory.Store
	transport  *fakeTransport
	reporter   *fakeReporter
	renderer   *delivery.Renderer
	dispatcher *delivery.Dispatcher
}

func newFixture(t *testing.T, locker poll.Locker) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		transport: &fakeTransport{},
		reporter:  &fakeReporter{},
		renderer:  delivery.NewRenderer(newRegistry(), testBaseURL),
	}
	f.dispatcher = delivery.NewDispatcher(delivery.Deps{
		Users:      f.store.Users(),
		Interests:  f.store.Interests(),
		Deliveries: f.store.Deliveries(),
		Receipts:   f.store.Receipts(),
		Transport:  f.transport,
		Renderer:   f.renderer,
		Reporter:   f.reporter,
		Locker:     locker,
	}).WithClock(func() time.Time { return testNow })
	return f
}

func (f *fixture) user(t *testing.T, email, notifications string) *entity.User {
	t.Helper()
	u := &entity.User{
		Email:         email,
		Confirmed:     true,
		Notifications: notifications,
	}
	require.NoError(t, f.store.Users().Create(t.Context(), u))
	return u
}

func (f *fixture) search(t *testing.T, user *entity.User, query string) *entity.Interest {
	t.Helper()
	in := &entity.Interest{
		UserID:       user.ID,
		In:           query,
		InterestType: entity.InterestTypeSearch,
		SearchType:   entity.SearchTypeAll,
		Data:         map[string]string{"query": query},
	}
	require.NoError(t, in.Validate())
	require.NoError(t, f.store.Interests().Create(t.Context(), in))
	return in
}

// queue puts n deliveries of subscriptionType for interest on the queue.
func (f *fixture) queue(t *testing.T, user *entity.User, interest *entity.Interest, subscriptionType, mechanism, frequency string, n int) []*entity.Delivery {
	t.Helper()
	out := make([]*entity.Delivery, 0, n)
	for i := range n {
		d := &entity.Delivery{
			UserID:           user.ID,
			UserEmail:        user.Email,
			UserPhone:        user.Phone,
			SubscriptionType: subscriptionType,
			InterestID:       interest.ID,
			InterestIn:       interest.In,
			SeenThroughID:    interest.ID,
			Mechanism:        mechanism,
			EmailFrequency:   frequency,
			Item: entity.SeenItem{
				ItemType: "bill",
				ItemID:   fmt.Sprintf("%s-%d-%d", subscriptionType, interest.ID, i),
				Date:     testNow.Add(-time.Duration(i) * time.Hour),
				Data:     map[string]any{"title": fmt.Sprintf("Item %d", i)},
			},
		}
		require.NoError(t, f.store.Deliveries().Create(t.Context(), d))
		out = append(out, d)
	}
	return out
}

func repositoryAll() repository.DeliveryFilter { return repository.DeliveryFilter{} }

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
