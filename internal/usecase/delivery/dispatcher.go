package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/observability/metrics"
	"scout-alerts/internal/observability/tracing"
	"scout-alerts/internal/repository"
	"scout-alerts/internal/usecase/poll"
	"scout-alerts/internal/usecase/report"
)

// Transport sends rendered messages. A false return means the message was
// not accepted and its deliveries stay queued.
type Transport interface {
	SendEmail(ctx context.Context, to, subject, body string) bool
	SendSMS(ctx context.Context, to, body string) bool
}

// Selector picks the slice of the queue a run drains.
type Selector struct {
	Mechanism      string
	EmailFrequency string
}

func (s Selector) filter() repository.DeliveryFilter {
	f := repository.DeliveryFilter{Mechanism: s.Mechanism}
	if s.Mechanism == entity.MechanismEmail {
		f.EmailFrequency = s.EmailFrequency
	}
	return f
}

func (s Selector) validate() error {
	switch s.Mechanism {
	case entity.MechanismSMS:
		return nil
	case entity.MechanismEmail:
		if s.EmailFrequency == entity.FrequencyImmediate || s.EmailFrequency == entity.FrequencyDaily {
			return nil
		}
		return fmt.Errorf("%w: email frequency %q", ErrInvalidSelector, s.EmailFrequency)
	default:
		return fmt.Errorf("%w: mechanism %q", ErrInvalidSelector, s.Mechanism)
	}
}

func (s Selector) String() string {
	if s.Mechanism == entity.MechanismEmail {
		return "[" + s.Mechanism + "][" + s.EmailFrequency + "]"
	}
	return "[" + s.Mechanism + "]"
}

// DeliverOptions tunes a dispatch run.
type DeliverOptions struct {
	// Force skips the flood guard.
	Force bool
	// DryRun renders and logs messages without sending or changing anything.
	DryRun bool
}

// DeliverStats summarizes a dispatch run.
type DeliverStats struct {
	RunID        string
	Users        int
	SkippedUsers int
	Messages     int
	Receipts     int
	Deliveries   int
	Failures     int
	Dropped      int
	DryRun       int
	Flood        FloodStatus
	Duration     time.Duration
}

// Deps groups the collaborators of the Dispatcher.
type Deps struct {
	Users      repository.UserRepository
	Interests  repository.InterestRepository
	Deliveries repository.DeliveryRepository
	Receipts   repository.ReceiptRepository
	Transport  Transport
	Renderer   *Renderer
	FloodGuard *FloodGuard
	Reporter   report.Reporter
	Locker     poll.Locker
}

// Dispatcher drains the delivery queue.
type Dispatcher struct {
	users      repository.UserRepository
	interests  repository.InterestRepository
	deliveries repository.DeliveryRepository
	receipts   repository.ReceiptRepository
	transport  Transport
	renderer   *Renderer
	guard      *FloodGuard
	reporter   report.Reporter
	locker     poll.Locker
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher.
//
// Parameters:
//   - deps: repositories, transport and renderer; FloodGuard defaults to NewFloodGuard,
//     Reporter to report.LogReporter, Locker may be nil (single process)
//
// Example:
//
//	d := delivery.NewDispatcher(delivery.Deps{...})
//	stats, err := d.Deliver(ctx, delivery.Selector{Mechanism: "email", EmailFrequency: "daily"}, delivery.DeliverOptions{})
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.FloodGuard == nil {
		deps.FloodGuard = NewFloodGuard(deps.Deliveries)
	}
	if deps.Reporter == nil {
		deps.Reporter = report.LogReporter{}
	}
	return &Dispatcher{
		users:      deps.Users,
		interests:  deps.Interests,
		deliveries: deps.Deliveries,
		receipts:   deps.Receipts,
		transport:  deps.Transport,
		renderer:   deps.Renderer,
		guard:      deps.FloodGuard,
		reporter:   deps.Reporter,
		locker:     deps.Locker,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Deliver sends every queued delivery matching sel, one user at a time.
//
// The flood guard runs first (unless opts.Force) and aborts the whole run
// with ErrFloodDetected before anything is touched. For each message the
// transport accepts, the consolidated deliveries are deleted and a Receipt
// is written. Rejected messages leave their deliveries queued for the next run.
func (d *Dispatcher) Deliver(ctx context.Context, sel Selector, opts DeliverOptions) (*DeliverStats, error) {
	start := time.Now()
	stats := &DeliverStats{RunID: uuid.New().String()}
	ctx, span := tracing.Start(ctx, "delivery.Deliver",
		attribute.String("delivery.run_id", stats.RunID),
		attribute.String("delivery.mechanism", sel.Mechanism),
		attribute.String("delivery.email_frequency", sel.EmailFrequency),
		attribute.Bool("delivery.dry_run", opts.DryRun),
	)
	defer span.End()
	logger := slog.Default().With(
		slog.String("run_id", stats.RunID),
		slog.String("selector", sel.String()))

	if err := sel.validate(); err != nil {
		return stats, err
	}
	filter := sel.filter()

	if !opts.Force {
		status, err := d.guard.Check(ctx, filter)
		stats.Flood = status
		if errors.Is(err, ErrFloodDetected) {
			metrics.RecordFloodTrip(sel.Mechanism, sel.EmailFrequency)
			d.reporter.Report(ctx, entity.NewWarningReport("Delivery",
				fmt.Sprintf("Flood detected for %s: %d deliveries across %d interests, nothing sent", sel, status.Deliveries, status.Interests),
				map[string]any{
					"deliveries": status.Deliveries,
					"interests":  status.Interests,
					"limit":      status.Limit,
					"run_id":     stats.RunID,
				}))
			tracing.Fail(span, err)
			return stats, err
		}
		if err != nil {
			return stats, fmt.Errorf("flood guard: %w", err)
		}
	}

	userIDs, err := d.deliveries.DistinctUsers(ctx, filter)
	if err != nil {
		return stats, fmt.Errorf("list users: %w", err)
	}

	var receipts []*entity.Receipt
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		sent, err := d.deliverForUser(ctx, userID, sel, opts, stats)
		if err != nil {
			// 他のユーザーの配信は続行する
			logger.Error("delivery for user failed", slog.Int64("user_id", userID), slog.Any("error", err))
			d.reporter.Report(ctx, entity.NewExceptionReport("Delivery",
				fmt.Sprintf("Problem delivering to user %d", userID), err,
				map[string]any{"user_id": userID, "run_id": stats.RunID}))
			continue
		}
		receipts = append(receipts, sent...)
	}

	stats.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("delivery.receipts", stats.Receipts))

	if len(receipts) > 0 {
		d.reporter.Report(ctx, entity.NewSuccessReport("Delivery",
			fmt.Sprintf("Sent %d notifications", len(receipts)),
			map[string]any{"report": d.summarize(ctx, receipts, sel), "run_id": stats.RunID}))
	} else {
		logger.Info("no notifications sent", slog.Int("dry_run", stats.DryRun))
	}

	logger.Info("delivery run complete",
		slog.Int("users", stats.Users),
		slog.Int("receipts", stats.Receipts),
		slog.Int("deliveries", stats.Deliveries),
		slog.Int("failures", stats.Failures),
		slog.Int("dropped", stats.Dropped),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

func userLockKey(userID int64) string {
	return "deliver:user:" + strconv.FormatInt(userID, 10)
}

// deliverForUser sends the user's queued deliveries under the per-user lock.
func (d *Dispatcher) deliverForUser(ctx context.Context, userID int64, sel Selector, opts DeliverOptions, stats *DeliverStats) ([]*entity.Receipt, error) {
	logger := slog.Default().With(slog.String("run_id", stats.RunID), slog.Int64("user_id", userID))

	if d.locker != nil {
		release, acquired, err := d.locker.TryLock(ctx, userLockKey(userID))
		if err != nil {
			return nil, fmt.Errorf("lock user: %w", err)
		}
		if !acquired {
			logger.Info("user delivery already in progress, skipping")
			stats.SkippedUsers++
			return nil, nil
		}
		defer release()
	}

	user, err := d.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || !user.Confirmed {
		logger.Info("skipping deliveries for missing or unconfirmed user")
		stats.SkippedUsers++
		return nil, nil
	}
	stats.Users++

	filter := sel.filter()
	filter.UserID = userID
	queued, err := d.deliveries.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	if len(queued) == 0 {
		return nil, nil
	}

	groups, err := d.groupByInterest(ctx, queued)
	if err != nil {
		return nil, err
	}

	run := &userRun{d: d, user: user, sel: sel, opts: opts, stats: stats, logger: logger}
	switch {
	case sel.Mechanism == entity.MechanismSMS:
		run.sms(ctx, groups)
	case sel.EmailFrequency == entity.FrequencyDaily:
		run.digest(ctx, groups, queued)
	default:
		run.immediate(ctx, groups)
	}

	if len(run.failures) > 0 {
		d.reporter.Report(ctx, entity.NewFailureReport("Delivery",
			fmt.Sprintf("Failed to deliver %d %s messages to %s", len(run.failures), sel.Mechanism, user.Email),
			map[string]any{"failures": run.failures, "user_id": user.ID, "run_id": stats.RunID}))
	}
	if len(run.receipts) > 0 {
		logger.Info("delivered messages", slog.Int("count", len(run.receipts)), slog.String("selector", sel.String()))
	}
	return run.receipts, nil
}

// groupByInterest groups deliveries by the interest they are seen through,
// in queue order. Interests that no longer exist are stood in for by the
// data carried on the delivery.
func (d *Dispatcher) groupByInterest(ctx context.Context, deliveries []*entity.Delivery) ([]interestGroup, error) {
	var groups []interestGroup
	index := make(map[int64]int)
	for _, del := range deliveries {
		i, ok := index[del.SeenThroughID]
		if !ok {
			interest, err := d.interests.Get(ctx, del.SeenThroughID)
			if err != nil {
				return nil, fmt.Errorf("load interest %d: %w", del.SeenThroughID, err)
			}
			if interest == nil {
				interest = &entity.Interest{
					ID:           del.SeenThroughID,
					UserID:       del.UserID,
					In:           del.InterestIn,
					InterestType: entity.InterestTypeSearch,
				}
			}
			i = len(groups)
			index[del.SeenThroughID] = i
			groups = append(groups, interestGroup{interest: interest})
		}
		groups[i].deliveries = append(groups[i].deliveries, del)
	}
	return groups, nil
}

// userRun carries the state of one user's deliveries within a run.
type userRun struct {
	d        *Dispatcher
	user     *entity.User
	sel      Selector
	opts     DeliverOptions
	stats    *DeliverStats
	logger   *slog.Logger
	receipts []*entity.Receipt
	failures []map[string]any
}

func (u *userRun) immediate(ctx context.Context, groups []interestGroup) {
	r := u.d.renderer
	for _, g := range groups {
		subject := r.Subject(g.interest, g.deliveries)
		content := r.Finalize(r.RenderInterest(g.interest, g.deliveries))
		u.send(ctx, subject, content, g.deliveries, map[string]any{"interest_id": g.interest.ID})
	}
}

func (u *userRun) digest(ctx context.Context, groups []interestGroup, all []*entity.Delivery) {
	r := u.d.renderer
	var b strings.Builder
	for _, g := range groups {
		b.WriteString(r.RenderInterest(g.interest, g.deliveries))
	}
	u.send(ctx, DigestSubject(len(all)), r.Finalize(b.String()), all, nil)
}

func (u *userRun) sms(ctx context.Context, groups []interestGroup) {
	if !u.user.CanReceiveSMS() {
		u.d.reporter.Report(ctx, entity.NewFailureReport("Delivery",
			fmt.Sprintf("User is signed up for SMS alerts but has no confirmed phone %s", u.user.Email),
			map[string]any{"user_id": u.user.ID}))
		return
	}
	for _, g := range groups {
		msg, truncated, err := u.d.renderer.SMS(g.interest, g.deliveries)
		if err != nil {
			metrics.RecordSMSTruncation(true)
			u.stats.Dropped++
			u.d.reporter.Report(ctx, entity.NewExceptionReport("Delivery",
				fmt.Sprintf("SMS for interest %d could not be shortened to %d characters, dropped", g.interest.ID, SMSLimit), err,
				map[string]any{"user_id": u.user.ID, "interest_id": g.interest.ID, "original": msg, "deliveries": snapshotOf(g.deliveries)}))
			u.drop(ctx, g.deliveries)
			continue
		}
		if truncated {
			metrics.RecordSMSTruncation(false)
			u.d.reporter.Report(ctx, entity.NewWarningReport("Delivery",
				fmt.Sprintf("SMS more than %d characters, truncated", SMSLimit),
				map[string]any{"user_id": u.user.ID, "interest_id": g.interest.ID, "truncated": msg}))
		}
		u.send(ctx, "", msg, g.deliveries, map[string]any{"interest_id": g.interest.ID})
	}
}

// send transmits one message. On success the deliveries are deleted first
// and the receipt written after, so a crash in between can lose the receipt
// but never re-send.
func (u *userRun) send(ctx context.Context, subject, content string, deliveries []*entity.Delivery, failure map[string]any) {
	if u.opts.DryRun {
		u.stats.DryRun++
		u.logger.Info("DRY RUN: would send",
			slog.String("mechanism", u.sel.Mechanism),
			slog.String("to", u.recipient()),
			slog.String("subject", subject),
			slog.Int("deliveries", len(deliveries)),
			slog.String("content", content))
		return
	}

	u.stats.Messages++
	var ok bool
	if u.sel.Mechanism == entity.MechanismSMS {
		ok = u.d.transport.SendSMS(ctx, u.user.Phone, content)
	} else {
		ok = u.d.transport.SendEmail(ctx, u.user.Email, subject, content)
	}
	if !ok {
		metrics.RecordSendFailure(u.sel.Mechanism)
		u.stats.Failures++
		if failure == nil {
			failure = map[string]any{}
		}
		failure["subject"] = subject
		failure["to"] = u.recipient()
		u.failures = append(u.failures, failure)
		return
	}

	ids := idsOf(deliveries)
	snapshot := snapshotOf(deliveries)
	if _, err := u.d.deliveries.DeleteByIDs(ctx, ids); err != nil {
		// 送信済みのため再送を防げない。報告のみ
		u.d.reporter.Report(ctx, entity.NewExceptionReport("Delivery",
			fmt.Sprintf("Sent to %s but could not clear %d deliveries", u.recipient(), len(ids)), err,
			map[string]any{"delivery_ids": ids, "user_id": u.user.ID}))
	}
	u.stats.Deliveries += len(deliveries)

	receipt := &entity.Receipt{
		UserID:         u.user.ID,
		UserEmail:      u.user.Email,
		Mechanism:      u.sel.Mechanism,
		EmailFrequency: u.frequency(),
		Subject:        subject,
		Content:        content,
		Deliveries:     snapshot,
		DeliveredAt:    u.d.now(),
	}
	if err := u.d.receipts.Create(ctx, receipt); err != nil {
		u.d.reporter.Report(ctx, entity.NewExceptionReport("Delivery",
			fmt.Sprintf("Sent to %s but could not save the receipt", u.recipient()), err,
			map[string]any{"user_id": u.user.ID, "subject": subject}))
		return
	}
	metrics.RecordReceipt(u.sel.Mechanism, u.frequency(), len(deliveries))
	u.stats.Receipts++
	u.receipts = append(u.receipts, receipt)
}

// drop removes deliveries that can never be sent so later runs do not
// render and report them again.
func (u *userRun) drop(ctx context.Context, deliveries []*entity.Delivery) {
	if u.opts.DryRun {
		return
	}
	ids := idsOf(deliveries)
	if _, err := u.d.deliveries.DeleteByIDs(ctx, ids); err != nil {
		u.d.reporter.Report(ctx, entity.NewExceptionReport("Delivery",
			fmt.Sprintf("Could not clear %d dropped deliveries for %s", len(ids), u.recipient()), err,
			map[string]any{"delivery_ids": ids, "user_id": u.user.ID}))
	}
}

func idsOf(deliveries []*entity.Delivery) []int64 {
	ids := make([]int64, len(deliveries))
	for i, del := range deliveries {
		ids[i] = del.ID
	}
	return ids
}

func snapshotOf(deliveries []*entity.Delivery) []entity.Delivery {
	snapshot := make([]entity.Delivery, len(deliveries))
	for i, del := range deliveries {
		snapshot[i] = *del
		snapshot[i].Item = del.Item.Copy()
	}
	return snapshot
}

func (u *userRun) recipient() string {
	if u.sel.Mechanism == entity.MechanismSMS {
		return u.user.Phone
	}
	return u.user.Email
}

func (u *userRun) frequency() string {
	if u.sel.Mechanism == entity.MechanismSMS {
		return entity.FrequencyImmediate
	}
	return u.sel.EmailFrequency
}

// summarize renders the operator breakdown of a run: per user, per
// interest, per subscription type.
func (d *Dispatcher) summarize(ctx context.Context, receipts []*entity.Receipt, sel Selector) string {
	byUser := make(map[string][]*entity.Receipt)
	var emails []string
	for _, rc := range receipts {
		if _, ok := byUser[rc.UserEmail]; !ok {
			emails = append(emails, rc.UserEmail)
		}
		byUser[rc.UserEmail] = append(byUser[rc.UserEmail], rc)
	}

	var b strings.Builder
	for _, email := range emails {
		userReceipts := byUser[email]
		fmt.Fprintf(&b, "[%s]%s %d notifications", email, sel, len(userReceipts))

		for _, rc := range userReceipts {
			byInterest := make(map[int64][]*entity.Delivery)
			var order []int64
			for i := range rc.Deliveries {
				del := &rc.Deliveries[i]
				if _, ok := byInterest[del.SeenThroughID]; !ok {
					order = append(order, del.SeenThroughID)
				}
				byInterest[del.SeenThroughID] = append(byInterest[del.SeenThroughID], del)
			}
			for _, id := range order {
				dels := byInterest[id]
				name := dels[0].InterestIn
				if interest, err := d.interests.Get(ctx, id); err == nil && interest != nil {
					name = d.renderer.InterestName(interest, dels)
				}
				fmt.Fprintf(&b, "\n\t%s - %d things\n\t\t", name, len(dels))

				counts := make(map[string]int)
				for _, del := range dels {
					counts[del.SubscriptionType]++
				}
				types := make([]string, 0, len(counts))
				for t := range counts {
					types = append(types, t)
				}
				sort.Strings(types)
				parts := make([]string, len(types))
				for i, t := range types {
					parts[i] = fmt.Sprintf("%s (%d)", t, counts[t])
				}
				b.WriteString(strings.Join(parts, ", "))
			}
		}
		b.WriteString("\n\n")
	}
	return b.String()
}
