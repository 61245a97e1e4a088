package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/observability/metrics"
	"scout-alerts/internal/observability/tracing"
)

// CheckOptions tunes a check.
type CheckOptions struct {
	// DryRun detects new items without writing anything.
	DryRun bool
	// DisableBackfill delivers old items too.
	DisableBackfill bool
}

// CheckResult summarizes one check.
type CheckResult struct {
	New        int
	Scheduled  int
	Backfilled int
	Vetoed     int
}

// CycleStats summarizes a CheckAll or InitializeAll run.
type CycleStats struct {
	Subscriptions int
	Succeeded     int64
	Failed        int64
	Skipped       int64
	New           int64
	Scheduled     int64
	Backfilled    int64
	Vetoed        int64
	Duration      time.Duration
}

func lockKey(sub *entity.Subscription) string {
	return "poll:subscription:" + strconv.FormatInt(sub.ID, 10)
}

// withLock runs fn under the subscription lock. ErrSubscriptionBusy is
// returned when another worker holds it.
func (s *Service) withLock(ctx context.Context, sub *entity.Subscription, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	release, acquired, err := s.locker.TryLock(ctx, lockKey(sub))
	if err != nil {
		return fmt.Errorf("lock subscription: %w", err)
	}
	if !acquired {
		return ErrSubscriptionBusy
	}
	defer release()
	return fn()
}

// Initialize seeds the seen items of sub without delivering anything and
// marks it initialized. Running it again clears and re-seeds.
//
// A subscription whose interest is gone is deleted with its seen items and
// ErrOrphaned is returned.
func (s *Service) Initialize(ctx context.Context, sub *entity.Subscription) error {
	ctx, span := tracing.Start(ctx, "poll.Initialize", attribute.Int64("subscription.id", sub.ID))
	defer span.End()

	return s.withLock(ctx, sub, func() error {
		interest, err := s.interests.Get(ctx, sub.InterestID)
		if err != nil {
			return fmt.Errorf("get interest: %w", err)
		}
		if interest == nil {
			return s.cleanupOrphan(ctx, sub)
		}

		if _, err := s.seen.DeleteBySubscription(ctx, sub.ID); err != nil {
			return fmt.Errorf("clear seen items: %w", err)
		}

		result := s.Poll(ctx, sub, FuncInitialize, Options{})
		if result.Err != nil {
			s.report(ctx, entity.NewFailureReport("Initialization",
				fmt.Sprintf("[%s][%s] Error while initializing subscription", sub.SubscriptionType, sub.InterestIn),
				map[string]any{
					"subscription_id": sub.ID,
					"kind":            string(result.Err.Kind),
					"error":           result.Err.Message,
				}))
			return result.Err
		}

		seeded := 0
		for _, item := range result.Items {
			if item.ItemID == "" {
				continue
			}
			s.stamp(item, interest)
			if err := s.seen.Create(ctx, item); err != nil {
				if errors.Is(err, entity.ErrDuplicate) {
					continue
				}
				return fmt.Errorf("mark seen: %w", err)
			}
			seeded++
		}

		if err := s.subscriptions.MarkInitialized(ctx, sub.ID, s.now()); err != nil {
			return fmt.Errorf("mark initialized: %w", err)
		}
		sub.Initialized = true

		slog.Default().Info("subscription initialized",
			slog.Int64("subscription_id", sub.ID),
			slog.String("subscription_type", sub.SubscriptionType),
			slog.Int("seen_items", seeded))
		return nil
	})
}

// Check polls sub for new items, marks them seen and schedules deliveries
// for the discovering interest and each follower interest.
//
// Items older than the backfill window and items vetoed by the adapter's
// double check are marked seen but not delivered. A failed poll leaves
// LastCheckedAt untouched so the next cycle retries.
func (s *Service) Check(ctx context.Context, sub *entity.Subscription, opts CheckOptions) (*CheckResult, error) {
	ctx, span := tracing.Start(ctx, "poll.Check",
		attribute.Int64("subscription.id", sub.ID),
		attribute.Bool("check.dry_run", opts.DryRun),
	)
	defer span.End()

	res := &CheckResult{}
	err := s.withLock(ctx, sub, func() error {
		return s.check(ctx, sub, opts, res)
	})
	if err != nil {
		tracing.Fail(span, err)
		return res, err
	}
	span.SetAttributes(
		attribute.Int("check.new", res.New),
		attribute.Int("check.scheduled", res.Scheduled),
	)
	return res, nil
}

func (s *Service) check(ctx context.Context, sub *entity.Subscription, opts CheckOptions, res *CheckResult) error {
	logger := slog.Default()

	interest, err := s.interests.Get(ctx, sub.InterestID)
	if err != nil {
		return fmt.Errorf("get interest: %w", err)
	}
	if interest == nil {
		if opts.DryRun {
			return ErrOrphaned
		}
		return s.cleanupOrphan(ctx, sub)
	}

	result := s.Poll(ctx, sub, FuncCheck, Options{})
	if result.Err != nil {
		logger.Warn("check failed, will check again next time",
			slog.Int64("subscription_id", sub.ID),
			slog.String("subscription_type", sub.SubscriptionType),
			slog.String("kind", string(result.Err.Kind)))
		return result.Err
	}

	// N+1問題解消: 事前に全item_idをバッチで存在チェック
	ids := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		if item.ItemID != "" {
			ids = append(ids, item.ItemID)
		}
	}
	seen := map[string]bool{}
	if len(ids) > 0 {
		seen, err = s.seen.ExistsBatch(ctx, interest.ID, ids)
		if err != nil {
			return fmt.Errorf("check seen items: %w", err)
		}
	}

	adapter, _ := s.registry.Adapter(sub.SubscriptionType)
	checker, _ := adapter.(DoubleChecker)
	cutoff := s.now().Add(-s.cfg.BackfillWindow)

	var backfills []*entity.SeenItem
	emptyIDs := 0
	for _, item := range result.Items {
		if item.ItemID == "" {
			emptyIDs++
			logger.Warn("item without id, skipping",
				slog.Int64("subscription_id", sub.ID),
				slog.String("subscription_type", sub.SubscriptionType))
			continue
		}
		if seen[item.ItemID] {
			continue
		}
		seen[item.ItemID] = true
		s.stamp(item, interest)

		if !opts.DryRun {
			if err := s.seen.Create(ctx, item); err != nil {
				if errors.Is(err, entity.ErrDuplicate) {
					continue
				}
				return fmt.Errorf("mark seen: %w", err)
			}
		}
		res.New++

		if checker != nil && !checker.DoubleCheck(item, sub) {
			res.Vetoed++
			s.recordVeto(ctx, sub, item, opts.DryRun)
			continue
		}

		if !opts.DisableBackfill && !item.Date.IsZero() && item.Date.Before(cutoff) {
			res.Backfilled++
			backfills = append(backfills, item)
			continue
		}

		if opts.DryRun {
			res.Scheduled++
			continue
		}
		n, err := s.fanOut(ctx, item, interest, sub.SubscriptionType)
		res.Scheduled += n
		if err != nil {
			// 未配信の受信者を失わないよう、次回のチェックで再度新着として扱う
			if uerr := s.seen.Delete(ctx, interest.ID, item.ItemID); uerr != nil {
				logger.Error("could not unmark item after failed scheduling",
					slog.Int64("subscription_id", sub.ID),
					slog.String("item_id", item.ItemID),
					slog.Any("error", uerr))
			}
			return err
		}
	}

	if len(backfills) > 0 && !opts.DryRun {
		s.recordBackfills(ctx, sub, backfills)
	}

	metrics.RecordSeenItems(sub.SubscriptionType, res.New)
	metrics.RecordSuppressed(sub.SubscriptionType, metrics.ReasonBackfill, res.Backfilled)
	metrics.RecordSuppressed(sub.SubscriptionType, metrics.ReasonDoubleCheck, res.Vetoed)
	metrics.RecordSuppressed(sub.SubscriptionType, metrics.ReasonEmptyID, emptyIDs)

	if opts.DryRun {
		logger.Info("dry run check completed",
			slog.Int64("subscription_id", sub.ID),
			slog.Int("new", res.New),
			slog.Int("would_schedule", res.Scheduled))
		return nil
	}

	now := s.now()
	if err := s.subscriptions.TouchCheckedAt(ctx, sub.ID, now); err != nil {
		return fmt.Errorf("touch checked at: %w", err)
	}
	sub.LastCheckedAt = &now
	return nil
}

// fanOut schedules item for the discovering interest and each follower.
func (s *Service) fanOut(ctx context.Context, item *entity.SeenItem, interest *entity.Interest, subscriptionType string) (int, error) {
	if err := s.scheduler.ScheduleDelivery(ctx, item, interest, subscriptionType, interest); err != nil {
		return 0, fmt.Errorf("schedule delivery: %w", err)
	}
	scheduled := 1

	if s.followers == nil {
		return scheduled, nil
	}
	followers, err := s.followers.Followers(ctx, interest)
	if err != nil {
		return scheduled, fmt.Errorf("list followers: %w", err)
	}
	for _, follower := range followers {
		if err := s.scheduler.ScheduleDelivery(ctx, item, interest, subscriptionType, follower); err != nil {
			return scheduled, fmt.Errorf("schedule follower delivery: %w", err)
		}
		scheduled++
	}
	return scheduled, nil
}

func (s *Service) stamp(item *entity.SeenItem, interest *entity.Interest) {
	item.InterestID = interest.ID
	item.InterestType = interest.InterestType
	if item.ItemType == "" {
		item.ItemType = interest.ItemType
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
}

func (s *Service) cleanupOrphan(ctx context.Context, sub *entity.Subscription) error {
	removed, err := s.seen.DeleteBySubscription(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("delete orphan seen items: %w", err)
	}
	if err := s.subscriptions.Delete(ctx, sub.ID); err != nil {
		return fmt.Errorf("delete orphan subscription: %w", err)
	}

	attached := map[string]any{
		"subscription_id": sub.ID,
		"interest_id":     sub.InterestID,
		"seen_items":      removed,
	}
	s.recordEvent(ctx, &entity.Event{
		Type:             entity.EventOrphan,
		SubscriptionType: sub.SubscriptionType,
		InterestIn:       sub.InterestIn,
		Data:             attached,
	})
	s.report(ctx, entity.NewWarningReport("Subscription",
		fmt.Sprintf("[%s][%s] Deleted orphaned subscription", sub.SubscriptionType, sub.InterestIn),
		attached))
	return ErrOrphaned
}

func (s *Service) recordVeto(ctx context.Context, sub *entity.Subscription, item *entity.SeenItem, dryRun bool) {
	slog.Default().Warn("item vetoed by double check",
		slog.Int64("subscription_id", sub.ID),
		slog.String("item_id", item.ItemID))
	if dryRun {
		return
	}
	attached := map[string]any{
		"subscription_id": sub.ID,
		"interest_id":     sub.InterestID,
		"item_id":         item.ItemID,
		"url":             item.SearchURL,
	}
	s.recordEvent(ctx, &entity.Event{
		Type:             entity.EventDoubleCheck,
		SubscriptionType: sub.SubscriptionType,
		InterestIn:       sub.InterestIn,
		Data:             attached,
	})
	s.report(ctx, entity.NewWarningReport("Check",
		fmt.Sprintf("[%s][%s] Match for %s failed double check, not delivered", sub.SubscriptionType, sub.InterestIn, item.ItemID),
		attached))
}

func (s *Service) recordBackfills(ctx context.Context, sub *entity.Subscription, items []*entity.SeenItem) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ItemID)
	}
	attached := map[string]any{
		"subscription_id": sub.ID,
		"interest_id":     sub.InterestID,
		"item_ids":        ids,
	}
	s.recordEvent(ctx, &entity.Event{
		Type:             entity.EventBackfills,
		SubscriptionType: sub.SubscriptionType,
		InterestIn:       sub.InterestIn,
		Data:             attached,
	})
	s.report(ctx, entity.NewWarningReport("Check",
		fmt.Sprintf("[%s][%s] %d backfills not delivered, attached", sub.SubscriptionType, sub.InterestIn, len(items)),
		attached))
}

func (s *Service) recordEvent(ctx context.Context, event *entity.Event) {
	if s.events == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	if err := s.events.CreateEvent(ctx, event); err != nil {
		slog.Default().Warn("failed to record event",
			slog.String("type", event.Type),
			slog.Any("error", err))
	}
}

// CheckAll checks every initialized subscription with bounded parallelism.
// Failures of single subscriptions are counted, never returned.
func (s *Service) CheckAll(ctx context.Context, opts CheckOptions) (*CycleStats, error) {
	subs, err := s.subscriptions.ListInitialized(ctx)
	if err != nil {
		return nil, fmt.Errorf("list initialized subscriptions: %w", err)
	}
	return s.forEach(ctx, "check", subs, func(ctx context.Context, sub *entity.Subscription, stats *CycleStats) error {
		res, err := s.Check(ctx, sub, opts)
		if res != nil {
			atomic.AddInt64(&stats.New, int64(res.New))
			atomic.AddInt64(&stats.Scheduled, int64(res.Scheduled))
			atomic.AddInt64(&stats.Backfilled, int64(res.Backfilled))
			atomic.AddInt64(&stats.Vetoed, int64(res.Vetoed))
		}
		return err
	})
}

// InitializeAll initializes every subscription whose first poll has not succeeded yet.
func (s *Service) InitializeAll(ctx context.Context) (*CycleStats, error) {
	subs, err := s.subscriptions.ListUninitialized(ctx)
	if err != nil {
		return nil, fmt.Errorf("list uninitialized subscriptions: %w", err)
	}
	return s.forEach(ctx, "initialize", subs, func(ctx context.Context, sub *entity.Subscription, _ *CycleStats) error {
		return s.Initialize(ctx, sub)
	})
}

func (s *Service) forEach(
	ctx context.Context,
	name string,
	subs []*entity.Subscription,
	fn func(context.Context, *entity.Subscription, *CycleStats) error,
) (*CycleStats, error) {
	logger := slog.Default()
	start := time.Now()
	stats := &CycleStats{Subscriptions: len(subs)}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Parallelism)

	for _, sub := range subs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			err := fn(egCtx, sub, stats)
			switch {
			case err == nil:
				atomic.AddInt64(&stats.Succeeded, 1)
			case errors.Is(err, ErrSubscriptionBusy), errors.Is(err, ErrOrphaned):
				atomic.AddInt64(&stats.Skipped, 1)
			case errors.Is(err, context.Canceled):
				return err
			default:
				atomic.AddInt64(&stats.Failed, 1)
				logger.Warn(name+" failed",
					slog.Int64("subscription_id", sub.ID),
					slog.String("subscription_type", sub.SubscriptionType),
					slog.Any("error", err))
			}
			return nil
		})
	}

	err := eg.Wait()
	stats.Duration = time.Since(start)
	metrics.RecordOperationDuration(name+"_cycle", stats.Duration)

	logger.Info(name+" cycle completed",
		slog.Int("subscriptions", stats.Subscriptions),
		slog.Int64("succeeded", stats.Succeeded),
		slog.Int64("failed", stats.Failed),
		slog.Int64("skipped", stats.Skipped),
		slog.Int64("new", stats.New),
		slog.Int64("scheduled", stats.Scheduled),
		slog.Duration("duration", stats.Duration))

	if err != nil {
		return stats, err
	}
	return stats, nil
}
