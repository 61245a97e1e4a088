// Package delivery queues newly seen items for their recipients and drains
// the queue into rendered email and SMS messages.
package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/observability/metrics"
	"scout-alerts/internal/repository"
	"scout-alerts/internal/usecase/poll"
)

// Override forces a mechanism and email frequency on every scheduled
// delivery. Used when debugging a user's notifications.
type Override struct {
	Mechanism      string
	EmailFrequency string
}

// Scheduler turns newly seen items into queued deliveries.
type Scheduler struct {
	users      repository.UserRepository
	deliveries repository.DeliveryRepository
	override   *Override
}

// NewScheduler creates a Scheduler.
func NewScheduler(users repository.UserRepository, deliveries repository.DeliveryRepository) *Scheduler {
	return &Scheduler{users: users, deliveries: deliveries}
}

// WithOverride makes every delivery use o instead of the recipient's preferences.
func (s *Scheduler) WithOverride(o Override) *Scheduler {
	s.override = &o
	return s
}

var _ poll.Scheduler = (*Scheduler)(nil)

// ScheduleDelivery implements poll.Scheduler.
//
// The recipient is the owner of seenThrough. Its notification preference
// (interest override first, then the account default) picks the mechanism.
// Recipients who want no notifications, are unconfirmed, or chose SMS
// without a confirmed phone get no delivery and no error.
func (s *Scheduler) ScheduleDelivery(
	ctx context.Context,
	item *entity.SeenItem,
	discovering *entity.Interest,
	subscriptionType string,
	seenThrough *entity.Interest,
) error {
	logger := slog.Default().With(
		slog.String("subscription_type", subscriptionType),
		slog.String("interest_in", discovering.In),
		slog.String("item_id", item.ItemID),
	)

	user, err := s.users.Get(ctx, seenThrough.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", seenThrough.UserID, err)
	}
	if user == nil {
		logger.Warn("not scheduling delivery, recipient not found", slog.Int64("user_id", seenThrough.UserID))
		return nil
	}
	logger = logger.With(slog.Int64("user_id", user.ID))

	if !user.Confirmed {
		logger.Debug("not scheduling delivery, user unconfirmed")
		return nil
	}

	mechanism, frequency, ok := entity.DeliveryOptions(user.ResolveNotifications(seenThrough))
	if s.override != nil {
		mechanism, frequency, ok = s.override.Mechanism, s.override.EmailFrequency, true
	}
	switch {
	case !ok, mechanism != entity.MechanismEmail && mechanism != entity.MechanismSMS:
		logger.Debug("not scheduling delivery, user wants no notifications for this interest")
		return nil
	case mechanism == entity.MechanismSMS && !user.CanReceiveSMS():
		logger.Warn("not scheduling delivery, sms requested without a confirmed phone")
		return nil
	}
	if mechanism == entity.MechanismSMS || frequency == "" {
		frequency = entity.FrequencyImmediate
	}

	d := &entity.Delivery{
		UserID:           user.ID,
		UserEmail:        user.Email,
		UserPhone:        user.Phone,
		SubscriptionID:   item.SubscriptionID,
		SubscriptionType: subscriptionType,
		InterestID:       discovering.ID,
		InterestIn:       discovering.In,
		SeenThroughID:    seenThrough.ID,
		Mechanism:        mechanism,
		EmailFrequency:   frequency,
		Item:             item.Copy(),
	}
	if err := s.deliveries.Create(ctx, d); err != nil {
		return fmt.Errorf("create delivery: %w", err)
	}

	metrics.RecordDeliveryScheduled(mechanism, frequency)
	logger.Info("scheduled delivery",
		slog.String("mechanism", mechanism),
		slog.String("email_frequency", frequency),
		slog.Int64("seen_through_id", seenThrough.ID))
	return nil
}
