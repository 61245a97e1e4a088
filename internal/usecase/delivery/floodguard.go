package delivery

import (
	"context"
	"fmt"

	"scout-alerts/internal/repository"
)

// Flood guard defaults: a full provider page per interest, halved.
const (
	DefaultMaxPerPage     = 40
	DefaultFloodThreshold = 0.5
)

// FloodStatus is the measurement behind a flood guard decision.
type FloodStatus struct {
	Deliveries int64
	Interests  int64
	Limit      float64
}

// Flooded reports whether the queue exceeds the limit.
func (s FloodStatus) Flooded() bool {
	return float64(s.Deliveries) > s.Limit
}

// FloodGuard refuses dispatch runs whose queue is larger than the number of
// interests involved could plausibly produce in one cycle. It catches a
// provider returning the same page of false positives to every subscriber.
type FloodGuard struct {
	deliveries repository.DeliveryRepository
	maxPerPage int
	threshold  float64
}

// NewFloodGuard creates a guard with the default page size and threshold.
func NewFloodGuard(deliveries repository.DeliveryRepository) *FloodGuard {
	return &FloodGuard{
		deliveries: deliveries,
		maxPerPage: DefaultMaxPerPage,
		threshold:  DefaultFloodThreshold,
	}
}

// WithLimits overrides the page size and threshold. Non-positive values keep the defaults.
func (g *FloodGuard) WithLimits(maxPerPage int, threshold float64) *FloodGuard {
	if maxPerPage > 0 {
		g.maxPerPage = maxPerPage
	}
	if threshold > 0 {
		g.threshold = threshold
	}
	return g
}

// Check measures the queue selected by filter. It returns ErrFloodDetected
// (with the status) when deliveries > interests × maxPerPage × threshold.
func (g *FloodGuard) Check(ctx context.Context, filter repository.DeliveryFilter) (FloodStatus, error) {
	count, err := g.deliveries.Count(ctx, filter)
	if err != nil {
		return FloodStatus{}, fmt.Errorf("count deliveries: %w", err)
	}
	interests, err := g.deliveries.CountDistinctInterests(ctx, filter)
	if err != nil {
		return FloodStatus{}, fmt.Errorf("count interests: %w", err)
	}

	status := FloodStatus{
		Deliveries: count,
		Interests:  interests,
		Limit:      float64(interests) * float64(g.maxPerPage) * g.threshold,
	}
	if status.Flooded() {
		return status, ErrFloodDetected
	}
	return status, nil
}
