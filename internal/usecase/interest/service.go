package interest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
	"scout-alerts/internal/usecase/poll"
)

// Initializer seeds a new subscription. Implemented by poll.Service.
type Initializer interface {
	Initialize(ctx context.Context, sub *entity.Subscription) error
}

// ItemFinder looks up a single provider item. Implemented by poll.Service.
type ItemFinder interface {
	Find(ctx context.Context, subscriptionType, itemID string, opts poll.Options) poll.Result
}

// FeedInspector reads the title and links of an external feed.
type FeedInspector interface {
	FetchDetails(ctx context.Context, feedURL string) (map[string]string, error)
}

// SearchInput describes a search interest.
type SearchInput struct {
	UserID     int64
	SearchType string // a search provider type or entity.SearchTypeAll
	Query      string
	QueryType  string // "simple" (default) or "advanced"
	Filters    map[string]string
}

// Deps groups the collaborators of the Service. Finder, Feeds and
// Initializer may be nil.
type Deps struct {
	Interests     repository.InterestRepository
	Subscriptions repository.SubscriptionRepository
	SeenItems     repository.SeenItemRepository
	Deliveries    repository.DeliveryRepository
	Tags          repository.TagRepository
	Registry      poll.Registry
	Initializer   Initializer
	Finder        ItemFinder
	Feeds         FeedInspector
}

// Service provides interest management use cases.
type Service struct {
	interests     repository.InterestRepository
	subscriptions repository.SubscriptionRepository
	seen          repository.SeenItemRepository
	deliveries    repository.DeliveryRepository
	tags          repository.TagRepository
	registry      poll.Registry
	initializer   Initializer
	finder        ItemFinder
	feeds         FeedInspector
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	return &Service{
		interests:     deps.Interests,
		subscriptions: deps.Subscriptions,
		seen:          deps.SeenItems,
		deliveries:    deps.Deliveries,
		tags:          deps.Tags,
		registry:      deps.Registry,
		initializer:   deps.Initializer,
		finder:        deps.Finder,
		feeds:         deps.Feeds,
	}
}

/* ───── find or create ───── */

// find returns the user's interest of interestType whose normalized subject
// is inNormal and for which match holds, or nil.
func (s *Service) find(ctx context.Context, userID int64, interestType, inNormal string, match func(*entity.Interest) bool) (*entity.Interest, error) {
	candidates, err := s.interests.FindCandidates(ctx, userID, interestType, inNormal)
	if err != nil {
		return nil, fmt.Errorf("find interests: %w", err)
	}
	for _, c := range candidates {
		if match == nil || match(c) {
			return c, nil
		}
	}
	return nil, nil
}

// FindOrCreateSearch returns the user's search interest with the same search
// type, query type, normalized query and exactly the same filters, creating
// it if needed.
// An interest with extra or missing filters is a different interest.
func (s *Service) FindOrCreateSearch(ctx context.Context, in SearchInput) (*entity.Interest, bool, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, false, &entity.ValidationError{Field: "query", Message: "is required"}
	}
	queryType := in.QueryType
	if queryType == "" {
		queryType = "simple"
	}
	searchType := in.SearchType
	if searchType == "" {
		searchType = entity.SearchTypeAll
	}

	data := map[string]string{"query": query, "query_type": queryType}
	for k, v := range in.Filters {
		if v != "" {
			data[k] = v
		}
	}
	candidate := &entity.Interest{InterestType: entity.InterestTypeSearch, Data: data}
	filters := candidate.Filters()

	// the query itself is matched through its normalized form
	existing, err := s.find(ctx, in.UserID, entity.InterestTypeSearch, entity.NormalizeIn(query), func(c *entity.Interest) bool {
		return c.SearchType == searchType && c.Data["query_type"] == queryType && c.SameFilters(filters)
	})
	if err != nil || existing != nil {
		return existing, false, err
	}

	interest := &entity.Interest{
		UserID:       in.UserID,
		In:           query,
		InterestType: entity.InterestTypeSearch,
		SearchType:   searchType,
		Data:         data,
	}
	if err := s.Create(ctx, interest); err != nil {
		return nil, false, err
	}
	return interest, true, nil
}

// FindOrCreateItem returns the user's interest in one provider item,
// creating it if needed. New interests are filled with the item's data when
// a Finder is configured.
func (s *Service) FindOrCreateItem(ctx context.Context, userID int64, itemType, itemID string) (*entity.Interest, bool, error) {
	itemID = strings.TrimSpace(itemID)
	existing, err := s.find(ctx, userID, entity.InterestTypeItem, entity.NormalizeIn(itemID), func(c *entity.Interest) bool {
		return c.ItemType == itemType && c.In == itemID
	})
	if err != nil || existing != nil {
		return existing, false, err
	}

	findType, _, ok := s.registry.ItemTypes(itemType)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownItemType, itemType)
	}

	interest := &entity.Interest{
		UserID:       userID,
		In:           itemID,
		InterestType: entity.InterestTypeItem,
		ItemType:     itemType,
		Data:         map[string]string{},
	}

	if s.finder != nil {
		result := s.finder.Find(ctx, findType, itemID, poll.Options{})
		if result.Err != nil {
			return nil, false, fmt.Errorf("find item: %w", result.Err)
		}
		item := result.Item()
		if item == nil {
			return nil, false, fmt.Errorf("%w: %s %s", ErrItemNotFound, itemType, itemID)
		}
		for k, v := range item.Data {
			if str, ok := v.(string); ok && str != "" {
				interest.Data[k] = str
			}
		}
	}

	if err := s.Create(ctx, interest); err != nil {
		return nil, false, err
	}
	return interest, true, nil
}

// FindOrCreateFeed returns the user's interest in an external feed,
// creating it if needed. New feeds are fetched once to validate them and
// record their title and links.
func (s *Service) FindOrCreateFeed(ctx context.Context, userID int64, feedURL string) (*entity.Interest, bool, error) {
	feedURL = strings.TrimSpace(feedURL)
	if err := entity.ValidateFeedURL(feedURL); err != nil {
		return nil, false, fmt.Errorf("validate feed URL: %w", err)
	}

	existing, err := s.find(ctx, userID, entity.InterestTypeFeed, entity.NormalizeIn(feedURL), func(c *entity.Interest) bool {
		return c.In == feedURL
	})
	if err != nil || existing != nil {
		return existing, false, err
	}

	interest := &entity.Interest{
		UserID:       userID,
		In:           feedURL,
		InterestType: entity.InterestTypeFeed,
		Data:         map[string]string{},
	}
	if s.feeds != nil {
		details, err := s.feeds.FetchDetails(ctx, feedURL)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidFeed, err)
		}
		for k, v := range details {
			if v != "" {
				interest.Data[k] = v
			}
		}
	}

	if err := s.Create(ctx, interest); err != nil {
		return nil, false, err
	}
	return interest, true, nil
}

// FindOrCreateTag returns the user's interest following another user's
// public tag, creating it if needed.
func (s *Service) FindOrCreateTag(ctx context.Context, userID, tagID int64) (*entity.Interest, bool, error) {
	tag, err := s.tags.Get(ctx, tagID)
	if err != nil {
		return nil, false, fmt.Errorf("get tag: %w", err)
	}
	if tag == nil || !tag.Public || tag.UserID == userID {
		return nil, false, fmt.Errorf("%w: %d", ErrTagNotFollowable, tagID)
	}

	in := strconv.FormatInt(tag.ID, 10)
	existing, err := s.find(ctx, userID, entity.InterestTypeTag, in, nil)
	if err != nil || existing != nil {
		return existing, false, err
	}

	interest := &entity.Interest{
		UserID:       userID,
		In:           in,
		InterestType: entity.InterestTypeTag,
		Data:         map[string]string{"name": tag.Name, "user_id": strconv.FormatInt(tag.UserID, 10)},
	}
	if err := s.Create(ctx, interest); err != nil {
		return nil, false, err
	}
	return interest, true, nil
}

/* ───── subscriptions ───── */

// SubscriptionTypes lists the subscription types an interest is polled through.
// Tag interests have none; the followed interests' subscriptions serve them.
func (s *Service) SubscriptionTypes(interest *entity.Interest) []string {
	switch interest.InterestType {
	case entity.InterestTypeSearch:
		if interest.SearchType == entity.SearchTypeAll {
			return s.registry.SearchTypes()
		}
		if _, ok := s.registry.Adapter(interest.SearchType); !ok {
			return nil
		}
		return []string{interest.SearchType}
	case entity.InterestTypeItem:
		_, types, ok := s.registry.ItemTypes(interest.ItemType)
		if !ok {
			return nil
		}
		return types
	case entity.InterestTypeFeed:
		if _, ok := s.registry.Adapter("feed"); !ok {
			return nil
		}
		return []string{"feed"}
	default:
		return nil
	}
}

// SubscriptionsFor builds the unsaved subscriptions of interest.
func (s *Service) SubscriptionsFor(interest *entity.Interest) []*entity.Subscription {
	types := s.SubscriptionTypes(interest)
	subs := make([]*entity.Subscription, 0, len(types))
	for _, typ := range types {
		data := make(map[string]string, len(interest.Data))
		for k, v := range interest.Data {
			data[k] = v
		}
		subs = append(subs, &entity.Subscription{
			InterestID:       interest.ID,
			UserID:           interest.UserID,
			SubscriptionType: typ,
			InterestIn:       interest.In,
			Data:             data,
		})
	}
	return subs
}

// Create validates and saves interest, then creates and initializes its
// subscriptions. A subscription that fails to initialize stays
// uninitialized for the next initialization sweep; it does not fail Create.
func (s *Service) Create(ctx context.Context, interest *entity.Interest) error {
	if err := interest.Validate(); err != nil {
		return err
	}
	if err := s.interests.Create(ctx, interest); err != nil {
		return fmt.Errorf("create interest: %w", err)
	}

	for _, sub := range s.SubscriptionsFor(interest) {
		if err := s.subscriptions.Create(ctx, sub); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		if s.initializer == nil {
			continue
		}
		if err := s.initializer.Initialize(ctx, sub); err != nil {
			slog.Default().Warn("subscription not initialized, will retry",
				slog.Int64("subscription_id", sub.ID),
				slog.String("subscription_type", sub.SubscriptionType),
				slog.Any("error", err))
		}
	}
	return nil
}

// UpdateNotifications sets the per-interest notification override.
// An empty value falls back to the owner's default.
func (s *Service) UpdateNotifications(ctx context.Context, id int64, notifications string) error {
	interest, err := s.interests.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get interest: %w", err)
	}
	if interest == nil {
		return ErrInterestNotFound
	}
	interest.Notifications = notifications
	if err := interest.Validate(); err != nil {
		return err
	}
	if err := s.interests.Update(ctx, interest); err != nil {
		return fmt.Errorf("update interest: %w", err)
	}
	return nil
}

// Destroy removes an interest with its subscriptions, seen items and queued
// deliveries.
func (s *Service) Destroy(ctx context.Context, id int64) error {
	if id <= 0 {
		return &entity.ValidationError{Field: "id", Message: "must be positive"}
	}
	interest, err := s.interests.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get interest: %w", err)
	}
	if interest == nil {
		return ErrInterestNotFound
	}

	// 購読を先に消して、実行中のチェックが孤立購読として自己修復できるようにする
	if err := s.subscriptions.DeleteByInterest(ctx, id); err != nil {
		return fmt.Errorf("delete subscriptions: %w", err)
	}
	seen, err := s.seen.DeleteByInterest(ctx, id)
	if err != nil {
		return fmt.Errorf("delete seen items: %w", err)
	}
	queued, err := s.deliveries.DeleteByInterest(ctx, id)
	if err != nil {
		return fmt.Errorf("delete deliveries: %w", err)
	}
	if err := s.interests.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete interest: %w", err)
	}

	slog.Default().Info("interest destroyed",
		slog.Int64("interest_id", id),
		slog.String("interest_type", interest.InterestType),
		slog.Int64("seen_items", seen),
		slog.Int64("deliveries", queued))
	return nil
}

// IsNotFound reports whether err means the interest or item does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInterestNotFound) || errors.Is(err, ErrItemNotFound)
}
