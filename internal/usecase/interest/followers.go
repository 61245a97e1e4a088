package interest

import (
	"context"
	"fmt"
	"strconv"

	"scout-alerts/internal/domain/entity"
	"scout-alerts/internal/repository"
	"scout-alerts/internal/usecase/poll"
)

// FollowerFinder resolves the interests that receive another interest's
// items through a followed public tag.
type FollowerFinder struct {
	interests repository.InterestRepository
	tags      repository.TagRepository
}

// NewFollowerFinder creates a FollowerFinder.
func NewFollowerFinder(interests repository.InterestRepository, tags repository.TagRepository) *FollowerFinder {
	return &FollowerFinder{interests: interests, tags: tags}
}

var _ poll.FollowerSource = (*FollowerFinder)(nil)

// Followers implements poll.FollowerSource.
//
// The owner's public tags that interest carries are looked up, and every tag
// interest following one of them is returned. Tag interests themselves have
// no followers.
func (f *FollowerFinder) Followers(ctx context.Context, interest *entity.Interest) ([]*entity.Interest, error) {
	if interest.IsTag() || len(interest.Tags) == 0 {
		return nil, nil
	}

	public, err := f.tags.ListPublicByUser(ctx, interest.UserID)
	if err != nil {
		return nil, fmt.Errorf("list public tags: %w", err)
	}
	var ids []string
	for _, tag := range public {
		if interest.HasTag(tag.Name) {
			ids = append(ids, strconv.FormatInt(tag.ID, 10))
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	followers, err := f.interests.ListTagFollowers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list tag followers: %w", err)
	}
	out := followers[:0]
	for _, follower := range followers {
		if follower.ID != interest.ID {
			out = append(out, follower)
		}
	}
	return out, nil
}
