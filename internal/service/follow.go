package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/model"
	"github.com/templui/storyline/internal/repository"
)

// FollowResult holds both ends of the edge with their updated counters.
type FollowResult struct {
	Follower *model.Profile `json:"follower"`
	Target   *model.Profile `json:"target"`
}

// FollowService owns the follow graph and the follower/following counters
// on profiles. Each edge change and its counter updates share a transaction,
// and the pair's unique constraint settles concurrent requests.
type FollowService struct {
	store    TxRunner
	profiles repository.ProfileRepository
	follows  repository.FollowRepository
	now      func() time.Time
}

func NewFollowService(store TxRunner, profiles repository.ProfileRepository, follows repository.FollowRepository) *FollowService {
	return &FollowService{
		store:    store,
		profiles: profiles,
		follows:  follows,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *FollowService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *FollowService) Follow(ctx context.Context, followerID, targetID string) (*FollowResult, error) {
	if followerID == targetID {
		return nil, apperr.New(apperr.KindSelfFollowForbidden, "you cannot follow yourself")
	}

	now := s.now()
	var result *FollowResult

	err := s.store.InTx(ctx, func(tx repository.DBTX) error {
		profiles := s.profiles.WithTx(tx)
		follows := s.follows.WithTx(tx)

		err := ensureProfiles(ctx, profiles, followerID, targetID)
		if err != nil {
			return err
		}

		inserted, err := follows.Insert(ctx, &model.Follow{
			FollowerID: followerID,
			FolloweeID: targetID,
			Status:     model.FollowStatusFollow,
			CreatedAt:  now,
		})
		if err != nil {
			return fmt.Errorf("failed to create follow: %w", err)
		}

		if !inserted {
			flipped, err := follows.Transition(ctx, followerID, targetID, model.FollowStatusUnfollow, model.FollowStatusFollow, now)
			if err != nil {
				return fmt.Errorf("failed to refollow: %w", err)
			}
			if !flipped {
				return apperr.New(apperr.KindAlreadyFollowing, "you already follow this profile")
			}
		}

		err = profiles.IncrementFollowCounters(ctx, followerID, targetID, now)
		if err != nil {
			return fmt.Errorf("failed to update follow counters: %w", err)
		}

		result, err = loadPair(ctx, profiles, followerID, targetID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "profile followed", "follower_id", followerID, "target_id", targetID)
	return result, nil
}

func (s *FollowService) Unfollow(ctx context.Context, followerID, targetID string) (*FollowResult, error) {
	if followerID == targetID {
		return nil, apperr.New(apperr.KindSelfUnfollowForbidden, "you cannot unfollow yourself")
	}

	now := s.now()
	var result *FollowResult

	err := s.store.InTx(ctx, func(tx repository.DBTX) error {
		profiles := s.profiles.WithTx(tx)

		err := ensureProfiles(ctx, profiles, followerID, targetID)
		if err != nil {
			return err
		}

		flipped, err := s.follows.WithTx(tx).Transition(ctx, followerID, targetID, model.FollowStatusFollow, model.FollowStatusUnfollow, now)
		if err != nil {
			return fmt.Errorf("failed to unfollow: %w", err)
		}
		if !flipped {
			return apperr.New(apperr.KindNotFollowing, "you do not follow this profile")
		}

		err = profiles.DecrementFollowCounters(ctx, followerID, targetID, now)
		if err != nil {
			return fmt.Errorf("failed to update follow counters: %w", err)
		}

		result, err = loadPair(ctx, profiles, followerID, targetID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "profile unfollowed", "follower_id", followerID, "target_id", targetID)
	return result, nil
}

// Followers lists the profiles that currently follow profileID.
func (s *FollowService) Followers(ctx context.Context, profileID string) ([]model.Profile, error) {
	_, err := lookupProfile(s.profiles.ByID(ctx, profileID))
	if err != nil {
		return nil, err
	}

	profiles, err := s.follows.Followers(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	return profiles, nil
}

// Following lists the profiles profileID currently follows.
func (s *FollowService) Following(ctx context.Context, profileID string) ([]model.Profile, error) {
	_, err := lookupProfile(s.profiles.ByID(ctx, profileID))
	if err != nil {
		return nil, err
	}

	profiles, err := s.follows.Following(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list following: %w", err)
	}
	return profiles, nil
}

func ensureProfiles(ctx context.Context, profiles repository.ProfileRepository, ids ...string) error {
	for _, id := range ids {
		_, err := lookupProfile(profiles.ByID(ctx, id))
		if err != nil {
			return err
		}
	}
	return nil
}

func loadPair(ctx context.Context, profiles repository.ProfileRepository, followerID, targetID string) (*FollowResult, error) {
	follower, err := lookupProfile(profiles.ByID(ctx, followerID))
	if err != nil {
		return nil, err
	}
	target, err := lookupProfile(profiles.ByID(ctx, targetID))
	if err != nil {
		return nil, err
	}
	return &FollowResult{Follower: follower, Target: target}, nil
}
