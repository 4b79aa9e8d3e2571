package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/model"
)

func assertCountersMatchEdges(t *testing.T, e *env, profiles ...*model.Profile) {
	t.Helper()
	ctx := context.Background()

	for _, p := range profiles {
		stored, err := e.profile.ByID(ctx, p.ID)
		require.NoError(t, err)

		followers, following, err := e.follows.LiveCounts(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, followers, stored.FollowersCount, "followers of %s", p.Username)
		assert.Equal(t, following, stored.FollowingCount, "following of %s", p.Username)
	}
}

func TestFollowUnfollowTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.newProfile(t, "alice"), e.newProfile(t, "bob")

	result, err := e.follow.Follow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Follower.FollowingCount)
	assert.Equal(t, 1, result.Target.FollowersCount)

	_, err = e.follow.Follow(ctx, alice.ID, bob.ID)
	requireKind(t, err, apperr.KindAlreadyFollowing)

	result, err = e.follow.Unfollow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Follower.FollowingCount)
	assert.Equal(t, 0, result.Target.FollowersCount)

	_, err = e.follow.Unfollow(ctx, alice.ID, bob.ID)
	requireKind(t, err, apperr.KindNotFollowing)

	// Refollowing reuses the edge and counts on both sides.
	result, err = e.follow.Follow(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Follower.FollowingCount)
	assert.Equal(t, 1, result.Target.FollowersCount)

	var edges int
	require.NoError(t, e.store.DB().GetContext(ctx, &edges,
		`SELECT COUNT(*) FROM follows WHERE follower_profile_id = $1 AND followee_profile_id = $2`, alice.ID, bob.ID))
	assert.Equal(t, 1, edges)
}

func TestFollowGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newProfile(t, "alice")

	_, err := e.follow.Follow(ctx, alice.ID, alice.ID)
	requireKind(t, err, apperr.KindSelfFollowForbidden)

	_, err = e.follow.Unfollow(ctx, alice.ID, alice.ID)
	requireKind(t, err, apperr.KindSelfUnfollowForbidden)

	_, err = e.follow.Follow(ctx, alice.ID, "missing")
	requireKind(t, err, apperr.KindNotFound)

	_, err = e.follow.Unfollow(ctx, alice.ID, "missing")
	requireKind(t, err, apperr.KindNotFound)
}

func TestUnfollowWithoutEdge(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.newProfile(t, "alice"), e.newProfile(t, "bob")

	_, err := e.follow.Unfollow(context.Background(), alice.ID, bob.ID)
	requireKind(t, err, apperr.KindNotFollowing)
	assertCountersMatchEdges(t, e, alice, bob)
}

func TestCountersMatchEdgesAfterRandomSequence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	profiles := []*model.Profile{e.newProfile(t, "p0"), e.newProfile(t, "p1"), e.newProfile(t, "p2"), e.newProfile(t, "p3")}
	rng := rand.New(rand.NewPCG(1, 2))

	for range 200 {
		a, b := profiles[rng.IntN(len(profiles))], profiles[rng.IntN(len(profiles))]
		var err error
		if rng.IntN(2) == 0 {
			_, err = e.follow.Follow(ctx, a.ID, b.ID)
		} else {
			_, err = e.follow.Unfollow(ctx, a.ID, b.ID)
		}
		if err != nil {
			_, ok := apperr.As(err)
			require.True(t, ok, "unexpected error: %v", err)
		}
	}

	assertCountersMatchEdges(t, e, profiles...)
}

func TestConcurrentFollowsCountOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.newProfile(t, "alice"), e.newProfile(t, "bob")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.follow.Follow(ctx, alice.ID, bob.ID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperr.KindAlreadyFollowing, apperr.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)
	assertCountersMatchEdges(t, e, alice, bob)
}

func TestConcurrentFollowUnfollowKeepsCounters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, carol := e.newProfile(t, "alice"), e.newProfile(t, "bob"), e.newProfile(t, "carol")

	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			follower := alice
			if i%3 == 0 {
				follower = carol
			}
			if i%2 == 0 {
				_, _ = e.follow.Follow(ctx, follower.ID, bob.ID)
			} else {
				_, _ = e.follow.Unfollow(ctx, follower.ID, bob.ID)
			}
		}()
	}
	wg.Wait()

	assertCountersMatchEdges(t, e, alice, bob, carol)
}

func TestFollowersAndFollowing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, carol := e.newProfile(t, "alice"), e.newProfile(t, "bob"), e.newProfile(t, "carol")

	_, err := e.follow.Follow(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	_, err = e.follow.Follow(ctx, carol.ID, alice.ID)
	require.NoError(t, err)
	_, err = e.follow.Unfollow(ctx, carol.ID, alice.ID)
	require.NoError(t, err)

	followers, err := e.follow.Followers(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, bob.ID, followers[0].ID)

	following, err := e.follow.Following(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, alice.ID, following[0].ID)

	following, err = e.follow.Following(ctx, carol.ID)
	require.NoError(t, err)
	assert.Empty(t, following)

	_, err = e.follow.Followers(ctx, "missing")
	requireKind(t, err, apperr.KindNotFound)
}
