package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/model"
)

func imageUpload() *StoryUpload {
	return &StoryUpload{Filename: "beach.jpg", ContentType: "image/jpeg", Size: 5, Body: strings.NewReader("bytes")}
}

func TestCreateStory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newProfile(t, "alice")

	story, err := e.story.Create(ctx, alice.ID, imageUpload())
	require.NoError(t, err)
	assert.Equal(t, model.StoryContentImage, story.ContentType)
	assert.Equal(t, DefaultStoryTTL, story.ExpiresAt.Sub(story.CreatedAt))
	assert.False(t, story.Expired)
	assert.True(t, e.media.Has(story.Content))
	assert.Equal(t, "memory://"+story.Content, story.ContentURL)
	assert.True(t, strings.HasPrefix(story.Content, "stories/"+alice.ID+"/"))
	assert.True(t, strings.HasSuffix(story.Content, ".jpg"))
}

func TestCreateStoryContentType(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newProfile(t, "alice")

	video, err := e.story.Create(ctx, alice.ID, &StoryUpload{Filename: "clip.MOV", ContentType: "application/octet-stream", Size: -1, Body: strings.NewReader("v")})
	require.NoError(t, err)
	assert.Equal(t, model.StoryContentVideo, video.ContentType)

	_, err = e.story.Create(ctx, alice.ID, &StoryUpload{Filename: "notes.pdf", ContentType: "application/pdf", Size: 3, Body: strings.NewReader("pdf")})
	requireKind(t, err, apperr.KindUnsupportedContent)

	_, err = e.story.Create(ctx, alice.ID, nil)
	requireKind(t, err, apperr.KindMissingContent)

	_, err = e.story.Create(ctx, alice.ID, &StoryUpload{Filename: "empty.jpg", ContentType: "image/jpeg", Size: 0, Body: strings.NewReader("")})
	requireKind(t, err, apperr.KindMissingContent)

	_, err = e.story.Create(ctx, "missing", imageUpload())
	requireKind(t, err, apperr.KindNotFound)

	assert.Equal(t, 1, e.media.Len())
}

func TestCreateStorySweepsExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.newProfile(t, "alice"), e.newProfile(t, "bob")

	old, err := e.story.Create(ctx, alice.ID, imageUpload())
	require.NoError(t, err)

	e.clock.Advance(DefaultStoryTTL + time.Minute)

	// Reading does not sweep; the overdue story is just filtered out.
	active, err := e.story.ListActive(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
	stored, err := e.stories.ByID(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, stored.Expired)

	fresh, err := e.story.Create(ctx, bob.ID, imageUpload())
	require.NoError(t, err)

	stored, err = e.stories.ByID(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, stored.Expired)

	active, err = e.story.ListActive(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, fresh.ID, active[0].ID)
	assert.NotEmpty(t, active[0].ContentURL)
}

func TestListActiveNewestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := e.newProfile(t, "alice")

	first, err := e.story.Create(ctx, alice.ID, imageUpload())
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	second, err := e.story.Create(ctx, alice.ID, imageUpload())
	require.NoError(t, err)

	active, err := e.story.ListActive(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, first.ID, active[1].ID)
}

func TestCreateStoryRemovesUploadWhenInsertFails(t *testing.T) {
	e := newEnv(t)
	alice := e.newProfile(t, "alice")
	e.story.store = failingTx{err: errTxFailed}

	_, err := e.story.Create(context.Background(), alice.ID, imageUpload())
	assert.ErrorIs(t, err, errTxFailed)
	assert.Equal(t, 0, e.media.Len())
}

func TestMarkViewedCountsDistinctViewers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob, carol := e.newProfile(t, "alice"), e.newProfile(t, "bob"), e.newProfile(t, "carol")

	story, err := e.story.Create(ctx, alice.ID, imageUpload())
	require.NoError(t, err)

	for range 3 {
		viewed, err := e.story.MarkViewed(ctx, story.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, viewed.ViewCount)
	}

	viewed, err := e.story.MarkViewed(ctx, story.ID, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, viewed.ViewCount)

	rows, err := e.stories.CountViews(ctx, story.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
}

func TestMarkViewedConcurrently(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.newProfile(t, "alice"), e.newProfile(t, "bob")

	story, err := e.story.Create(ctx, alice.ID, imageUpload())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.story.MarkViewed(ctx, story.ID, bob.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := e.stories.ByID(ctx, story.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ViewCount)
}

func TestMarkViewedGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice, bob := e.newProfile(t, "alice"), e.newProfile(t, "bob")

	story, err := e.story.Create(ctx, alice.ID, imageUpload())
	require.NoError(t, err)

	_, err = e.story.MarkViewed(ctx, story.ID, alice.ID)
	requireKind(t, err, apperr.KindSelfViewForbidden)

	_, err = e.story.MarkViewed(ctx, "missing", bob.ID)
	requireKind(t, err, apperr.KindNotFound)

	_, err = e.story.MarkViewed(ctx, story.ID, "missing")
	requireKind(t, err, apperr.KindNotFound)

	e.clock.Advance(DefaultStoryTTL + time.Second)
	_, err = e.story.MarkViewed(ctx, story.ID, bob.ID)
	requireKind(t, err, apperr.KindExpired)
}
