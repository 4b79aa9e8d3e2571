package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/model"
	"github.com/templui/storyline/internal/repository"
	"github.com/templui/storyline/internal/storage"
	"github.com/templui/storyline/internal/validation"
)

const DefaultStoryTTL = 24 * time.Hour

// StoryUpload is an uploaded media file. Size may be -1 when unknown.
type StoryUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type StoryService struct {
	store    TxRunner
	profiles repository.ProfileRepository
	stories  repository.StoryRepository
	storage  storage.Storage
	ttl      time.Duration
	now      func() time.Time
}

func NewStoryService(store TxRunner, profiles repository.ProfileRepository, stories repository.StoryRepository, storage storage.Storage, ttl time.Duration) *StoryService {
	if ttl <= 0 {
		ttl = DefaultStoryTTL
	}
	return &StoryService{
		store:    store,
		profiles: profiles,
		stories:  stories,
		storage:  storage,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *StoryService) SetClock(now func() time.Time) {
	s.now = now
}

// Create uploads the media and records the story. Overdue stories of every
// profile are flagged expired in the same transaction.
func (s *StoryService) Create(ctx context.Context, profileID string, upload *StoryUpload) (*model.Story, error) {
	if upload == nil || upload.Body == nil || upload.Size == 0 {
		return nil, apperr.New(apperr.KindMissingContent, "story content is required")
	}

	kind, err := validation.MediaKindOf(upload.Filename, upload.ContentType)
	if err != nil {
		return nil, apperr.New(apperr.KindUnsupportedContent, err.Error())
	}

	if upload.Size > 0 {
		err = validation.ValidateMediaSize(upload.Size)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidField, err.Error())
		}
	}

	_, err = lookupProfile(s.profiles.ByID(ctx, profileID))
	if err != nil {
		return nil, err
	}

	key := storyKey(profileID, upload.Filename)
	err = s.storage.Save(ctx, key, upload.Body, upload.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store story content: %w", err)
	}

	now := s.now()
	story := &model.Story{
		ProfileID:   profileID,
		Content:     key,
		ContentType: model.StoryContentType(kind),
		ExpiresAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}

	err = s.store.InTx(ctx, func(tx repository.DBTX) error {
		stories := s.stories.WithTx(tx)

		swept, err := stories.SweepExpired(ctx, now)
		if err != nil {
			return fmt.Errorf("failed to sweep expired stories: %w", err)
		}
		if swept > 0 {
			slog.DebugContext(ctx, "stories expired", "count", swept)
		}

		err = stories.Create(ctx, story)
		if err != nil {
			return fmt.Errorf("failed to create story: %w", err)
		}
		return nil
	})
	if err != nil {
		deleteErr := s.storage.Delete(ctx, key)
		if deleteErr != nil {
			slog.WarnContext(ctx, "failed to remove orphaned story content", "error", deleteErr, "key", key)
		}
		return nil, err
	}

	s.resolveURL(ctx, story)
	slog.InfoContext(ctx, "story created", "story_id", story.ID, "profile_id", profileID, "content_type", story.ContentType)
	return story, nil
}

// ListActive returns the profile's unexpired stories, newest first.
func (s *StoryService) ListActive(ctx context.Context, profileID string) ([]model.Story, error) {
	_, err := lookupProfile(s.profiles.ByID(ctx, profileID))
	if err != nil {
		return nil, err
	}

	stories, err := s.stories.ActiveByProfile(ctx, profileID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	for i := range stories {
		s.resolveURL(ctx, &stories[i])
	}
	return stories, nil
}

// MarkViewed records that viewerID saw the story. Repeated views by the
// same profile count once.
func (s *StoryService) MarkViewed(ctx context.Context, storyID, viewerID string) (*model.Story, error) {
	now := s.now()
	var story *model.Story

	err := s.store.InTx(ctx, func(tx repository.DBTX) error {
		stories := s.stories.WithTx(tx)

		var err error
		story, err = stories.ByID(ctx, storyID)
		if errors.Is(err, repository.ErrStoryNotFound) {
			return apperr.New(apperr.KindNotFound, "story not found")
		}
		if err != nil {
			return fmt.Errorf("failed to get story: %w", err)
		}

		_, err = lookupProfile(s.profiles.WithTx(tx).ByID(ctx, viewerID))
		if err != nil {
			return err
		}

		if story.ProfileID == viewerID {
			return apperr.New(apperr.KindSelfViewForbidden, "you cannot view your own story")
		}
		if story.IsExpired(now) {
			return apperr.New(apperr.KindExpired, "story has expired")
		}

		inserted, err := stories.AddView(ctx, &model.StoryView{
			StoryID:         storyID,
			ViewerProfileID: viewerID,
			ViewedAt:        now,
		})
		if err != nil {
			return fmt.Errorf("failed to record view: %w", err)
		}
		if !inserted {
			return nil
		}

		story.ViewCount, err = stories.RecountViews(ctx, storyID)
		if err != nil {
			return fmt.Errorf("failed to recount views: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.resolveURL(ctx, story)
	return story, nil
}

// URL resolves the story's media to a fetchable URL.
func (s *StoryService) URL(ctx context.Context, story *model.Story) (string, error) {
	url, err := s.storage.URL(ctx, story.Content)
	if err != nil {
		return "", fmt.Errorf("failed to resolve story url: %w", err)
	}
	return url, nil
}

func (s *StoryService) resolveURL(ctx context.Context, story *model.Story) {
	url, err := s.URL(ctx, story)
	if err != nil {
		slog.WarnContext(ctx, "failed to resolve story url", "error", err, "story_id", story.ID)
		return
	}
	story.ContentURL = url
}

func storyKey(profileID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("stories/%s/%s%s", profileID, uuid.New().String(), ext)
}
