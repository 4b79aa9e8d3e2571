package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/templui/storyline/internal/model"
)

var ErrStoryNotFound = errors.New("story not found")

type StoryRepository interface {
	WithTx(tx DBTX) StoryRepository
	Create(ctx context.Context, story *model.Story) error
	ByID(ctx context.Context, id string) (*model.Story, error)
	ActiveByProfile(ctx context.Context, profileID string, now time.Time) ([]model.Story, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	AddView(ctx context.Context, view *model.StoryView) (bool, error)
	RecountViews(ctx context.Context, storyID string) (int, error)
	CountViews(ctx context.Context, storyID string) (int, error)
}

type storyRepository struct {
	db DBTX
}

func NewStoryRepository(db DBTX) StoryRepository {
	return &storyRepository{db: db}
}

func (r *storyRepository) WithTx(tx DBTX) StoryRepository {
	return &storyRepository{db: tx}
}

func (r *storyRepository) Create(ctx context.Context, story *model.Story) error {
	if story.ID == "" {
		story.ID = uuid.New().String()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now().UTC()
	}
	story.UpdatedAt = story.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stories (id, profile_id, content, content_type, view_count, expires_at, expired, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		story.ID,
		story.ProfileID,
		story.Content,
		story.ContentType,
		story.ViewCount,
		story.ExpiresAt,
		story.Expired,
		story.CreatedAt,
		story.UpdatedAt,
	)
	return err
}

func (r *storyRepository) ByID(ctx context.Context, id string) (*model.Story, error) {
	var story model.Story
	err := r.db.GetContext(ctx, &story, `SELECT * FROM stories WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &story, nil
}

func (r *storyRepository) ActiveByProfile(ctx context.Context, profileID string, now time.Time) ([]model.Story, error) {
	stories := []model.Story{}
	err := r.db.SelectContext(ctx, &stories, `
		SELECT * FROM stories
		WHERE profile_id = $1 AND expired = $2 AND expires_at >= $3
		ORDER BY created_at DESC
	`, profileID, false, now)
	return stories, err
}

// SweepExpired flags every overdue story in one statement.
func (r *storyRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE stories SET expired = $1, updated_at = $2
		WHERE expired = $3 AND expires_at < $2
	`, true, now, false)
	if err != nil {
		return 0, err
	}
	return rowsAffected(result)
}

// AddView records a view once per (story, viewer) and reports whether this
// call inserted it.
func (r *storyRepository) AddView(ctx context.Context, view *model.StoryView) (bool, error) {
	if view.ID == "" {
		view.ID = uuid.New().String()
	}
	if view.ViewedAt.IsZero() {
		view.ViewedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO story_views (id, story_id, viewer_profile_id, viewed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (story_id, viewer_profile_id) DO NOTHING
	`, view.ID, view.StoryID, view.ViewerProfileID, view.ViewedAt)
	if err != nil {
		return false, err
	}

	rows, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// RecountViews sets view_count to the exact number of view rows. Only that
// column is written.
func (r *storyRepository) RecountViews(ctx context.Context, storyID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		UPDATE stories
		SET view_count = (SELECT COUNT(*) FROM story_views WHERE story_id = $1)
		WHERE id = $1
		RETURNING view_count
	`, storyID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrStoryNotFound
	}
	return count, err
}

func (r *storyRepository) CountViews(ctx context.Context, storyID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM story_views WHERE story_id = $1`, storyID)
	return count, err
}
