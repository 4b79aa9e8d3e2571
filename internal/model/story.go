package model

import "time"

type StoryContentType string

const (
	StoryContentImage StoryContentType = "IMAGE"
	StoryContentVideo StoryContentType = "VIDEO"
)

type Story struct {
	ID          string           `db:"id" json:"id"`
	ProfileID   string           `db:"profile_id" json:"profile_id"`
	Content     string           `db:"content" json:"-"` // storage key
	ContentType StoryContentType `db:"content_type" json:"content_type"`
	ViewCount   int              `db:"view_count" json:"view_count"`
	ExpiresAt   time.Time        `db:"expires_at" json:"expires_at"`
	Expired     bool             `db:"expired" json:"expired"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`

	// Computed fields (not in database)
	ContentURL string `db:"-" json:"content_url,omitempty"`
}

// IsExpired is the lazy expiry check; the expired flag may lag behind it
// until the next story write sweeps overdue rows.
func (s *Story) IsExpired(now time.Time) bool {
	return s.Expired || now.After(s.ExpiresAt)
}

type StoryView struct {
	ID              string    `db:"id" json:"id"`
	StoryID         string    `db:"story_id" json:"story_id"`
	ViewerProfileID string    `db:"viewer_profile_id" json:"viewer_profile_id"`
	ViewedAt        time.Time `db:"viewed_at" json:"viewed_at"`
}
