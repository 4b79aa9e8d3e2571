package model

import "time"

type FollowStatus string

const (
	FollowStatusFollow   FollowStatus = "follow"
	FollowStatusUnfollow FollowStatus = "unfollow"
)

// Follow is a directed edge between two profiles. Unfollowing flips the
// status instead of deleting the row, so each ordered pair has one row.
type Follow struct {
	ID         string       `db:"id" json:"id"`
	FollowerID string       `db:"follower_profile_id" json:"follower_profile_id"`
	FolloweeID string       `db:"followee_profile_id" json:"followee_profile_id"`
	Status     FollowStatus `db:"status" json:"status"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

func (f *Follow) IsActive() bool {
	return f.Status == FollowStatusFollow
}
