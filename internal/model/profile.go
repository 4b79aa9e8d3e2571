package model

import "time"

type Profile struct {
	ID             string    `db:"id" json:"id"`
	PublicID       string    `db:"public_id" json:"public_id"`
	AccountID      string    `db:"account_id" json:"-"`
	Username       string    `db:"username" json:"username"`
	FullName       string    `db:"full_name" json:"full_name"`
	Bio            string    `db:"bio" json:"bio"`
	Image          string    `db:"image" json:"image"`
	Website        string    `db:"website" json:"website"`
	FollowersCount int       `db:"followers_count" json:"followers_count"`
	FollowingCount int       `db:"following_count" json:"following_count"`
	PostsCount     int       `db:"posts_count" json:"posts_count"`
	IsPrivate      bool      `db:"is_private" json:"is_private"`
	Slug           string    `db:"slug" json:"slug"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
