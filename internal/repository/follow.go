package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/templui/storyline/internal/model"
)

var ErrFollowNotFound = errors.New("follow not found")

type FollowRepository interface {
	WithTx(tx DBTX) FollowRepository
	Insert(ctx context.Context, follow *model.Follow) (bool, error)
	Transition(ctx context.Context, followerID, followeeID string, from, to model.FollowStatus, now time.Time) (bool, error)
	ByPair(ctx context.Context, followerID, followeeID string) (*model.Follow, error)
	Followers(ctx context.Context, profileID string) ([]model.Profile, error)
	Following(ctx context.Context, profileID string) ([]model.Profile, error)
	LiveCounts(ctx context.Context, profileID string) (followers int, following int, err error)
}

type followRepository struct {
	db DBTX
}

func NewFollowRepository(db DBTX) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) WithTx(tx DBTX) FollowRepository {
	return &followRepository{db: tx}
}

// Insert creates the edge unless the pair already has one. It reports
// whether a row was written; the unique pair constraint decides races.
func (r *followRepository) Insert(ctx context.Context, follow *model.Follow) (bool, error) {
	if follow.ID == "" {
		follow.ID = uuid.New().String()
	}
	if follow.CreatedAt.IsZero() {
		follow.CreatedAt = time.Now().UTC()
	}
	follow.UpdatedAt = follow.CreatedAt

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO follows (id, follower_profile_id, followee_profile_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (follower_profile_id, followee_profile_id) DO NOTHING
	`, follow.ID, follow.FollowerID, follow.FolloweeID, follow.Status, follow.CreatedAt, follow.UpdatedAt)
	if err != nil {
		return false, err
	}

	rows, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// Transition flips the edge status only if it currently equals from.
// It reports whether this call performed the flip.
func (r *followRepository) Transition(ctx context.Context, followerID, followeeID string, from, to model.FollowStatus, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE follows SET status = $1, updated_at = $2
		WHERE follower_profile_id = $3 AND followee_profile_id = $4 AND status = $5
	`, to, now, followerID, followeeID, from)
	if err != nil {
		return false, err
	}

	rows, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *followRepository) ByPair(ctx context.Context, followerID, followeeID string) (*model.Follow, error) {
	var follow model.Follow
	err := r.db.GetContext(ctx, &follow, `
		SELECT * FROM follows WHERE follower_profile_id = $1 AND followee_profile_id = $2
	`, followerID, followeeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFollowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &follow, nil
}

func (r *followRepository) Followers(ctx context.Context, profileID string) ([]model.Profile, error) {
	profiles := []model.Profile{}
	err := r.db.SelectContext(ctx, &profiles, `
		SELECT p.* FROM profiles p
		JOIN follows f ON f.follower_profile_id = p.id
		WHERE f.followee_profile_id = $1 AND f.status = $2
		ORDER BY f.updated_at DESC
	`, profileID, model.FollowStatusFollow)
	return profiles, err
}

func (r *followRepository) Following(ctx context.Context, profileID string) ([]model.Profile, error) {
	profiles := []model.Profile{}
	err := r.db.SelectContext(ctx, &profiles, `
		SELECT p.* FROM profiles p
		JOIN follows f ON f.followee_profile_id = p.id
		WHERE f.follower_profile_id = $1 AND f.status = $2
		ORDER BY f.updated_at DESC
	`, profileID, model.FollowStatusFollow)
	return profiles, err
}

// LiveCounts counts live edges from the follows table itself, independent
// of the denormalized counters on profiles.
func (r *followRepository) LiveCounts(ctx context.Context, profileID string) (int, int, error) {
	var counts struct {
		Followers int `db:"followers"`
		Following int `db:"following"`
	}
	err := r.db.GetContext(ctx, &counts, `
		SELECT
			(SELECT COUNT(*) FROM follows WHERE followee_profile_id = $1 AND status = $2) AS followers,
			(SELECT COUNT(*) FROM follows WHERE follower_profile_id = $1 AND status = $2) AS following
	`, profileID, model.FollowStatusFollow)
	if err != nil {
		return 0, 0, err
	}
	return counts.Followers, counts.Following, nil
}
