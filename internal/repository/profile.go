package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/templui/storyline/internal/model"
)

var (
	ErrProfileNotFound   = errors.New("profile not found")
	ErrProfileExists     = errors.New("account already has a profile")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateSlug     = errors.New("slug already taken")
	ErrDuplicatePublicID = errors.New("public id already taken")
)

type ProfileRepository interface {
	WithTx(tx DBTX) ProfileRepository
	Create(ctx context.Context, profile *model.Profile) error
	Update(ctx context.Context, profile *model.Profile) error
	ByID(ctx context.Context, id string) (*model.Profile, error)
	ByAccountID(ctx context.Context, accountID string) (*model.Profile, error)
	ByPublicID(ctx context.Context, publicID string) (*model.Profile, error)
	Delete(ctx context.Context, id string) error

	IncrementFollowCounters(ctx context.Context, followerID, followeeID string, now time.Time) error
	DecrementFollowCounters(ctx context.Context, followerID, followeeID string, now time.Time) error
	DetachFromGraph(ctx context.Context, id string, now time.Time) error
}

type profileRepository struct {
	db DBTX
}

func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) WithTx(tx DBTX) ProfileRepository {
	return &profileRepository{db: tx}
}

func (r *profileRepository) Create(ctx context.Context, profile *model.Profile) error {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	profile.UpdatedAt = profile.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, public_id, account_id, username, full_name, bio, image, website, is_private, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		profile.ID,
		profile.PublicID,
		profile.AccountID,
		profile.Username,
		profile.FullName,
		profile.Bio,
		profile.Image,
		profile.Website,
		profile.IsPrivate,
		profile.Slug,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	return mapProfileError(err)
}

// Update writes the editable fields. Counters are owned by the follow and
// story engines and are never written here.
func (r *profileRepository) Update(ctx context.Context, profile *model.Profile) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET username = $1, full_name = $2, bio = $3, image = $4, website = $5, is_private = $6, slug = $7, updated_at = $8
		WHERE id = $9
	`,
		profile.Username,
		profile.FullName,
		profile.Bio,
		profile.Image,
		profile.Website,
		profile.IsPrivate,
		profile.Slug,
		profile.UpdatedAt,
		profile.ID,
	)
	if err != nil {
		return mapProfileError(err)
	}

	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *profileRepository) ByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.get(ctx, `SELECT * FROM profiles WHERE id = $1`, id)
}

func (r *profileRepository) ByAccountID(ctx context.Context, accountID string) (*model.Profile, error) {
	return r.get(ctx, `SELECT * FROM profiles WHERE account_id = $1`, accountID)
}

func (r *profileRepository) ByPublicID(ctx context.Context, publicID string) (*model.Profile, error) {
	return r.get(ctx, `SELECT * FROM profiles WHERE public_id = $1`, publicID)
}

func (r *profileRepository) get(ctx context.Context, query string, arg string) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.GetContext(ctx, &profile, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Delete removes the profile. Follow edges, stories and views go with it
// through ON DELETE CASCADE.
func (r *profileRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *profileRepository) IncrementFollowCounters(ctx context.Context, followerID, followeeID string, now time.Time) error {
	return r.adjustFollowCounters(ctx,
		`UPDATE profiles SET following_count = following_count + 1, updated_at = $1 WHERE id = $2`,
		`UPDATE profiles SET followers_count = followers_count + 1, updated_at = $1 WHERE id = $2`,
		followerID, followeeID, now,
	)
}

func (r *profileRepository) DecrementFollowCounters(ctx context.Context, followerID, followeeID string, now time.Time) error {
	return r.adjustFollowCounters(ctx,
		`UPDATE profiles SET following_count = CASE WHEN following_count > 0 THEN following_count - 1 ELSE 0 END, updated_at = $1 WHERE id = $2`,
		`UPDATE profiles SET followers_count = CASE WHEN followers_count > 0 THEN followers_count - 1 ELSE 0 END, updated_at = $1 WHERE id = $2`,
		followerID, followeeID, now,
	)
}

func (r *profileRepository) adjustFollowCounters(ctx context.Context, followerQuery, followeeQuery, followerID, followeeID string, now time.Time) error {
	for _, step := range []struct{ query, id string }{
		{followerQuery, followerID},
		{followeeQuery, followeeID},
	} {
		result, err := r.db.ExecContext(ctx, step.query, now, step.id)
		if err != nil {
			return err
		}
		rows, err := rowsAffected(result)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrProfileNotFound
		}
	}
	return nil
}

// DetachFromGraph decrements the counters of every profile on the other end
// of a live edge touching id. Run it before deleting the profile.
func (r *profileRepository) DetachFromGraph(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles
		SET followers_count = CASE WHEN followers_count > 0 THEN followers_count - 1 ELSE 0 END, updated_at = $1
		WHERE id IN (SELECT followee_profile_id FROM follows WHERE follower_profile_id = $2 AND status = $3)
	`, now, id, model.FollowStatusFollow)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE profiles
		SET following_count = CASE WHEN following_count > 0 THEN following_count - 1 ELSE 0 END, updated_at = $1
		WHERE id IN (SELECT follower_profile_id FROM follows WHERE followee_profile_id = $2 AND status = $3)
	`, now, id, model.FollowStatusFollow)
	return err
}

func mapProfileError(err error) error {
	if !isUniqueViolation(err) {
		return err
	}

	// SQLite reports "profiles.<column>", PostgreSQL "profiles_<column>_key".
	msg := err.Error()
	switch {
	case strings.Contains(msg, "account_id"):
		return ErrProfileExists
	case strings.Contains(msg, "username"):
		return ErrDuplicateUsername
	case strings.Contains(msg, "slug"):
		return ErrDuplicateSlug
	case strings.Contains(msg, "public_id"):
		return ErrDuplicatePublicID
	}
	return err
}
