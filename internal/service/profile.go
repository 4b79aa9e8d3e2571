package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/templui/storyline/internal/apperr"
	"github.com/templui/storyline/internal/codegen"
	"github.com/templui/storyline/internal/model"
	"github.com/templui/storyline/internal/repository"
	"github.com/templui/storyline/internal/validation"
)

// ProfileParams carries a partial profile edit. Nil fields are left as is.
type ProfileParams struct {
	Username  *string `json:"username"`
	FullName  *string `json:"full_name"`
	Bio       *string `json:"bio"`
	Image     *string `json:"image"`
	Website   *string `json:"website"`
	IsPrivate *bool   `json:"is_private"`
}

const maxInsertRetries = 3

type ProfileService struct {
	store    TxRunner
	accounts repository.AccountRepository
	profiles repository.ProfileRepository
	now      func() time.Time
}

func NewProfileService(store TxRunner, accounts repository.AccountRepository, profiles repository.ProfileRepository) *ProfileService {
	return &ProfileService{
		store:    store,
		accounts: accounts,
		profiles: profiles,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *ProfileService) SetClock(now func() time.Time) {
	s.now = now
}

// Create sets up the profile of an account. Each account has at most one.
func (s *ProfileService) Create(ctx context.Context, accountID string, params ProfileParams) (*model.Profile, error) {
	account, err := s.accounts.ByID(ctx, accountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	_, err = s.profiles.ByAccountID(ctx, accountID)
	if err == nil {
		return nil, apperr.New(apperr.KindAlreadyExists, "profile already exists")
	}
	if !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile := &model.Profile{
		AccountID: accountID,
		FullName:  account.FullName,
		CreatedAt: s.now(),
	}
	if params.Username == nil {
		return nil, apperr.New(apperr.KindMissingField, "username is required")
	}
	err = applyProfileParams(profile, params)
	if err != nil {
		return nil, err
	}

	for range maxInsertRetries {
		if profile.PublicID == "" {
			profile.PublicID, err = codegen.PublicID()
			if err != nil {
				return nil, fmt.Errorf("failed to generate public id: %w", err)
			}
		}
		if profile.Slug == "" {
			profile.Slug = baseSlug(profile)
		}

		err = s.profiles.Create(ctx, profile)
		switch {
		case err == nil:
			slog.InfoContext(ctx, "profile created", "profile_id", profile.ID, "account_id", accountID)
			return profile, nil
		case errors.Is(err, repository.ErrDuplicatePublicID):
			profile.PublicID = ""
			profile.ID = ""
		case errors.Is(err, repository.ErrDuplicateSlug):
			profile.Slug = baseSlug(profile) + "-" + profile.PublicID
			profile.ID = ""
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, apperr.New(apperr.KindAlreadyExists, "username already taken")
		case errors.Is(err, repository.ErrProfileExists):
			return nil, apperr.New(apperr.KindAlreadyExists, "profile already exists")
		default:
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to create profile: %w", err)
}

// Update applies a partial edit to the account's profile. The slug is
// rebuilt on every save.
func (s *ProfileService) Update(ctx context.Context, accountID string, params ProfileParams) (*model.Profile, error) {
	profile, err := s.ByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	err = applyProfileParams(profile, params)
	if err != nil {
		return nil, err
	}
	profile.Slug = baseSlug(profile)
	profile.UpdatedAt = s.now()

	err = s.profiles.Update(ctx, profile)
	if errors.Is(err, repository.ErrDuplicateSlug) {
		profile.Slug = profile.Slug + "-" + profile.PublicID
		err = s.profiles.Update(ctx, profile)
	}
	if errors.Is(err, repository.ErrDuplicateUsername) {
		return nil, apperr.New(apperr.KindAlreadyExists, "username already taken")
	}
	if errors.Is(err, repository.ErrProfileNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return profile, nil
}

func (s *ProfileService) ByID(ctx context.Context, id string) (*model.Profile, error) {
	return lookupProfile(s.profiles.ByID(ctx, id))
}

func (s *ProfileService) ByAccountID(ctx context.Context, accountID string) (*model.Profile, error) {
	return lookupProfile(s.profiles.ByAccountID(ctx, accountID))
}

func (s *ProfileService) ByPublicID(ctx context.Context, publicID string) (*model.Profile, error) {
	return lookupProfile(s.profiles.ByPublicID(ctx, publicID))
}

// Delete removes the account's profile and deactivates the account. Anyone
// the profile followed or was followed by loses that count.
func (s *ProfileService) Delete(ctx context.Context, accountID string) error {
	now := s.now()

	err := s.store.InTx(ctx, func(tx repository.DBTX) error {
		profiles := s.profiles.WithTx(tx)

		profile, err := lookupProfile(profiles.ByAccountID(ctx, accountID))
		if err != nil {
			return err
		}

		err = profiles.DetachFromGraph(ctx, profile.ID, now)
		if err != nil {
			return fmt.Errorf("failed to detach profile from graph: %w", err)
		}

		err = profiles.Delete(ctx, profile.ID)
		if err != nil {
			return fmt.Errorf("failed to delete profile: %w", err)
		}

		err = s.accounts.WithTx(tx).Deactivate(ctx, accountID, now)
		if err != nil {
			return fmt.Errorf("failed to deactivate account: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "profile deleted", "account_id", accountID)
	return nil
}

func lookupProfile(profile *model.Profile, err error) (*model.Profile, error) {
	if errors.Is(err, repository.ErrProfileNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

func applyProfileParams(profile *model.Profile, params ProfileParams) error {
	if params.Username != nil {
		err := validation.ValidateUsername(*params.Username)
		if err != nil {
			return apperr.New(apperr.KindInvalidField, err.Error())
		}
		profile.Username = *params.Username
	}
	if params.FullName != nil {
		name := strings.TrimSpace(*params.FullName)
		err := validation.ValidateName(name)
		if err != nil {
			return apperr.New(apperr.KindInvalidField, err.Error())
		}
		profile.FullName = name
	}
	if params.Bio != nil {
		profile.Bio = strings.TrimSpace(*params.Bio)
	}
	if params.Image != nil {
		profile.Image = strings.TrimSpace(*params.Image)
	}
	if params.Website != nil {
		profile.Website = strings.TrimSpace(*params.Website)
	}
	if params.IsPrivate != nil {
		profile.IsPrivate = *params.IsPrivate
	}
	return nil
}

// baseSlug derives the slug from the username, or the full name when the
// username yields nothing, or finally the public id.
func baseSlug(profile *model.Profile) string {
	slug := validation.Slugify(profile.Username)
	if slug == "" {
		slug = validation.Slugify(profile.FullName)
	}
	if slug == "" {
		slug = profile.PublicID
	}
	return slug
}
