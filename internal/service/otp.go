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
	"github.com/templui/storyline/internal/notify"
	"github.com/templui/storyline/internal/repository"
	"github.com/templui/storyline/internal/validation"
)

const (
	MaxAttempts = 3
	MaxResend   = 3

	DefaultCodeTTL   = 180 * time.Second
	DefaultRetention = time.Hour
)

const legacyRemainingAttemptsKey = "qolgan_urinishlar_soni"

// Challenge describes an issued code without revealing it.
type Challenge struct {
	Contact     string           `json:"contact"`
	Purpose     model.OTPPurpose `json:"_type"`
	ExpiresAt   time.Time        `json:"expires_at"`
	ResendsLeft int              `json:"resends_left"`
	// Warning is set when the record was stored but delivery failed.
	Warning string `json:"warning,omitempty"`
}

type OTPService struct {
	otps      repository.OTPRepository
	hasher    Hasher
	notifier  notify.Notifier
	codeTTL   time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewOTPService(otps repository.OTPRepository, hasher Hasher, notifier notify.Notifier, codeTTL, retention time.Duration) *OTPService {
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}
	if retention < codeTTL {
		retention = DefaultRetention
	}

	return &OTPService{
		otps:      otps,
		hasher:    hasher,
		notifier:  notifier,
		codeTTL:   codeTTL,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *OTPService) SetClock(now func() time.Time) {
	s.now = now
}

// Issue creates a fresh code for contact and delivers it.
func (s *OTPService) Issue(ctx context.Context, contact string, purpose model.OTPPurpose) (*Challenge, error) {
	contact = validation.NormalizeContact(contact)
	if contact == "" {
		return nil, apperr.New(apperr.KindMissingField, "contact is required")
	}

	record, code, err := s.prepare(contact, purpose)
	if err != nil {
		return nil, err
	}

	err = s.store(ctx, s.otps, record)
	if err != nil {
		return nil, err
	}

	return s.deliver(ctx, record, code), nil
}

// prepare generates a code and builds its record. Hashing happens here so
// callers can keep it out of their transactions.
func (s *OTPService) prepare(contact string, purpose model.OTPPurpose) (*model.OTPCode, string, error) {
	if !purpose.IsValid() {
		return nil, "", apperr.New(apperr.KindInvalidField, fmt.Sprintf("unknown code purpose %q", purpose))
	}

	code, err := codegen.Code()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate code: %w", err)
	}

	hash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash code: %w", err)
	}

	now := s.now()
	return &model.OTPCode{
		Contact:     contact,
		CodeHash:    hash,
		Purpose:     purpose,
		ExpiresAt:   now.Add(s.codeTTL),
		DeleteAfter: now.Add(s.retention),
		CreatedAt:   now,
	}, code, nil
}

// store purges the contact's records past retention and inserts record.
func (s *OTPService) store(ctx context.Context, otps repository.OTPRepository, record *model.OTPCode) error {
	purged, err := otps.PurgeStale(ctx, record.Contact, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to purge stale codes: %w", err)
	}
	if purged > 0 {
		slog.DebugContext(ctx, "purged stale codes", "contact", record.Contact, "count", purged)
	}

	err = otps.Create(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}
	return nil
}

// deliver never fails: the record is already persisted, so a delivery
// problem is reported on the challenge and the user can ask for a resend.
func (s *OTPService) deliver(ctx context.Context, record *model.OTPCode, code string) *Challenge {
	challenge := &Challenge{
		Contact:     record.Contact,
		Purpose:     record.Purpose,
		ExpiresAt:   record.ExpiresAt,
		ResendsLeft: max(0, MaxResend-record.ResendCount),
	}

	err := s.notifier.Send(ctx, record.Contact, code)
	if err != nil {
		slog.WarnContext(ctx, "failed to deliver code", "error", err, "contact", record.Contact, "purpose", record.Purpose)
		challenge.Warning = "verification code could not be delivered, request a new one"
		if errors.Is(err, notify.ErrChannelUnavailable) {
			challenge.Warning = "verification codes cannot be delivered to this contact yet"
		}
	}
	return challenge
}

// Verify checks code against the latest pending record for contact. A
// successful match can happen only once per record.
func (s *OTPService) Verify(ctx context.Context, contact, code string) (*model.OTPCode, error) {
	record, err := s.check(ctx, contact, code)
	if err != nil {
		return nil, err
	}

	err = s.markVerified(ctx, s.otps, record)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// check finds the pending record for contact and compares code with it. A
// wrong code is counted right away, even when the caller later rolls back
// its own transaction.
func (s *OTPService) check(ctx context.Context, contact, code string) (*model.OTPCode, error) {
	contact = validation.NormalizeContact(contact)
	code = strings.TrimSpace(code)
	if contact == "" || code == "" {
		return nil, apperr.New(apperr.KindMissingField, "contact and code are required")
	}

	err := validation.ValidateCode(code)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidField, err.Error())
	}

	record, err := s.otps.LatestPending(ctx, contact, s.now())
	if errors.Is(err, repository.ErrOTPNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "no active code for this contact")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load code: %w", err)
	}

	if record.Attempts >= MaxAttempts {
		return nil, withRemainingAttempts(
			apperr.New(apperr.KindAttemptsExhausted, "too many wrong attempts, request a new code"), 0)
	}

	err = s.hasher.Compare(record.CodeHash, code)
	if errors.Is(err, ErrHashMismatch) {
		attempts, err := s.otps.IncrementAttempts(ctx, record.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to record attempt: %w", err)
		}
		return nil, withRemainingAttempts(
			apperr.New(apperr.KindInvalidCode, "invalid code"), max(0, MaxAttempts-attempts))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compare code: %w", err)
	}

	return record, nil
}

// markVerified uses up a checked record through otps, which may be bound to
// the caller's transaction.
func (s *OTPService) markVerified(ctx context.Context, otps repository.OTPRepository, record *model.OTPCode) error {
	err := otps.MarkVerified(ctx, record.ID, MaxAttempts)
	if errors.Is(err, repository.ErrOTPConflict) {
		return apperr.New(apperr.KindNotFound, "no active code for this contact")
	}
	if err != nil {
		return fmt.Errorf("failed to mark code verified: %w", err)
	}

	record.Verified = true
	slog.InfoContext(ctx, "code verified", "contact", record.Contact, "purpose", record.Purpose)
	return nil
}

// withRemainingAttempts sets the attempts left under both the English key
// and the key older clients read.
func withRemainingAttempts(err *apperr.Error, remaining int) *apperr.Error {
	return err.With("remaining_attempts", remaining).With(legacyRemainingAttemptsKey, remaining)
}

// Resend replaces the code of the latest unverified record and delivers the
// new one. The record keeps its purpose and hard-delete time.
func (s *OTPService) Resend(ctx context.Context, contact string) (*Challenge, error) {
	contact = validation.NormalizeContact(contact)
	if contact == "" {
		return nil, apperr.New(apperr.KindMissingField, "contact is required")
	}

	now := s.now()
	record, err := s.otps.LatestResendable(ctx, contact, now)
	if errors.Is(err, repository.ErrOTPNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "no code to resend for this contact")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load code: %w", err)
	}

	if record.ResendCount >= MaxResend {
		return nil, resendExhausted(record)
	}

	code, err := codegen.Code()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash code: %w", err)
	}

	updated, err := s.otps.Reissue(ctx, record.ID, hash, now.Add(s.codeTTL), MaxResend)
	if errors.Is(err, repository.ErrOTPConflict) {
		// A concurrent resend used the last slot or the code got verified.
		return nil, resendExhausted(record)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reissue code: %w", err)
	}

	slog.InfoContext(ctx, "code resent", "contact", contact, "purpose", updated.Purpose, "resend_count", updated.ResendCount)
	return s.deliver(ctx, updated, code), nil
}

func resendExhausted(record *model.OTPCode) *apperr.Error {
	return apperr.New(apperr.KindResendExhausted, "resend limit reached").
		With("resend_count", record.ResendCount).
		With("_type", record.Purpose)
}
