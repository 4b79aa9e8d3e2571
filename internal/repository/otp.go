package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/templui/storyline/internal/model"
)

var (
	ErrOTPNotFound = errors.New("otp code not found")
	// ErrOTPConflict means a conditional update lost against a concurrent one.
	ErrOTPConflict = errors.New("otp code changed concurrently")
)

type OTPRepository interface {
	WithTx(tx DBTX) OTPRepository
	Create(ctx context.Context, code *model.OTPCode) error
	Latest(ctx context.Context, contact string) (*model.OTPCode, error)
	LatestPending(ctx context.Context, contact string, now time.Time) (*model.OTPCode, error)
	LatestResendable(ctx context.Context, contact string, now time.Time) (*model.OTPCode, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	MarkVerified(ctx context.Context, id string, maxAttempts int) error
	Reissue(ctx context.Context, id, codeHash string, expiresAt time.Time, maxResend int) (*model.OTPCode, error)
	Consume(ctx context.Context, id string, purpose model.OTPPurpose, now time.Time) error
	PurgeStale(ctx context.Context, contact string, now time.Time) (int64, error)
}

type otpRepository struct {
	db DBTX
}

func NewOTPRepository(db DBTX) OTPRepository {
	return &otpRepository{db: db}
}

func (r *otpRepository) WithTx(tx DBTX) OTPRepository {
	return &otpRepository{db: tx}
}

func (r *otpRepository) Create(ctx context.Context, code *model.OTPCode) error {
	if code.ID == "" {
		code.ID = uuid.New().String()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO otp_codes (id, contact, code_hash, purpose, expires_at, verified, attempts, resend_count, delete_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		code.ID,
		code.Contact,
		code.CodeHash,
		code.Purpose,
		code.ExpiresAt,
		code.Verified,
		code.Attempts,
		code.ResendCount,
		code.DeleteAfter,
		code.CreatedAt,
	)
	return err
}

// Latest returns the most recent record for contact whatever its state.
func (r *otpRepository) Latest(ctx context.Context, contact string) (*model.OTPCode, error) {
	return r.get(ctx, `
		SELECT * FROM otp_codes WHERE contact = $1
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, contact)
}

// LatestPending returns the most recent unverified code that can still be
// submitted.
func (r *otpRepository) LatestPending(ctx context.Context, contact string, now time.Time) (*model.OTPCode, error) {
	return r.get(ctx, `
		SELECT * FROM otp_codes
		WHERE contact = $1 AND verified = $2 AND expires_at > $3
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, contact, false, now)
}

// LatestResendable returns the most recent unverified code that has not
// reached its hard-delete time. Its submission window may have closed.
func (r *otpRepository) LatestResendable(ctx context.Context, contact string, now time.Time) (*model.OTPCode, error) {
	return r.get(ctx, `
		SELECT * FROM otp_codes
		WHERE contact = $1 AND verified = $2 AND delete_after >= $3
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, contact, false, now)
}

func (r *otpRepository) get(ctx context.Context, query string, args ...any) (*model.OTPCode, error) {
	var code model.OTPCode
	err := r.db.GetContext(ctx, &code, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// IncrementAttempts bumps the failed attempt counter in place and returns
// the new value.
func (r *otpRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.GetContext(ctx, &attempts, `
		UPDATE otp_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrOTPNotFound
	}
	return attempts, err
}

// MarkVerified flips verified only if it is still false and the attempt
// budget was not used up meanwhile. Of two concurrent callers exactly one
// succeeds; the other gets ErrOTPConflict.
func (r *otpRepository) MarkVerified(ctx context.Context, id string, maxAttempts int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otp_codes SET verified = $1 WHERE id = $2 AND verified = $3 AND attempts < $4
	`, true, id, false, maxAttempts)
	if err != nil {
		return err
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOTPConflict
	}
	return nil
}

// Reissue swaps in a new code hash and window while resend_count is below
// maxResend, then returns the updated record.
func (r *otpRepository) Reissue(ctx context.Context, id, codeHash string, expiresAt time.Time, maxResend int) (*model.OTPCode, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otp_codes
		SET code_hash = $1, expires_at = $2, attempts = 0, resend_count = resend_count + 1
		WHERE id = $3 AND verified = $4 AND resend_count < $5
	`, codeHash, expiresAt, id, false, maxResend)
	if err != nil {
		return nil, err
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrOTPConflict
	}

	return r.get(ctx, `SELECT * FROM otp_codes WHERE id = $1`, id)
}

// Consume closes the window of a verified code of the given purpose so it
// authorizes exactly one action.
func (r *otpRepository) Consume(ctx context.Context, id string, purpose model.OTPPurpose, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otp_codes SET expires_at = $1
		WHERE id = $2 AND purpose = $3 AND verified = $4 AND expires_at > $1
	`, now, id, purpose, true)
	if err != nil {
		return err
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOTPConflict
	}
	return nil
}

// PurgeStale hard-deletes the contact's records past their retention.
func (r *otpRepository) PurgeStale(ctx context.Context, contact string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE contact = $1 AND delete_after < $2`, contact, now)
	if err != nil {
		return 0, err
	}
	return rowsAffected(result)
}
