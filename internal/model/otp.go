package model

import (
	"time"
)

type OTPPurpose string

const (
	OTPPurposeRegister       OTPPurpose = "register"
	OTPPurposeLogin          OTPPurpose = "login"
	OTPPurposeChangePassword OTPPurpose = "change-password"
)

func (p OTPPurpose) IsValid() bool {
	switch p {
	case OTPPurposeRegister, OTPPurposeLogin, OTPPurposeChangePassword:
		return true
	}
	return false
}

// OTPCode is a one-time verification code scoped to a contact. Only the
// hash of the code is stored.
type OTPCode struct {
	ID          string     `db:"id" json:"id"`
	Contact     string     `db:"contact" json:"contact"`
	CodeHash    string     `db:"code_hash" json:"-"`
	Purpose     OTPPurpose `db:"purpose" json:"_type"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	Verified    bool       `db:"verified" json:"verified"`
	Attempts    int        `db:"attempts" json:"attempts"`
	ResendCount int        `db:"resend_count" json:"resend_code"`
	DeleteAfter time.Time  `db:"delete_after" json:"delete_obj"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// IsExpired treats the expiry instant itself as expired, so setting
// expires_at to now revokes the code immediately.
func (c *OTPCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *OTPCode) IsStale(now time.Time) bool {
	return now.After(c.DeleteAfter)
}
