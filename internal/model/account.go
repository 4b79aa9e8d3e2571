package model

import (
	"time"
)

type Account struct {
	ID            string     `db:"id" json:"id"`
	Contact       string     `db:"contact" json:"contact"`
	ContactType   string     `db:"contact_type" json:"contact_type"` // "email" or "phone"
	PasswordHash  string     `db:"password_hash" json:"-"`
	Active        bool       `db:"active" json:"status"` // true only after the register code is verified
	Role          string     `db:"role" json:"active_role"`
	FullName      string     `db:"full_name" json:"full_name"`
	Gender        string     `db:"gender" json:"gender"`
	BirthDate     *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	GenderMale   = "ERKAK"
	GenderFemale = "AYOL"
)

// CanSignIn reports whether the account finished registration and was not
// deactivated afterwards.
func (a *Account) CanSignIn() bool {
	return a.Active && a.DeactivatedAt == nil
}
