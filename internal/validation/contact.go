package validation

import (
	"errors"
	"regexp"
	"strings"
)

// ContactType is the channel a contact string belongs to.
type ContactType string

const (
	ContactEmail ContactType = "email"
	ContactPhone ContactType = "phone"
)

var (
	ErrContactRequired = errors.New("email or phone number is required")
	ErrInvalidContact  = errors.New("invalid email or phone number format")
)

var (
	emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^\+998\d{9}$`)
)

// ClassifyContact reports whether contact is an email address or a phone
// number. Surrounding whitespace is ignored.
func ClassifyContact(contact string) (ContactType, error) {
	contact = strings.TrimSpace(contact)

	if contact == "" {
		return "", ErrContactRequired
	}

	// RFC 5321 total length limit
	if len(contact) > 254 {
		return "", ErrInvalidContact
	}

	switch {
	case emailRegex.MatchString(contact):
		return ContactEmail, nil
	case phoneRegex.MatchString(contact):
		return ContactPhone, nil
	default:
		return "", ErrInvalidContact
	}
}

// NormalizeContact trims the contact and lowercases email addresses so that
// lookups are case-insensitive for email but exact for phone numbers.
func NormalizeContact(contact string) string {
	contact = strings.TrimSpace(contact)
	if strings.Contains(contact, "@") {
		return strings.ToLower(contact)
	}
	return contact
}
