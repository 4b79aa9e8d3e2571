package validation

import (
	"errors"
	"strings"
)

// ValidatePassword validates a new password
func ValidatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return errors.New("password is required")
	}

	// Maximum length: 72 bytes (bcrypt limitation)
	// bcrypt rejects anything longer, so catch it before hashing
	if len(password) > 72 {
		return errors.New("password must not exceed 72 characters")
	}

	return nil
}
