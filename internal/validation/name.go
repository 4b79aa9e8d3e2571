package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ValidateName validates a profile's full name
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)

	if len(trimmed) > 250 {
		return errors.New("name is too long (max 250 characters)")
	}

	return nil
}

// ValidateUsername validates a display username. Usernames are unique
// handles and may not contain whitespace anywhere.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return errors.New("username is required")
	}

	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return errors.New("username must not contain whitespace")
	}

	if len(username) > 250 {
		return errors.New("username is too long (max 250 characters)")
	}

	return nil
}
