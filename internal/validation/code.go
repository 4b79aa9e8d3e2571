package validation

import (
	"errors"
	"strings"

	"github.com/templui/storyline/internal/codegen"
)

// ValidateCode checks the shape of a submitted verification code
func ValidateCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("code is required")
	}
	if len(code) != codegen.CodeLength {
		return errors.New("code must be 6 digits long")
	}
	return nil
}
