package codegen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// CodeLength is the number of digits in a verification code.
	CodeLength = 6

	publicIDLength = 12
)

// Numeric returns a string of n uniformly random decimal digits.
func Numeric(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid code length: %d", n)
	}

	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to read random digit: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}

	return b.String(), nil
}

// Code returns a fresh verification code.
func Code() (string, error) {
	return Numeric(CodeLength)
}

// PublicID returns an opaque numeric identifier without a leading zero,
// safe to expose in URLs instead of internal ids.
func PublicID() (string, error) {
	first, err := rand.Int(rand.Reader, big.NewInt(9))
	if err != nil {
		return "", fmt.Errorf("failed to read random digit: %w", err)
	}

	rest, err := Numeric(publicIDLength - 1)
	if err != nil {
		return "", err
	}

	return string(byte('1'+first.Int64())) + rest, nil
}
