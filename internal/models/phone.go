package models

import (
	"strings"

	apperrors "busticket/internal/errors"
)

// PhoneNumber is a normalized, digits-only phone number.
type PhoneNumber string

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// NewPhoneNumber strips formatting characters and validates the digit count.
func NewPhoneNumber(raw string) (PhoneNumber, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", apperrors.Validation(apperrors.CodeInvalidPhone, "phone number contains invalid character %q", r)
		}
	}

	digits := b.String()
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", apperrors.Validation(apperrors.CodeInvalidPhone,
			"phone number must have %d-%d digits", minPhoneDigits, maxPhoneDigits)
	}
	return PhoneNumber(digits), nil
}

func (p PhoneNumber) String() string {
	return string(p)
}

// Matches compares a raw, user supplied number against p after normalization.
func (p PhoneNumber) Matches(raw string) bool {
	other, err := NewPhoneNumber(raw)
	if err != nil {
		return false
	}
	return other == p
}
