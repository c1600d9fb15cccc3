// Package contact normalizes the phone numbers stored on profiles and rosters.
package contact

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers written without a country code.
const DefaultRegion = "US"

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone parses raw and returns it in E.164 form. Numbers without a
// leading "+" are read in region.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !IsPhoneNumber(raw) {
		return "", ErrInvalidPhone
	}
	if region == "" {
		region = DefaultRegion
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeOptionalPhone treats nil and blank input as "no phone".
func NormalizeOptionalPhone(raw *string, region string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	normalized, err := NormalizePhone(*raw, region)
	if err != nil {
		return nil, err
	}
	return &normalized, nil
}

// IsPhoneNumber reports whether s looks like a phone number: digits with
// common separators and at least ten digits.
func IsPhoneNumber(s string) bool {
	if s == "" || strings.Contains(s, "@") {
		return false
	}

	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 10
}
