package service

import (
	"fmt"
	"strings"
	"unicode"
)

// subscriberDigits is the length of the national part of an MSISDN once the
// trunk prefix is removed.
const subscriberDigits = 9

const trunkPrefix = "0"

// PhoneNormalizer rewrites raw phone input into international MSISDN form:
// country-code-prefixed, no trunk zero, fixed length. Normalization is
// idempotent, so an already-normalized number passes through unchanged.
type PhoneNormalizer struct {
	CountryCode string
}

func NewPhoneNormalizer(countryCode string) *PhoneNormalizer {
	return &PhoneNormalizer{CountryCode: countryCode}
}

func (n *PhoneNormalizer) Normalize(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	s = strings.TrimPrefix(s, "+")

	if s == "" {
		return "", &ValidationError{Field: "phone", Reason: "is required"}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", &ValidationError{Field: "phone", Reason: "must contain digits only"}
		}
	}

	switch {
	case strings.HasPrefix(s, trunkPrefix):
		s = n.CountryCode + s[len(trunkPrefix):]
	case !strings.HasPrefix(s, n.CountryCode):
		s = n.CountryCode + s
	}

	if want := len(n.CountryCode) + subscriberDigits; len(s) != want {
		return "", &ValidationError{
			Field:  "phone",
			Reason: fmt.Sprintf("must normalize to %d digits", want),
		}
	}
	return s, nil
}
