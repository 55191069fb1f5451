package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// MinPhoneDigits is the smallest accepted number of digits in a phone number.
const MinPhoneDigits = 10

// maxReferenceLength bounds client-supplied payment references.
const maxReferenceLength = 64

// PhoneDigits returns the digits of a phone number, dropping any formatting.
func PhoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePhoneNumber checks that a phone number carries enough digits
func ValidatePhoneNumber(phone string) error {
	if strings.TrimSpace(phone) == "" {
		return fmt.Errorf("phone number cannot be empty")
	}
	if n := len(PhoneDigits(phone)); n < MinPhoneDigits {
		return fmt.Errorf("invalid phone number: expected at least %d digits, got %d", MinPhoneDigits, n)
	}
	return nil
}

// ValidateCountryCode checks an ISO 3166-1 alpha-2 code
func ValidateCountryCode(code string) error {
	if len(code) != 2 {
		return fmt.Errorf("invalid country code %q: expected 2 letters", code)
	}
	for _, r := range code {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return fmt.Errorf("invalid country code %q: expected 2 letters", code)
		}
	}
	return nil
}

// NormalizeCountryCode converts a country code to upper case without surrounding spaces
func NormalizeCountryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateAndNormalizeCountryCode validates a country code and returns its normalized form
func ValidateAndNormalizeCountryCode(code string) (string, error) {
	code = NormalizeCountryCode(code)
	if err := ValidateCountryCode(code); err != nil {
		return "", err
	}
	return code, nil
}

// ValidateReference checks a payment reference used to route wallet callbacks
func ValidateReference(ref string) error {
	if ref == "" {
		return fmt.Errorf("reference cannot be empty")
	}
	if len(ref) > maxReferenceLength {
		return fmt.Errorf("reference too long: at most %d characters, got %d", maxReferenceLength, len(ref))
	}
	for _, r := range ref {
		if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return fmt.Errorf("invalid character %q in reference", r)
		}
	}
	return nil
}
