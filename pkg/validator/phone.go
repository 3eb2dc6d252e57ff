package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates the national number is not 9 digits
	ErrInvalidLength = errors.New("phone number must have 10 digits (0XX XXX XXXX) or 12 with country code")

	// ErrInvalidPrefix indicates phone number doesn't start with a Ghanaian mobile prefix
	ErrInvalidPrefix = errors.New("phone number must start with a Ghanaian mobile prefix such as 024, 020 or 026")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

const (
	countryCode = "233"

	// E.164 allows at most 15 digits; shorter than 8 is never a reachable subscriber
	minInternationalDigits = 8
	maxInternationalDigits = 15
)

// mobilePrefixes are Ghanaian mobile network prefixes without the trunk 0
var mobilePrefixes = map[string]bool{
	"20": true, "23": true, "24": true, "25": true, "26": true, "27": true, "28": true,
	"50": true, "53": true, "54": true, "55": true, "56": true, "57": true, "59": true,
}

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator handles phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates a Ghanaian mobile number.
// Accepts 0241234567, 024 123 4567, +233 24 123 4567 or 233241234567.
// Returns the E.164 form (+233241234567).
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	national, err := v.national(phone)
	if err != nil {
		return "", err
	}

	return "+" + countryCode + national, nil
}

// national returns the 9-digit subscriber number without trunk prefix or country code
func (v *PhoneValidator) national(phone string) (string, error) {
	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	var national string
	switch {
	case len(sanitized) == 12 && strings.HasPrefix(sanitized, countryCode):
		national = sanitized[3:]
	case len(sanitized) == 10 && strings.HasPrefix(sanitized, "0"):
		national = sanitized[1:]
	default:
		return "", ErrInvalidLength
	}

	if !v.IsValidPrefix(national) {
		return "", ErrInvalidPrefix
	}
	return national, nil
}

// Sanitize removes separators and a leading +
func (v *PhoneValidator) Sanitize(phone string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "").
		Replace(strings.TrimSpace(phone))
}

// IsValidPrefix checks a national number (no trunk 0) against known network prefixes
func (v *PhoneValidator) IsValidPrefix(national string) bool {
	if len(national) < 2 {
		return false
	}
	return mobilePrefixes[national[:2]]
}

// IsValid reports whether phone is a Ghanaian mobile number
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

// IsPlausible accepts a Ghanaian mobile number or any number of 8 to 15
// digits, with or without a + or 00 international prefix.
func (v *PhoneValidator) IsPlausible(phone string) bool {
	if v.IsValid(phone) {
		return true
	}
	digits := strings.TrimPrefix(v.Sanitize(phone), "00")
	return phoneRegex.MatchString(digits) &&
		len(digits) >= minInternationalDigits &&
		len(digits) <= maxInternationalDigits
}

// Normalize returns the E.164 form of a Ghanaian mobile number. Other numbers
// lose their separators and keep an international prefix as a leading +.
func (v *PhoneValidator) Normalize(phone string) string {
	if e164, err := v.Validate(phone); err == nil {
		return e164
	}

	trimmed := strings.TrimSpace(phone)
	digits := v.Sanitize(trimmed)
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(trimmed, "+"):
		return "+" + digits
	case strings.HasPrefix(digits, "00"):
		return "+" + digits[2:]
	}
	return digits
}

// NormalizePhone is Normalize on a zero PhoneValidator
func NormalizePhone(phone string) string {
	return NewPhoneValidator().Normalize(phone)
}
