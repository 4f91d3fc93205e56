package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// routeBreakingChars matches digits and the punctuation that could break a
// /forecast/{location} route or that geocoding ignores anyway.
var routeBreakingChars = regexp.MustCompile("[0-9!@#$%^&*()=_+,\\-./`~:;?\"'\\[\\]{}><\\\\]")

// ErrLocationEmpty is returned when location is empty or whitespace-only after trim.
var ErrLocationEmpty = errors.New("location is required")

// ErrLocationTooShort is returned when location length is below the minimum.
var ErrLocationTooShort = errors.New("location too short")

// ErrLocationTooLong is returned when location length exceeds the maximum.
var ErrLocationTooLong = errors.New("location too long")

// ErrLocationInvalidChars is returned when location contains disallowed characters.
var ErrLocationInvalidChars = errors.New("location contains invalid characters")

// ValidateLocation trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to allowed characters: letters (Unicode), digits, space, comma, hyphen,
// period and apostrophe. At least one letter or digit is required.
// Returns the trimmed string or an error suitable for 400 INVALID_LOCATION responses.
// Whitespace collapsing is left to the service layer; case is never changed.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrLocationTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	alnum := false
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
		if unicode.IsLetter(c) || unicode.IsNumber(c) {
			alnum = true
		}
	}
	if !alnum {
		return "", ErrLocationInvalidChars
	}
	return s, nil
}

// CleanLocation turns free-form user input into a route-safe location: digits and
// punctuation become spaces, whitespace runs collapse to one space, ends are trimmed.
// The result may be empty.
func CleanLocation(input string) string {
	return strings.Join(strings.Fields(routeBreakingChars.ReplaceAllString(input, " ")), " ")
}

// isAllowedLocationRune reports letters (Unicode), digits and the punctuation found in
// place names: space, comma, hyphen, period, apostrophe.
func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
