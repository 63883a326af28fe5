package flow

import (
	"regexp"
	"strings"
)

var (
	// phoneRe accepts Zimbabwean numbers in local or international form:
	// optional +263/263/0 prefix followed by 9-10 digits.
	phoneRe = regexp.MustCompile(`^(\+?263|0)?[0-9]{9,10}$`)
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// ValidName accepts any name of at least 2 characters after stripping.
func ValidName(s string) bool {
	return len(strings.TrimSpace(s)) >= 2
}

// ValidChurch applies the same rule as ValidName.
func ValidChurch(s string) bool {
	return ValidName(s)
}

// ValidPhone reports whether s is a plausible Zimbabwean phone number.
// Whitespace is ignored so "077 123 4567" passes.
func ValidPhone(s string) bool {
	return phoneRe.MatchString(spaceRe.ReplaceAllString(s, ""))
}

// ValidEmail checks the local@domain.tld shape with no whitespace.
func ValidEmail(s string) bool {
	return emailRe.MatchString(strings.TrimSpace(s))
}

// ValidReference accepts any EcoCash reference of at least 5 characters
// after stripping.
func ValidReference(s string) bool {
	return len(strings.TrimSpace(s)) >= 5
}
