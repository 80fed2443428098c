// Package validator implements the registration field constraints fixed
// by §6.1: username shape/length and a pragmatic email format check.
package validator

import "regexp"

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidUsernameFormat reports whether s contains only letters, digits,
// and underscores.
func ValidUsernameFormat(s string) bool {
	return usernamePattern.MatchString(s)
}

// ValidUsernameLength reports whether s is within the inclusive 3..20
// bound (§6.1, §8 boundary table: 2 rejects, 3 accepts, 20 accepts, 21 rejects).
func ValidUsernameLength(s string) bool {
	return len(s) >= 3 && len(s) <= 20
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}
