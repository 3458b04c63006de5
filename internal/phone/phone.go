// Package phone normalizes phone numbers and derives the one-way lookup key
// stored in place of the raw number.
package phone

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// MinDigits is the shortest digit run accepted as a phone number.
const MinDigits = 7

var literalPattern = regexp.MustCompile(`^\+[\d\-\s().]+$`)

// Digits strips everything but 0-9 so formatting differences collapse.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsLiteral reports whether raw is a "+" prefixed phone number with at least
// MinDigits digits.
func IsLiteral(raw string) bool {
	v := strings.TrimSpace(raw)
	return literalPattern.MatchString(v) && len(Digits(v)) >= MinDigits
}

// Hash is the hex SHA-256 of the digits of raw.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(Digits(raw)))
	return hex.EncodeToString(sum[:])
}

// Compact removes spaces and separators but keeps the leading "+".
func Compact(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	return "+" + Digits(v)
}

// Mask hides all but the last four digits for logs.
func Mask(raw string) string {
	d := Digits(raw)
	if len(d) <= 4 {
		return strings.Repeat("*", len(d))
	}
	return strings.Repeat("*", len(d)-4) + d[len(d)-4:]
}
