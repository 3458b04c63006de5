package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/lingo-wallet/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]*)?$|^\.[0-9]+$`)

// ToSmallestUnit converts a user-facing decimal amount to the token's integer
// base units. Fractional digits beyond decimals are dropped (floor), never
// rounded up.
func ToSmallestUnit(decimal string, decimals int) (*big.Int, error) {
	v := strings.TrimSpace(decimal)
	if v == "" {
		return nil, clierr.New(clierr.CodeUsage, "amount is required")
	}
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	if !decimalPattern.MatchString(v) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q must be a positive decimal like 1.23", decimal))
	}
	intPart, fracPart, _ := strings.Cut(v, ".")
	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return new(big.Int), nil
	}
	out, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, "invalid decimal amount")
	}
	return out, nil
}

// ToPositiveSmallestUnit is ToSmallestUnit but rejects amounts that truncate to zero.
func ToPositiveSmallestUnit(decimal string, decimals int) (*big.Int, error) {
	out, err := ToSmallestUnit(decimal, decimals)
	if err != nil {
		return nil, err
	}
	if out.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q is below the smallest unit of a %d-decimal token", decimal, decimals))
	}
	return out, nil
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(baseUnits *big.Int, decimals int) string {
	if baseUnits == nil {
		return "0"
	}
	neg := baseUnits.Sign() < 0
	s := new(big.Int).Abs(baseUnits).String()
	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		intPart := s[:len(s)-decimals]
		fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
		s = intPart
		if fracPart != "" {
			s += "." + fracPart
		}
	}
	if neg {
		return "-" + s
	}
	return s
}

// FormatFixed renders base units truncated to places fractional digits.
func FormatFixed(baseUnits *big.Int, decimals, places int) string {
	full := FormatUnits(baseUnits, decimals)
	intPart, fracPart, _ := strings.Cut(full, ".")
	if places <= 0 {
		return intPart
	}
	if len(fracPart) > places {
		fracPart = fracPart[:places]
	}
	return intPart + "." + fracPart + strings.Repeat("0", places-len(fracPart))
}

// FormatBaseUnits is FormatUnits for base units carried as decimal strings.
func FormatBaseUnits(baseUnits string, decimals int) string {
	n, ok := new(big.Int).SetString(strings.TrimSpace(baseUnits), 10)
	if !ok {
		return ""
	}
	return FormatUnits(n, decimals)
}

// NormalizeDecimal trims redundant zeros from a decimal string.
func NormalizeDecimal(v string) string {
	v = strings.TrimSpace(v)
	intPart, fracPart, hasFrac := strings.Cut(v, ".")
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	if !hasFrac {
		return intPart
	}
	fracPart = strings.TrimRight(fracPart, "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
