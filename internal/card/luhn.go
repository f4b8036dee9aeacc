// Package card validates primary account numbers and card form input.
package card

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

var ErrInvalidPAN = errors.New("PAN must be 13-19 digits")

type Brand string

const (
	BrandVisa       Brand = "VISA"
	BrandMastercard Brand = "MASTERCARD"
	BrandAmex       Brand = "AMEX"
	BrandDiners     Brand = "DINERS"
	BrandUnknown    Brand = "UNKNOWN"
)

// Normalize strips whitespace from a raw PAN and rejects anything that is
// not 13-19 ASCII digits.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		if r < '0' || r > '9' {
			return "", ErrInvalidPAN
		}
		b.WriteByte(byte(r))
	}
	digits := b.String()
	if len(digits) < 13 || len(digits) > 19 {
		return "", ErrInvalidPAN
	}
	return digits, nil
}

// Valid runs the Luhn mod-10 check over a normalized PAN. Doubling starts at
// the second digit from the right, toggled by the alternate flag each step.
func Valid(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	alternate := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if alternate {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		alternate = !alternate
	}

	return sum%10 == 0
}

// DetectBrand maps a PAN prefix to an issuing network. Rules are evaluated
// in order and the first match wins.
func DetectBrand(digits string) Brand {
	if digits == "" {
		return BrandUnknown
	}

	if strings.HasPrefix(digits, "4") {
		return BrandVisa
	}

	// Mastercard: 51-55 or the 2221-2720 range introduced in 2017.
	if len(digits) >= 2 && digits[0] == '5' && digits[1] >= '1' && digits[1] <= '5' {
		return BrandMastercard
	}
	if len(digits) >= 4 {
		if prefix, err := strconv.Atoi(digits[:4]); err == nil && prefix >= 2221 && prefix <= 2720 {
			return BrandMastercard
		}
	}

	if len(digits) >= 2 && digits[0] == '3' && (digits[1] == '4' || digits[1] == '7') {
		return BrandAmex
	}

	if len(digits) >= 2 && digits[0] == '3' && (digits[1] == '6' || digits[1] == '8') {
		return BrandDiners
	}

	return BrandUnknown
}

// Format groups digits into blocks of four separated by single spaces.
// Input beyond 19 digits is truncated before grouping.
func Format(digits string) string {
	if len(digits) > 19 {
		digits = digits[:19]
	}

	var b strings.Builder
	for i := 0; i < len(digits); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := i + 4
		if end > len(digits) {
			end = len(digits)
		}
		b.WriteString(digits[i:end])
	}
	return b.String()
}
