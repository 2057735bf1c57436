package services

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePhone reduces a phone number to a comparable key: NFKC folds
// full-width digits and plus signs, separators are dropped, a leading "00"
// becomes "+", and only a leading "+" is kept. It returns "" when no digits
// remain.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	plus := strings.HasPrefix(s, "+")
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if !plus && strings.HasPrefix(digits, "00") {
		digits = digits[2:]
		plus = true
	}
	if plus {
		return "+" + digits
	}
	return digits
}

// PhoneKey is the deduplication key for raw: the normalized number without
// its leading "+", so "+15551111111", "15551111111" and "0015551111111"
// collide. A national number missing its country code ("5551111111") keeps
// a different key; no region is known to expand it.
func PhoneKey(raw string) string {
	return strings.TrimPrefix(NormalizePhone(raw), "+")
}

// MaskPhone keeps the last four digits of a number for logging.
func MaskPhone(raw string) string {
	n := NormalizePhone(raw)
	if len(n) <= 4 {
		return "****"
	}
	return "***" + n[len(n)-4:]
}
