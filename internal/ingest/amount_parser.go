package ingest

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// DigitsOnly drops every non-ASCII-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeAmount coerces a locale-formatted amount ("1,234,000원") to digits.
// Input without digits becomes "0".
func NormalizeAmount(raw string) string {
	d := strings.TrimLeft(DigitsOnly(raw), "0")
	if d == "" {
		return "0"
	}
	return d
}

// AmountValue returns the numeric value of an amount string, 0 when it cannot be represented.
func AmountValue(raw string) int64 {
	n, err := strconv.ParseInt(NormalizeAmount(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// FormatAmount renders an amount with thousands separators.
func FormatAmount(raw string) string {
	d := NormalizeAmount(raw)
	n, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		// beyond int64, keep the digits
		return d
	}
	return humanize.Comma(n)
}
