package shipping

import (
	"strings"

	"github.com/go-faster/errors"
)

// ErrInvalidZip is returned for postal codes that do not have 8 digits.
var ErrInvalidZip = errors.New("zip code must have 8 digits")

// NormalizeZip strips every non-digit and requires exactly 8 digits.
func NormalizeZip(zip string) (string, error) {
	var b strings.Builder
	b.Grow(8)
	for _, r := range zip {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() != 8 {
		return "", ErrInvalidZip
	}
	return b.String(), nil
}

// FormatZip renders a postal code as 12345-678. Inputs that do not normalize
// are returned with only their digits.
func FormatZip(zip string) string {
	clean, err := NormalizeZip(zip)
	if err != nil {
		return strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, zip)
	}
	return clean[:5] + "-" + clean[5:]
}
