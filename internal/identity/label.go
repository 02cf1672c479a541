package identity

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxLabelBytes keeps labels well below common filesystem name limits.
const maxLabelBytes = 128

// UnknownLabel is the name logged for faces without a match. No person may be
// registered under it.
const UnknownLabel = "Unknown"

var (
	// ErrEmptyLabel is returned when a registration name is blank.
	ErrEmptyLabel = errors.New("name cannot be empty")
	// ErrInvalidLabel is returned when a name cannot be used as a directory name.
	ErrInvalidLabel = errors.New("name contains characters that cannot be used as a directory name")
	// ErrReservedLabel is returned for names that collide with the unmatched face label.
	ErrReservedLabel = errors.New("name is reserved for unrecognized faces")
)

// NormalizeLabel trims and NFC-normalizes a user supplied name and checks that
// it is safe to use as a single path segment.
func NormalizeLabel(name string) (string, error) {
	label := norm.NFC.String(strings.TrimSpace(name))
	if label == "" {
		return "", ErrEmptyLabel
	}
	if len(label) > maxLabelBytes {
		return "", ErrInvalidLabel
	}
	if label == "." || label == ".." || strings.HasPrefix(label, ".") {
		return "", ErrInvalidLabel
	}
	if strings.ContainsAny(label, `/\`) {
		return "", ErrInvalidLabel
	}
	for _, r := range label {
		if unicode.IsControl(r) {
			return "", ErrInvalidLabel
		}
	}
	if FoldLabel(label) == FoldLabel(UnknownLabel) {
		return "", ErrReservedLabel
	}
	return label, nil
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// FoldLabel folds a name for comparison (lowercase, no diacritics, spaces for dashes).
func FoldLabel(name string) string {
	name = RemoveDiacritics(strings.TrimSpace(name))
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}
