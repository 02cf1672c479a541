package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"plain", "Alice", "Alice", nil},
		{"trimmed", "  Alice Smith \t", "Alice Smith", nil},
		{"unicode kept", "Jiří", "Jiří", nil},
		{"decomposed to NFC", "Jir\u030c\u00ed", "Ji\u0159\u00ed", nil},
		{"empty", "", "", ErrEmptyLabel},
		{"blank", "   ", "", ErrEmptyLabel},
		{"dot", ".", "", ErrInvalidLabel},
		{"dotdot", "..", "", ErrInvalidLabel},
		{"hidden", ".alice", "", ErrInvalidLabel},
		{"slash", "a/b", "", ErrInvalidLabel},
		{"backslash", `a\b`, "", ErrInvalidLabel},
		{"control char", "ali\x00ce", "", ErrInvalidLabel},
		{"too long", strings.Repeat("a", 129), "", ErrInvalidLabel},
		{"reserved", "Unknown", "", ErrReservedLabel},
		{"reserved folded", "  UNKNOWN ", "", ErrReservedLabel},
		{"reserved prefix allowed", "Unknown Soldier", "Unknown Soldier", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLabel(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NormalizeLabel(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Honza", "Honza"},
		{"Jiří", "Jiri"},
		{"café", "cafe"},
		{"Žluťoučký kůň", "Zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFoldLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"  JOHN   DOE ", "john doe"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := FoldLabel(tt.input)
			if result != tt.expected {
				t.Errorf("FoldLabel(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
