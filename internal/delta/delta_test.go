package delta

import (
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		previous string
		expected string
	}{
		{
			name:     "empty previous returns full current",
			current:  "hello world",
			previous: "",
			expected: "hello world",
		},
		{
			name:     "empty previous trims current",
			current:  "  hello world  ",
			previous: "",
			expected: "hello world",
		},
		{
			name:     "prefix match returns remainder",
			current:  "hello world there",
			previous: "hello world",
			expected: "there",
		},
		{
			name:     "prefix match trims remainder",
			current:  "hello world   there",
			previous: "hello world",
			expected: "there",
		},
		{
			name:     "exact repeat yields empty delta",
			current:  "hello world",
			previous: "hello world",
			expected: "",
		},
		{
			name:     "divergent transcript re-emits everything",
			current:  "goodbye world",
			previous: "hello world",
			expected: "goodbye world",
		},
		{
			name:     "revision of earlier words re-emits everything",
			current:  "hola mundo there",
			previous: "hello world",
			expected: "hola mundo there",
		},
		{
			name:     "whitespace around previous is ignored",
			current:  "hello world there",
			previous: "  hello world  ",
			expected: "there",
		},
		{
			name:     "both empty",
			current:  "",
			previous: "",
			expected: "",
		},
		{
			name:     "current empty with non-empty previous",
			current:  "",
			previous: "hello",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.current, tt.previous)
			if got != tt.expected {
				t.Errorf("Extract(%q, %q) = %q, want %q", tt.current, tt.previous, got, tt.expected)
			}
		})
	}
}

func TestExtractPrefixLaw(t *testing.T) {
	// For any p and suffix s, Extract(p+s, p) must equal the trimmed suffix.
	prefixes := []string{"a", "hello", "hello world", "one two three"}
	suffixes := []string{" four", "  five six ", "...", " y"}

	for _, p := range prefixes {
		for _, s := range suffixes {
			got := Extract(p+s, p)
			want := strings.TrimSpace(s)
			if got != want {
				t.Errorf("Extract(%q, %q) = %q, want %q", p+s, p, got, want)
			}
		}
	}
}
