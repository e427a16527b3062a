package nameval

import (
	"strings"
	"testing"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"two elements", "a.b", true},
		{"three elements", "foo.bar.baz", true},
		{"underscore first byte", "_x.y", true},
		{"hyphen in element", "a-b.c", true},
		{"empty", "", false},
		{"no dot", "a", false},
		{"leading dot", ".a.b", false},
		{"trailing dot", "a.b.", false},
		{"empty element", "a..b", false},
		{"digit-start first element", "1a.b", false},
		{"digit-start second element", "a.1b", false},
		{"embedded space", "a.b c", false},
		{"too long", strings.Repeat("a", 128) + "." + strings.Repeat("b", 128), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidString(tt.in); got != tt.want {
				t.Errorf("IsValidString(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsValidMaxLength(t *testing.T) {
	// exactly MaxNameLen ("a." + 253 b's) must be accepted.
	name := "a." + strings.Repeat("b", MaxNameLen-2)
	if len(name) != MaxNameLen {
		t.Fatalf("test construction error: len=%d", len(name))
	}
	if !IsValidString(name) {
		t.Errorf("expected name of length %d to be valid", MaxNameLen)
	}

	over := name + "b"
	if IsValidString(over) {
		t.Errorf("expected name of length %d to be invalid", len(over))
	}
}
