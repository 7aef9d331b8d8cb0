package util

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{"shorter than limit", "SELECT 1", 80, "SELECT 1"},
		{"exactly at limit", "abc", 3, "abc"},
		{"cut with ellipsis", "SELECT id, title FROM works", 9, "SELECT id…"},
		{"zero limit", "anything", 0, ""},
		{"multibyte safe", "⊔⊔⊔⊔", 2, "⊔⊔…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.s, tt.n); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
			}
		})
	}
}
