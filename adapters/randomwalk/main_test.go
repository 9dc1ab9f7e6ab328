package main

import "testing"

func TestParseActions(t *testing.T) {
	tests := []struct {
		name  string
		space string
		want  int
	}{
		{"one per line", "up\ndown\nleft\nright", 4},
		{"blank lines skipped", "up\n\n  \ndown\n", 2},
		{"whitespace trimmed", "  up  \n", 1},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseActions(tt.space)
			if len(got) != tt.want {
				t.Errorf("parseActions(%q) returned %d actions, want %d", tt.space, len(got), tt.want)
			}
		})
	}
}
