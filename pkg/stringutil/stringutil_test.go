package stringutil

import "testing"

func TestEllipsis(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{
			name:  "fits untouched",
			input: "hello world",
			max:   20,
			want:  "hello world",
		},
		{
			name:  "cut with marker",
			input: "The quick brown fox jumps over the lazy dog",
			max:   16,
			want:  "The quick bro...",
		},
		{
			name:  "exact fit",
			input: "12345",
			max:   5,
			want:  "12345",
		},
		{
			name:  "max too small for the marker",
			input: "abcdefg",
			max:   3,
			want:  "abc",
		},
		{
			name:  "max zero",
			input: "something",
			max:   0,
			want:  "",
		},
		{
			name:  "negative max",
			input: "something",
			max:   -1,
			want:  "",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "   padded string   ",
			max:   10,
			want:  "padded ...",
		},
		{
			name:  "multi-line input flattened",
			input: "AUTH alice\r\nhunter2biscuit",
			max:   14,
			want:  "AUTH alice ...",
		},
		{
			name:  "whitespace only",
			input: "   \n\r   ",
			max:   8,
			want:  "",
		},
		{
			name:  "empty input",
			input: "",
			max:   5,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ellipsis(tt.input, tt.max); got != tt.want {
				t.Errorf("Ellipsis(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}
