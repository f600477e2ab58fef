package assemble_test

import (
	"testing"

	"github.com/alnah/go-transcribe-engine/internal/assemble"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "   \t\n  ", want: ""},
		{name: "collapses whitespace", input: "  hello   world  ", want: "Hello world"},
		{name: "capitalizes first word", input: "hello world", want: "Hello world"},
		{
			name:  "capitalizes after sentence mark",
			input: "first sentence. second sentence",
			want:  "First sentence. Second sentence",
		},
		{
			name:  "space inserted after period before letter",
			input: "one.two",
			want:  "One. Two",
		},
		{
			name:  "decimal numbers preserved",
			input: "pi is roughly 3.14 today",
			want:  "Pi is roughly 3.14 today",
		},
		{
			name:  "space before punctuation removed",
			input: "really ? yes ; fine",
			want:  "Really? Yes; fine",
		},
		{
			name:  "space ensured after exclamation",
			input: "wow!that was loud",
			want:  "Wow! That was loud",
		},
		{
			name:  "question starts new sentence",
			input: "are you sure? absolutely",
			want:  "Are you sure? Absolutely",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := assemble.Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"first sentence. second sentence",
		"  hello   world ! how are you ?  ",
		"pi is 3.14 and e is 2.72",
		"one.two.three",
	}
	for _, in := range inputs {
		once := assemble.Normalize(in)
		twice := assemble.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
