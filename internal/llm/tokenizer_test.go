package llm

import "testing"

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single rune", "a", 1},
		{"four runes", "abcd", 1},
		{"five runes", "abcde", 2},
		{"hello", "Hello!", 2},
		{"multibyte runes count as runes", "héllo", 2},
		{"longer sentence", "The quick brown fox jumps over the lazy dog", 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateMessageTokens(t *testing.T) {
	contents := []string{"Hello!", "How are you?"}
	want := EstimateTokens("Hello!") + EstimateTokens("How are you?")
	if got := estimateMessageTokens(contents); got != want {
		t.Errorf("estimateMessageTokens() = %d, want %d", got, want)
	}
	if got := estimateMessageTokens(nil); got != 0 {
		t.Errorf("estimateMessageTokens(nil) = %d, want 0", got)
	}
}
