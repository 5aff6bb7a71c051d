package llm

import "unicode/utf8"

// EstimateTokens approximates the token count of text for usage accounting.
// The heuristic is one token per four runes, rounded up, which tracks the
// upstream tokenizer closely enough for reporting purposes. Exact counts are
// explicitly out of scope.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// estimateMessageTokens sums the estimate across a conversation, used for the
// prompt side of the usage block.
func estimateMessageTokens(contents []string) int {
	total := 0
	for _, c := range contents {
		total += EstimateTokens(c)
	}
	return total
}
