package aicore

// EstimateTokens provides a rough token count estimate for a prompt.
// Uses the approximation: ~3 chars per token, rounded up.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	return int64((len(text) + 2) / 3)
}
