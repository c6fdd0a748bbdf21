package agentloop

import "strings"

var tokenContextKeywords = []string{"token", "context"}
var overflowKeywords = []string{"overflow", "limit", "too long", "too-long", "maximum", "exceed"}

// isOverflowSignature reports whether an inference error's text matches the
// overflow signature: it must contain both a token/context keyword and an
// overflow/limit/too-long/maximum keyword.
func isOverflowSignature(errText string) bool {
	lower := strings.ToLower(errText)
	hasTokenOrContext := false
	for _, kw := range tokenContextKeywords {
		if strings.Contains(lower, kw) {
			hasTokenOrContext = true
			break
		}
	}
	if !hasTokenOrContext {
		return false
	}
	for _, kw := range overflowKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
