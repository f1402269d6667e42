package queue

import "fmt"

// DefaultResultMaxBytes is the recommended bound on a stored result payload
// (spec 4.5: "recommended 5 KB; truncate with an indicator").
const DefaultResultMaxBytes = 5 * 1024

// TruncateResult bounds result to maxBytes, appending a truncation
// indicator when it had to cut. maxBytes <= 0 disables truncation.
func TruncateResult(result string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(result) <= maxBytes {
		return result, false
	}

	indicator := fmt.Sprintf("... [truncated, %d of %d bytes shown]", maxBytes, len(result))
	cut := maxBytes - len(indicator)
	if cut < 0 {
		cut = 0
	}
	return result[:cut] + indicator, true
}
