package delta

import "strings"

// Extract returns the part of current judged to be newly spoken relative to
// previous. Both inputs are trimmed of surrounding whitespace first.
//
// When previous is empty the whole of current is new. When current extends
// previous as a literal prefix only the remainder is new. When the engine
// revised its own earlier transcript and no prefix relationship holds, the
// entire current transcript is returned; re-emitting already typed words is
// preferred over silently dropping divergent text.
func Extract(current, previous string) string {
	current = strings.TrimSpace(current)
	previous = strings.TrimSpace(previous)

	if previous == "" {
		return current
	}

	if strings.HasPrefix(current, previous) {
		return strings.TrimSpace(current[len(previous):])
	}

	return current
}
