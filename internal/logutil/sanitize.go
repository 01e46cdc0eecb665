package logutil

import (
	"strings"
	"unicode/utf8"
)

// maxLogValue caps user-typed values so one pasted blob cannot flood the log.
const maxLogValue = 256

// SanitizeForLog flattens user-typed text (terminal commands, container IDs
// from URLs) into a single printable log-safe line.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 32 || r == 0x7f:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxLogValue {
		cut := maxLogValue
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + "..."
	}
	return out
}
