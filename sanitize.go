package statsagg

import (
	"strings"
	"unicode"
)

// SanitizeKey normalises a raw metric name. Runs of whitespace collapse to a single '_',
// '/' becomes '-' and every character outside [A-Za-z0-9_.-] is dropped.
func SanitizeKey(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	inSpace := false
	for _, r := range raw {
		if unicode.IsSpace(r) {
			if !inSpace {
				sb.WriteByte('_')
				inSpace = true
			}
			continue
		}
		inSpace = false
		switch {
		case r == '/':
			sb.WriteByte('-')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
