package cache

import "strings"

// Key joins non-empty parts with ":" without doubling separators.
func Key(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		p = strings.Trim(p, ":")
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}
