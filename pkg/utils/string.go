package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate cuts s to at most maxLen bytes followed by "...". The cut never
// splits a UTF-8 sequence.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := max(maxLen, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// JoinSet serializes a string set into the comma separated column form.
// Members are trimmed; empty members and duplicates are dropped.
func JoinSet(members []string) string {
	return strings.Join(normalizeSet(members), ",")
}

// SplitSet parses the comma separated column form back into a set. It never
// returns nil so empty sets encode as [] rather than null.
func SplitSet(s string) []string {
	return normalizeSet(strings.Split(s, ","))
}

func normalizeSet(members []string) []string {
	out := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		m = strings.TrimSpace(strings.ReplaceAll(m, ",", " "))
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
