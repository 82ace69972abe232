// Package strings provides string slice helpers shared by request handling.
package strings

import "strings"

// DedupeAndTrim trims each value, drops blanks and keeps the first
// occurrence of every remaining value in input order. A nil or empty input
// is returned as is.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
