// Package strings provides helpers for list-valued configuration.
package strings

import (
	"strings"
)

// SplitList splits a comma separated value into trimmed, unique, non-empty
// elements. Order is preserved and an empty input yields nil.
//
//	SplitList(" /health, /metrics ,/health,")
//	// []string{"/health", "/metrics"}
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, ","))
}

// DedupeAndTrim removes duplicates and blanks from values, trimming each
// element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// NormalizePaths cleans URL path prefixes: trims blanks, drops trailing
// slashes (except for "/") and removes duplicates.
func NormalizePaths(paths []string) []string {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if len(p) > 1 {
			p = strings.TrimRight(p, "/")
		}
		cleaned = append(cleaned, p)
	}
	return DedupeAndTrim(cleaned)
}
