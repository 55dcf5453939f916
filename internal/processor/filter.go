package processor

import "strings"

// isNoise reports whether line matches any configured noise substring
// (spec.md §4.2.2). Matching lines are dropped before parsing is even
// attempted.
func isNoise(line string, noiseFilters []string) bool {
	for _, f := range noiseFilters {
		if f != "" && strings.Contains(line, f) {
			return true
		}
	}
	return false
}
