package common

import "strconv"

// AtoiDefault parses value as an int, returning def when empty or malformed.
// Pagination query params use this so a garbage ?page= never 500s.
func AtoiDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
