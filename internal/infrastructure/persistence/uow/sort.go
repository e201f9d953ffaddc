package uow

import "strings"

// ValidateSortOrder normalizes a sort direction to "ASC" or "DESC".
// Anything unrecognized falls back to ascending.
func ValidateSortOrder(dir string) string {
	switch strings.ToUpper(strings.TrimSpace(dir)) {
	case "DESC":
		return "DESC"
	default:
		return "ASC"
	}
}
