package storage

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultBaseName is used when nothing usable survives sanitizing
const DefaultBaseName = "file"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeBaseName derives the base of a stored name from a caller-claimed
// file name: extension stripped, unsafe characters replaced with '_',
// truncated to maxLen and trailing underscores trimmed.
func SanitizeBaseName(claimedName string, maxLen int) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(claimedName), `\`, "/"))
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}

	base = unsafeNameChars.ReplaceAllString(base, "_")
	if maxLen > 0 && len(base) > maxLen {
		base = base[:maxLen]
	}
	base = strings.TrimRight(base, "_")

	if base == "" {
		return DefaultBaseName
	}
	return base
}

// newToken returns 32 lowercase hex characters from a random UUID
func newToken() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// buildStoredName assembles {base}_{token}{ext}
func buildStoredName(base, ext string) string {
	return base + "_" + newToken() + ext
}
