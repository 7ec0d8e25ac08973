package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePath rejects empty paths, traversal and shell metacharacters, and
// paths inside system directories. It applies to configured file locations
// such as the database and the seed file.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if strings.Contains(strings.ReplaceAll(path, "\\", "/"), "../") || strings.HasSuffix(path, "..") {
		return fmt.Errorf("path traversal detected: %s", path)
	}

	cleanPath := filepath.Clean(path)
	restrictedPaths := []string{
		"/etc/",
		"/proc/",
		"/sys/",
		"/dev/",
		"/boot/",
	}
	cleanPathLower := strings.ToLower(filepath.ToSlash(cleanPath))
	for _, restricted := range restrictedPaths {
		if strings.HasPrefix(cleanPathLower, restricted) {
			return fmt.Errorf("access to restricted path denied: %s", path)
		}
	}

	for _, char := range []string{";", "&", "|", "$", "`", "<", ">"} {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// SanitizeInput strips NUL and control characters other than common
// whitespace from operator-entered text such as page titles.
func SanitizeInput(input string) string {
	var sanitized strings.Builder
	sanitized.Grow(len(input))
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' || r == '\r' {
			sanitized.WriteRune(r)
		}
	}
	return sanitized.String()
}
