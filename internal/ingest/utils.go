package ingest

import (
	"path/filepath"
	"strings"
)

// IsPDF reports whether path has a .pdf extension, case-insensitively.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// IsReport reports whether path looks like a report this package wrote.
func IsReport(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), "-review.pdf")
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
