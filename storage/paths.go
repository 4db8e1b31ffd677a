package storage

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultExt is appended to document paths whose base name carries no
	// extension.
	DefaultExt = ".xml"

	// ArchiveExt marks a document stored as a sealed archive. Matched
	// case-insensitively.
	ArchiveExt = ".mar"
)

// NormalizePath strips surrounding quotes from a user-supplied path and
// appends DefaultExt when the base name has no dot.
func NormalizePath(path string) string {
	path = strings.Trim(path, `"'`)
	if path == "" {
		return path
	}
	if !strings.Contains(filepath.Base(path), ".") {
		path += DefaultExt
	}
	return path
}

// IsArchive reports whether path names a sealed archive.
func IsArchive(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ArchiveExt)
}

// SidecarPath returns the JSON id-index path for a document.
func SidecarPath(docPath string) string {
	return docPath + ".ids"
}

// IndexDBPath returns the badger id-index directory for a document.
func IndexDBPath(docPath string) string {
	return docPath + ".idsdb"
}

// DocConfigPath returns the per-document config override path.
func DocConfigPath(docPath string) string {
	return docPath + ".config"
}

// BackupName inserts ".bkp" before the extension: "plan.xml" becomes
// "plan.bkp.xml".
func BackupName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".bkp" + ext
}

// TimestampedName inserts a second-resolution timestamp before the
// extension: "plan.xml" becomes "plan.20260115_143022.xml".
func TimestampedName(path string, now time.Time) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + now.Format("20060102_150405") + ext
}
