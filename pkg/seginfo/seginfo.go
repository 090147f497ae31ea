// Package seginfo provides utilities for naming and discovering the
// monotonically numbered segment files of the Ignite data directory.
//
// Filename format: NNNNNN.log
//
// Where NNNNNN is a zero-padded, 6-digit, strictly monotonic segment id.
// Lexicographic sort order on the filename therefore matches numeric order
// on the id, which is what lets recovery replay segments "in id order" by
// simply sorting the directory listing.
//
// Example filenames:
//
//	000001.log
//	000042.log
//	000100.log
package seginfo

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/iamNilotpal/ignite/pkg/filesys"
)

// Extension is the fixed file extension for segment files.
const Extension = ".log"

// IDWidth is the number of zero-padded digits in a segment id.
const IDWidth = 6

// GenerateName returns the filename for the segment with the given id.
func GenerateName(id uint32) string {
	return fmt.Sprintf("%0*d%s", IDWidth, id, Extension)
}

// IsSegmentFile reports whether name matches the NNNNNN.log naming scheme.
func IsSegmentFile(name string) bool {
	_, err := ParseSegmentID(name)
	return err == nil
}

// ParseSegmentID extracts the numeric id from a segment filename. fullPath
// may be a bare filename or a full path; only the base name is inspected.
func ParseSegmentID(fullPath string) (uint32, error) {
	name := filepath.Base(fullPath)
	if !strings.HasSuffix(name, Extension) {
		return 0, fmt.Errorf("segment filename %q missing %s extension", name, Extension)
	}

	digits := strings.TrimSuffix(name, Extension)
	if len(digits) != IDWidth {
		return 0, fmt.Errorf("segment filename %q does not have a %d-digit id", name, IDWidth)
	}

	id, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("segment filename %q has a non-numeric id: %w", name, err)
	}

	return uint32(id), nil
}

// ListSegmentIDs returns every segment id found directly under dataDir,
// sorted ascending. It ignores files that do not match the naming scheme
// (such as the LOCK sentinel).
func ListSegmentIDs(dataDir string) ([]uint32, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	ids := make([]uint32, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, err := ParseSegmentID(entry.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	slices.Sort(ids)
	return ids, nil
}

// PathFor joins dataDir with the filename for the given segment id.
func PathFor(dataDir string, id uint32) string {
	return filepath.Join(dataDir, GenerateName(id))
}

// EnsureDataDir creates dataDir if it does not already exist.
func EnsureDataDir(dataDir string) error {
	return filesys.CreateDir(dataDir, 0755, true)
}
