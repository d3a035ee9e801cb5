package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Temporary files are created next to the archive, hidden and with random
// digits appended to its name, ex: ".Didot_1851a.zip1234567".
var orphanPattern = regexp.MustCompile(`^.+\.` + ArchiveExtension + `[0-9]+$`)

// SweepOrphans removes temporary archives left behind by a process killed in
// the middle of a rewrite or import. Only files older than `olderThan` are
// removed so that rewrites in progress are not disturbed.
func SweepOrphans(root string, olderThan time.Duration) ([]string, error) {

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read store root: %w", err)
	}

	removed := []string{}
	deadline := time.Now().Add(-olderThan)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !orphanPattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // vanished, probably renamed by its owner
		}
		if info.ModTime().After(deadline) {
			continue
		}
		filename := filepath.Join(root, entry.Name())
		err = os.Remove(filename)
		if err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove orphan '%s': %w", filename, err)
		}
		removed = append(removed, filename)
	}

	return removed, nil
}
