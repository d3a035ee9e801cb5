package archive

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	ArchiveExtension  = "zip"
	DocumentExtension = "pdf"
	LockSuffix        = ".lock"
)

// Stem returns the document name without its extension. Leading dots do not
// start an extension.
// Ex: "Didot_1851a.pdf" > "Didot_1851a", ".hidden" > ".hidden"
func Stem(name string) string {
	rest := strings.TrimLeft(name, ".")
	return name[:len(name)-len(rest)] + strings.TrimSuffix(rest, filepath.Ext(rest))
}

// Ext returns the extension Stem removes, dot included.
func Ext(name string) string {
	return name[len(Stem(name)):]
}

// Resolve derives the path of the file storing `name` inside `root`, with its
// extension replaced by `extension`. Names carrying directory components or
// resolving outside root are rejected with ErrInvalidName.
func Resolve(root, name, extension string) (string, error) {

	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}

	if strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("%w: '%s' contains path separators", ErrInvalidName, name)
	}

	stem := Stem(name)
	if strings.Trim(stem, ".") == "" {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}

	filename := filepath.Join(root, stem+"."+extension)

	rel, err := filepath.Rel(root, filename)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: '%s' escapes storage root", ErrInvalidName, name)
	}

	return filename, nil
}
