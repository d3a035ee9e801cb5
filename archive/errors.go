package archive

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidName    = errors.New("invalid document name")
	ErrInvalidPage    = errors.New("invalid page index")
	ErrNotFound       = errors.New("not found")
	ErrLockTimeout    = errors.New("lock timeout")
	ErrSave           = errors.New("save error")
	ErrWrite          = errors.New("write error")
	ErrMalformedEntry = errors.New("malformed entry")

	ErrArchiveNotFound = fmt.Errorf("archive %w", ErrNotFound)
	ErrEntryNotFound   = fmt.Errorf("entry %w", ErrNotFound)

	// ErrInvalidRecord is also an ErrSave
	ErrInvalidRecord = fmt.Errorf("%w: record must be a JSON object or array", ErrSave)
)
