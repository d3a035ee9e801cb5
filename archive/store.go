package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"
)

const DefaultLockTimeout = 10 * time.Second

type Config struct {
	// Root is the directory holding one archive per document
	Root string

	// LockTimeout bounds the wait for a document lock, 0 waits forever
	LockTimeout time.Duration

	Logger *slog.Logger
}

// Store keeps the annotation pages of each document in a zip archive
// `<root>/<stem>.zip`, one `NNNN.json` entry per page. Every read or write
// of an archive file holds the document lock, so readers never see a partially
// written archive and writers on the same document are totally ordered.
// Different documents never contend.
type Store struct {
	root    string
	timeout time.Duration
	logger  *slog.Logger
	locks   *locker
}

func NewStore(config *Config) *Store {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:    config.Root,
		timeout: config.LockTimeout,
		logger:  logger,
		locks:   newLocker(logger),
	}
}

func (s *Store) Root() string {
	return s.root
}

// Path returns the archive path of a document.
func (s *Store) Path(document string) (string, error) {
	return Resolve(s.root, document, ArchiveExtension)
}

func (s *Store) withLock(ctx context.Context, filename string, f func() error) error {
	return s.locks.withLock(ctx, filename, s.timeout, f)
}

// Exists tells if the document has an archive. It does not take the lock.
func (s *Store) Exists(document string) (bool, error) {
	filename, err := s.Path(document)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat archive: %w", err)
	}
	return true, nil
}

// Load returns the record of a page, with the load-time filter applied.
func (s *Store) Load(ctx context.Context, document string, page int) (any, error) {

	name, err := EntryName(page)
	if err != nil {
		return nil, err
	}

	filename, err := s.Path(document)
	if err != nil {
		return nil, err
	}

	// Cheap check, avoids creating lock files for unknown documents
	exists, err := s.Exists(document)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrArchiveNotFound, document)
	}

	var record any
	err = s.withLock(ctx, filename, func() error {
		r, err := zip.OpenReader(filename)
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: '%s'", ErrArchiveNotFound, document)
		}
		if err != nil {
			return fmt.Errorf("%w: open archive '%s': %s", ErrMalformedEntry, filename, err.Error())
		}
		defer r.Close()

		raw, err := readEntry(&r.Reader, name)
		if err != nil {
			return err
		}

		record, err = DecodeOnLoad(raw)
		if err != nil {
			return fmt.Errorf("decode '%s' from '%s': %w", name, filename, err)
		}
		return nil
	})

	return record, err
}

// Save stores the record of a page. A new page is appended to the archive, an
// existing page is replaced by rewriting the whole archive. The original
// archive is left intact when Save fails.
func (s *Store) Save(ctx context.Context, document string, page int, record any) error {

	name, err := EntryName(page)
	if err != nil {
		return err
	}

	filename, err := s.Path(document)
	if err != nil {
		return err
	}

	data, err := EncodeOnSave(record)
	if err != nil {
		return err
	}

	return s.withLock(ctx, filename, func() error {

		info, err := os.Stat(filename)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("create archive", "archive", filename, "entry", name)
			err = createArchive(filename, name, data)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrSave, err.Error())
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: stat '%s': %s", ErrSave, filename, err.Error())
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: '%s' is not a file", ErrSave, filename)
		}

		r, err := zip.OpenReader(filename)
		if err != nil {
			return fmt.Errorf("%w: '%s' is not a valid zip file: %s", ErrSave, filename, err.Error())
		}
		defer r.Close()

		if !hasEntry(&r.Reader, name) {
			err := appendEntry(filename, name, data)
			if err == nil {
				s.logger.Debug("append entry", "archive", filename, "entry", name)
				return nil
			}
			if err != errAppendUnsupported {
				return fmt.Errorf("%w: %s", ErrSave, err.Error())
			}
		}

		s.logger.Debug("rewrite archive", "archive", filename, "entry", name, "entries", len(r.File))
		err = rewriteReplace(filename, &r.Reader, name, data)
		if err != nil {
			return fmt.Errorf("%w: rewrite '%s': %s", ErrSave, filename, err.Error())
		}
		return nil
	})
}

// Pages lists the page indices stored for a document, sorted.
func (s *Store) Pages(ctx context.Context, document string) ([]int, error) {

	filename, err := s.Path(document)
	if err != nil {
		return nil, err
	}

	exists, err := s.Exists(document)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrArchiveNotFound, document)
	}

	pages := []int{}
	err = s.withLock(ctx, filename, func() error {
		r, err := zip.OpenReader(filename)
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: '%s'", ErrArchiveNotFound, document)
		}
		if err != nil {
			return fmt.Errorf("%w: open archive '%s': %s", ErrMalformedEntry, filename, err.Error())
		}
		defer r.Close()

		for _, f := range r.File {
			if page, ok := PageFromEntry(f.Name); ok {
				pages = append(pages, page)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Ints(pages)
	return pages, nil
}

// ExportRaw returns the raw archive of a document, false if there is none.
// The archive is read into memory under the document lock.
func (s *Store) ExportRaw(ctx context.Context, document string) ([]byte, bool, error) {

	filename, err := s.Path(document)
	if err != nil {
		return nil, false, err
	}

	exists, err := s.Exists(document)
	if err != nil || !exists {
		return nil, false, err
	}

	var data []byte
	found := false
	err = s.withLock(ctx, filename, func() error {
		raw, err := os.ReadFile(filename)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		data, found = raw, true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}

	return data, true, nil
}

// ExportTo copies the raw archive of a document into w. Returns false if the
// document has no archive. w is written after the lock is released.
func (s *Store) ExportTo(ctx context.Context, document string, w io.Writer) (bool, error) {

	data, found, err := s.ExportRaw(ctx, document)
	if err != nil || !found {
		return found, err
	}

	_, err = w.Write(data)
	if err != nil {
		return true, fmt.Errorf("copy archive: %w", err)
	}
	return true, nil
}

// ImportFrom replaces the whole archive of a document with the content of r.
// Content is not validated, a malformed archive is detected by the next Load.
// r is drained into a temporary file first, only the rename holds the lock.
func (s *Store) ImportFrom(ctx context.Context, document string, r io.Reader) error {

	filename, err := s.Path(document)
	if err != nil {
		return err
	}

	f, err := pendingArchive(filename)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %s", ErrWrite, err.Error())
	}
	defer f.Cleanup()

	n, err := io.Copy(f, r)
	if err != nil {
		return fmt.Errorf("%w: copy archive: %s", ErrWrite, err.Error())
	}

	return s.withLock(ctx, filename, func() error {
		err := f.CloseAtomicallyReplace()
		if err != nil {
			return fmt.Errorf("%w: replace '%s': %s", ErrWrite, filename, err.Error())
		}

		s.logger.Info("archive imported", "archive", filename, "bytes", n)
		return nil
	})
}

// ImportRaw replaces the whole archive of a document with data.
func (s *Store) ImportRaw(ctx context.Context, document string, data []byte) error {
	return s.ImportFrom(ctx, document, bytes.NewReader(data))
}
