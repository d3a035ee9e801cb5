package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/zip"
)

const (
	directoryEndSignature = 0x06054b50
	directoryEndLen       = 22
	maxCommentLen         = 0xffff
)

// errAppendUnsupported means the archive layout does not allow appending in
// place (zip64, trailing garbage, too many entries), a rewrite is needed.
var errAppendUnsupported = errors.New("append not supported")

// writeAt writes the new tail of an archive being appended to.
var writeAt = (*os.File).WriteAt

// pendingArchive opens a temporary file next to filename that replaces it on
// CloseAtomicallyReplace. Cleanup removes it if it was not renamed.
func pendingArchive(filename string) (*renameio.PendingFile, error) {
	return renameio.NewPendingFile(filename,
		renameio.WithTempDir(filepath.Dir(filename)),
		renameio.WithExistingPermissions(),
	)
}

func hasEntry(r *zip.Reader, name string) bool {
	for _, f := range r.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

func readEntry(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry '%s': %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read entry '%s': %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: '%s'", ErrEntryNotFound, name)
}

func writeEntry(w *zip.Writer, name string, data []byte) error {
	entry, err := w.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("create entry '%s': %w", name, err)
	}
	_, err = entry.Write(data)
	if err != nil {
		return fmt.Errorf("write entry '%s': %w", name, err)
	}
	return nil
}

// createArchive writes a new archive with a single entry. The archive only
// becomes visible once complete.
func createArchive(filename, name string, data []byte) error {
	f, err := pendingArchive(filename)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer f.Cleanup()

	w := zip.NewWriter(f)
	err = writeEntry(w, name, data)
	if err != nil {
		return err
	}
	err = w.Close()
	if err != nil {
		return fmt.Errorf("close zip writer: %w", err)
	}
	return f.CloseAtomicallyReplace()
}

// rewriteReplace streams every entry of r but `name` into a temporary archive
// in the same directory, adds `name` with data and renames the temporary
// archive over filename. The original archive is untouched until the rename.
func rewriteReplace(filename string, r *zip.Reader, name string, data []byte) error {
	f, err := pendingArchive(filename)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer f.Cleanup()

	w := zip.NewWriter(f)
	for _, entry := range r.File {
		if entry.Name == name {
			continue
		}
		err = w.Copy(entry)
		if err != nil {
			return fmt.Errorf("copy entry '%s': %w", entry.Name, err)
		}
	}
	err = writeEntry(w, name, data)
	if err != nil {
		return err
	}
	err = w.Close()
	if err != nil {
		return fmt.Errorf("close zip writer: %w", err)
	}
	return f.CloseAtomicallyReplace()
}

type directoryEnd struct {
	records uint16
	size    uint32
	offset  uint32
	comment []byte
	pos     int64 // position of the record in the file
}

func (d *directoryEnd) bytes() []byte {
	b := make([]byte, directoryEndLen, directoryEndLen+len(d.comment))
	binary.LittleEndian.PutUint32(b[0:], directoryEndSignature)
	// b[4:8] disk numbers stay 0
	binary.LittleEndian.PutUint16(b[8:], d.records)
	binary.LittleEndian.PutUint16(b[10:], d.records)
	binary.LittleEndian.PutUint32(b[12:], d.size)
	binary.LittleEndian.PutUint32(b[16:], d.offset)
	binary.LittleEndian.PutUint16(b[20:], uint16(len(d.comment)))
	return append(b, d.comment...)
}

// readDirectoryEnd locates the end of central directory record within the
// last bytes of r.
func readDirectoryEnd(r io.ReaderAt, size int64) (*directoryEnd, error) {

	search := int64(directoryEndLen + maxCommentLen)
	if search > size {
		search = size
	}
	if search < directoryEndLen {
		return nil, errAppendUnsupported
	}

	buf := make([]byte, search)
	n, err := r.ReadAt(buf, size-search)
	if n != len(buf) {
		return nil, fmt.Errorf("read directory end: %w", err)
	}

	for i := len(buf) - directoryEndLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) != directoryEndSignature {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(buf[i+20:]))
		if i+directoryEndLen+commentLen > len(buf) {
			continue
		}
		return &directoryEnd{
			records: binary.LittleEndian.Uint16(buf[i+10:]),
			size:    binary.LittleEndian.Uint32(buf[i+12:]),
			offset:  binary.LittleEndian.Uint32(buf[i+16:]),
			comment: append([]byte{}, buf[i+directoryEndLen:i+directoryEndLen+commentLen]...),
			pos:     size - search + int64(i),
		}, nil
	}

	return nil, errAppendUnsupported
}

// appendable is true for plain archives: the central directory is followed
// by the end record, which ends the file, and nothing needs zip64.
func (d *directoryEnd) appendable(size int64) bool {
	if d.records >= math.MaxUint16-1 || d.size == math.MaxUint32 || d.offset == math.MaxUint32 {
		return false
	}
	if int64(d.offset)+int64(d.size) != d.pos {
		return false
	}
	return d.pos+directoryEndLen+int64(len(d.comment)) == size
}

// appendEntry adds a new entry to an existing archive in place: the new local
// entry overwrites the old central directory, which is written again after it
// followed by the new directory record and a new end record. If writing fails
// the original tail is restored.
func appendEntry(filename, name string, data []byte) error {

	f, err := os.OpenFile(filename, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open archive for append: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	size := info.Size()

	end, err := readDirectoryEnd(f, size)
	if err != nil {
		return err
	}
	if !end.appendable(size) {
		return errAppendUnsupported
	}

	tail := make([]byte, size-int64(end.offset))
	_, err = f.ReadAt(tail, int64(end.offset))
	if err != nil {
		return fmt.Errorf("read central directory: %w", err)
	}
	directory := tail[:end.size]

	// Encode the new entry as if it started where the old directory starts
	fresh := &bytes.Buffer{}
	w := zip.NewWriter(fresh)
	w.SetOffset(int64(end.offset))
	err = writeEntry(w, name, data)
	if err != nil {
		return err
	}
	err = w.Close()
	if err != nil {
		return fmt.Errorf("close zip writer: %w", err)
	}

	freshEnd, err := readDirectoryEnd(bytes.NewReader(fresh.Bytes()), int64(fresh.Len()))
	if err != nil {
		return err
	}
	if freshEnd.records != 1 || freshEnd.offset == math.MaxUint32 || freshEnd.size == math.MaxUint32 {
		return errAppendUnsupported
	}
	localLen := int64(freshEnd.offset) - int64(end.offset)
	local := fresh.Bytes()[:localLen]
	record := fresh.Bytes()[localLen : localLen+int64(freshEnd.size)]

	newEnd := &directoryEnd{
		records: end.records + 1,
		size:    end.size + freshEnd.size,
		offset:  end.offset + uint32(localLen),
		comment: end.comment,
	}

	out := make([]byte, 0, len(local)+len(directory)+len(record)+directoryEndLen+len(end.comment))
	out = append(out, local...)
	out = append(out, directory...)
	out = append(out, record...)
	out = append(out, newEnd.bytes()...)

	if int64(end.offset)+int64(len(out)) >= math.MaxUint32 {
		return errAppendUnsupported
	}

	_, err = writeAt(f, out, int64(end.offset))
	if err == nil {
		err = f.Sync()
	}
	if err != nil {
		// Put the original directory back
		_, errRestore := f.WriteAt(tail, int64(end.offset))
		if errRestore == nil {
			errRestore = f.Truncate(size)
		}
		if errRestore != nil {
			return fmt.Errorf("append entry '%s': %w (restore: %s)", name, err, errRestore.Error())
		}
		return fmt.Errorf("append entry '%s': %w", name, err)
	}

	return nil
}
