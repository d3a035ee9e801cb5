package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Bulk treats archives as opaque blobs, for download/upload of a document's
// annotations and for backup/restore of the whole store.
type Bulk struct {
	store *Store
}

func NewBulk(store *Store) *Bulk {
	return &Bulk{store: store}
}

// Export writes the archive of document into w. Returns false if the document
// has no archive, which is not an error.
func (b *Bulk) Export(ctx context.Context, document string, w io.Writer) (bool, error) {
	return b.store.ExportTo(ctx, document, w)
}

// Import atomically replaces the archive of document, creating it if needed.
func (b *Bulk) Import(ctx context.Context, document string, r io.Reader) error {
	return b.store.ImportFrom(ctx, document, r)
}

// Archives lists the archive file names present in the store root.
func (b *Bulk) Archives() ([]string, error) {
	entries, err := os.ReadDir(b.store.root)
	if err != nil {
		return nil, fmt.Errorf("read store root: %w", err)
	}

	names := []string{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if Ext(entry.Name()) != "."+ArchiveExtension {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	return names, nil
}

// Backup writes a zip bundle holding every archive of the store, each one
// read under its document lock. Returns the number of archives written.
func (b *Bulk) Backup(ctx context.Context, w io.Writer) (int, error) {

	names, err := b.Archives()
	if err != nil {
		return 0, err
	}

	return b.backup(ctx, w, names)
}

// backup bundles the archives in names. Archives removed since they were
// listed are left out of the bundle.
func (b *Bulk) backup(ctx context.Context, w io.Writer, names []string) (int, error) {

	bundle := zip.NewWriter(w)
	n := 0
	for _, name := range names {
		data, found, err := b.store.ExportRaw(ctx, name)
		if err != nil {
			return n, fmt.Errorf("backup '%s': %w", name, err)
		}
		if !found {
			continue // removed since listed
		}

		entry, err := bundle.CreateHeader(&zip.FileHeader{
			Name:   name,
			Method: zip.Store, // archives are already compressed
		})
		if err != nil {
			return n, fmt.Errorf("create bundle entry '%s': %w", name, err)
		}
		_, err = entry.Write(data)
		if err != nil {
			return n, fmt.Errorf("write bundle entry '%s': %w", name, err)
		}
		n++
	}

	err := bundle.Close()
	if err != nil {
		return n, fmt.Errorf("close bundle: %w", err)
	}

	b.store.logger.Info("backup done", "archives", n)
	return n, nil
}

// Restore imports every archive of a bundle produced by Backup. Members not
// named `<stem>.zip` are skipped. Returns the number of archives imported.
func (b *Bulk) Restore(ctx context.Context, r io.ReaderAt, size int64) (int, error) {

	bundle, err := zip.NewReader(r, size)
	if err != nil {
		return 0, fmt.Errorf("%w: open bundle: %s", ErrWrite, err.Error())
	}

	n := 0
	for _, f := range bundle.File {
		if strings.ContainsAny(f.Name, "/\\") || Ext(f.Name) != "."+ArchiveExtension {
			b.store.logger.Warn("skip bundle member", "name", f.Name)
			continue
		}

		err := b.restoreOne(ctx, f)
		if err != nil {
			return n, err
		}
		n++
	}

	b.store.logger.Info("restore done", "archives", n)
	return n, nil
}

func (b *Bulk) restoreOne(ctx context.Context, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open bundle member '%s': %s", ErrWrite, f.Name, err.Error())
	}
	defer rc.Close()

	err = b.store.ImportFrom(ctx, f.Name, rc)
	if err != nil {
		return fmt.Errorf("restore '%s': %w", f.Name, err)
	}
	return nil
}
