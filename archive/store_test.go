package archive

import (
	stdzip "archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	. "github.com/fulldump/biff"
)

// Archives are inspected with the standard library reader, they must stay
// readable by other zip implementations.
func entryNames(filename string) []string {
	r, err := stdzip.OpenReader(filename)
	if err != nil {
		panic(err)
	}
	defer r.Close()

	names := []string{}
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func entryBytes(filename, name string) []byte {
	r, err := stdzip.OpenReader(filename)
	if err != nil {
		panic(err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name == name {
			rc, _ := f.Open()
			defer rc.Close()
			data, _ := io.ReadAll(rc)
			return data
		}
	}
	return nil
}

func newTestStore(root string) *Store {
	return NewStore(&Config{
		Root:        root,
		LockTimeout: 5 * time.Second,
	})
}

func pageNumber(page int) Number {
	return Number(strconv.Itoa(page))
}

var sample = map[string]any{"a": Number("1"), "b": Number("1.5"), "c": "éàœß🚀"}

func TestSaveLoad_Roundtrip(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		err := s.Save(ctx, "testdoc.pdf", 1, sample)
		AssertNil(err)

		record, err := s.Load(ctx, "testdoc.pdf", 1)
		AssertNil(err)
		AssertEqual(record, sample)

		AssertEqual(entryNames(filepath.Join(root, "testdoc.zip")), []string{"0001.json"})
	})
}

func TestSave_Twice(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		for i := 0; i < 2; i++ {
			err := s.Save(ctx, "testdoc.pdf", 1, sample)
			AssertNil(err)

			record, err := s.Load(ctx, "testdoc.pdf", 1)
			AssertNil(err)
			AssertEqual(record, sample)
		}

		AssertEqual(entryNames(filepath.Join(root, "testdoc.zip")), []string{"0001.json"})
	})
}

func TestSave_IndependentPages(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()
		filename := filepath.Join(root, "testdoc.zip")

		AssertNil(s.Save(ctx, "testdoc.pdf", 1, map[string]any{}))
		page1 := entryBytes(filename, "0001.json")

		AssertNil(s.Save(ctx, "testdoc.pdf", 2, sample))
		AssertEqual(entryBytes(filename, "0001.json"), page1)

		record, err := s.Load(ctx, "testdoc.pdf", 2)
		AssertNil(err)
		AssertEqual(record, sample)

		updated := map[string]any{"a": Number("1"), "b": Number("1.5"), "c": "updated"}
		AssertNil(s.Save(ctx, "testdoc.pdf", 2, updated))
		AssertEqual(entryBytes(filename, "0001.json"), page1)

		record, err = s.Load(ctx, "testdoc.pdf", 2)
		AssertNil(err)
		AssertEqual(record, updated)

		record, err = s.Load(ctx, "testdoc.pdf", 1)
		AssertNil(err)
		AssertEqual(record, map[string]any{})

		AssertEqual(entryNames(filename), []string{"0001.json", "0002.json"})
	})
}

func TestSave_ManyAppends(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		for page := 1; page <= 50; page++ {
			AssertNil(s.Save(ctx, "big", page, []any{map[string]any{"page": pageNumber(page)}}))
		}

		for page := 1; page <= 50; page++ {
			record, err := s.Load(ctx, "big", page)
			AssertNil(err)
			AssertEqual(record, []any{map[string]any{"page": pageNumber(page)}})
		}

		pages, err := s.Pages(ctx, "big")
		AssertNil(err)
		AssertEqual(len(pages), 50)
		AssertEqual(pages[0], 1)
		AssertEqual(pages[49], 50)
	})
}

func TestLoad_NotFound(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		_, err := s.Load(ctx, "nonexistent.pdf", 1)
		AssertTrue(errors.Is(err, ErrArchiveNotFound))
		AssertTrue(errors.Is(err, ErrNotFound))

		// No lock file is created for unknown documents
		_, err = os.Stat(filepath.Join(root, "nonexistent.zip"+LockSuffix))
		AssertTrue(os.IsNotExist(err))

		AssertNil(s.Save(ctx, "testdoc.pdf", 1, sample))

		_, err = s.Load(ctx, "testdoc.pdf", 999)
		AssertTrue(errors.Is(err, ErrEntryNotFound))
		AssertTrue(errors.Is(err, ErrNotFound))
	})
}

func TestLoad_InvalidArguments(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		_, err := s.Load(ctx, "", 1)
		AssertTrue(errors.Is(err, ErrInvalidName))

		_, err = s.Load(ctx, "../escape.pdf", 1)
		AssertTrue(errors.Is(err, ErrInvalidName))

		_, err = s.Load(ctx, "testdoc.pdf", 0)
		AssertTrue(errors.Is(err, ErrInvalidPage))

		err = s.Save(ctx, "testdoc.pdf", 10000, sample)
		AssertTrue(errors.Is(err, ErrInvalidPage))

		err = s.Save(ctx, "testdoc.pdf", 1, "just a string")
		AssertTrue(errors.Is(err, ErrInvalidRecord))

		exists, err := s.Exists("testdoc.pdf")
		AssertNil(err)
		AssertFalse(exists)
	})
}

func TestLoad_MalformedEntry(t *testing.T) {
	Environment(func(root string) {

		filename := filepath.Join(root, "broken.zip")
		buf := &bytes.Buffer{}
		w := stdzip.NewWriter(buf)
		f, _ := w.Create("0001.json")
		f.Write([]byte(`{"unterminated": `))
		w.Close()
		AssertNil(os.WriteFile(filename, buf.Bytes(), 0666))

		s := newTestStore(root)
		_, err := s.Load(context.Background(), "broken.pdf", 1)
		AssertTrue(errors.Is(err, ErrMalformedEntry))
	})
}

func TestLoad_Normalization(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()
		filename := filepath.Join(root, "didot.zip")

		AssertNil(s.Save(ctx, "didot.pdf", 4, []any{
			map[string]any{"type": "ENTRY", "text": "Martin, rue du Bac"},
		}))

		record, err := s.Load(ctx, "didot.pdf", 4)
		AssertNil(err)
		AssertEqual(record, []any{
			map[string]any{"type": "ENTRY", "text": "Martin, rue du Bac", "origin": "computer", "checked": false},
		})

		// Defaults are never written back
		AssertEqual(string(entryBytes(filename, "0004.json")), "[\n  {\n    \"text\": \"Martin, rue du Bac\",\n    \"type\": \"ENTRY\"\n  }\n]")
	})
}

func TestSave_NotAFile(t *testing.T) {
	Environment(func(root string) {

		AssertNil(os.Mkdir(filepath.Join(root, "folder.zip"), 0755))

		s := newTestStore(root)
		err := s.Save(context.Background(), "folder.pdf", 1, sample)
		AssertTrue(errors.Is(err, ErrSave))
	})
}

func TestSave_NotAZip(t *testing.T) {
	Environment(func(root string) {

		filename := filepath.Join(root, "garbage.zip")
		garbage := []byte("this is not a zip file")
		AssertNil(os.WriteFile(filename, garbage, 0666))

		s := newTestStore(root)
		err := s.Save(context.Background(), "garbage.pdf", 1, sample)
		AssertTrue(errors.Is(err, ErrSave))

		data, _ := os.ReadFile(filename)
		AssertEqual(data, garbage)
	})
}

func TestSave_AppendWithComment(t *testing.T) {
	Environment(func(root string) {

		// Archives produced elsewhere may carry a comment
		filename := filepath.Join(root, "commented.zip")
		buf := &bytes.Buffer{}
		w := stdzip.NewWriter(buf)
		f, _ := w.Create("0001.json")
		f.Write([]byte(`{"page": 1}`))
		w.SetComment("exported by hand")
		w.Close()
		AssertNil(os.WriteFile(filename, buf.Bytes(), 0666))

		s := newTestStore(root)
		ctx := context.Background()
		AssertNil(s.Save(ctx, "commented", 2, map[string]any{"page": Number("2")}))

		AssertEqual(entryNames(filename), []string{"0001.json", "0002.json"})

		record, err := s.Load(ctx, "commented", 1)
		AssertNil(err)
		AssertEqual(record, map[string]any{"page": Number("1")})

		r, err := stdzip.OpenReader(filename)
		AssertNil(err)
		AssertEqual(r.Comment, "exported by hand")
		r.Close()
	})
}

func TestSave_AppendWithPrefix(t *testing.T) {
	Environment(func(root string) {

		// Self-extracting style archive, offsets count the prefix
		filename := filepath.Join(root, "prefixed.zip")
		buf := &bytes.Buffer{}
		buf.WriteString("#!/bin/sh\nexit 0\n")
		w := stdzip.NewWriter(buf)
		w.SetOffset(int64(buf.Len()))
		f, _ := w.Create("0001.json")
		f.Write([]byte(`{"page": 1}`))
		w.Close()
		AssertNil(os.WriteFile(filename, buf.Bytes(), 0666))

		s := newTestStore(root)
		ctx := context.Background()
		AssertNil(s.Save(ctx, "prefixed", 3, map[string]any{"page": Number("3")}))

		AssertEqual(entryNames(filename), []string{"0001.json", "0003.json"})
		AssertEqual(string(entryBytes(filename, "0001.json")), `{"page": 1}`)
	})
}

func TestSave_AppendFallsBackToRewrite(t *testing.T) {
	Environment(func(root string) {

		// Bytes after the end record cannot be preserved by an in place append
		filename := filepath.Join(root, "trailing.zip")
		buf := &bytes.Buffer{}
		w := stdzip.NewWriter(buf)
		f, _ := w.Create("0001.json")
		f.Write([]byte(`{"page": 1}`))
		w.Close()
		buf.WriteString("TRAILING")
		AssertNil(os.WriteFile(filename, buf.Bytes(), 0666))

		s := newTestStore(root)
		ctx := context.Background()
		AssertNil(s.Save(ctx, "trailing", 3, map[string]any{"page": Number("3")}))

		AssertEqual(entryNames(filename), []string{"0001.json", "0003.json"})
		AssertEqual(string(entryBytes(filename, "0001.json")), `{"page": 1}`)

		data, _ := os.ReadFile(filename)
		AssertFalse(bytes.HasSuffix(data, []byte("TRAILING")))
	})
}

func TestExportImport(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		for _, page := range []int{1, 2, 10} {
			AssertNil(s.Save(ctx, "testdoc1.pdf", page, sample))
		}

		data, found, err := s.ExportRaw(ctx, "testdoc1.pdf")
		AssertNil(err)
		AssertTrue(found)

		AssertNil(s.ImportRaw(ctx, "fresh", data))

		source := filepath.Join(root, "testdoc1.zip")
		target := filepath.Join(root, "fresh.zip")
		AssertEqual(entryNames(target), []string{"0001.json", "0002.json", "0010.json"})
		for _, name := range entryNames(source) {
			AssertEqual(entryBytes(target, name), entryBytes(source, name))
		}

		// Importing again discards pages saved in between
		AssertNil(s.Save(ctx, "fresh", 20, sample))
		AssertNil(s.ImportRaw(ctx, "fresh", data))
		AssertEqual(entryNames(target), []string{"0001.json", "0002.json", "0010.json"})

		pages, err := s.Pages(ctx, "fresh")
		AssertNil(err)
		AssertEqual(pages, []int{1, 2, 10})
	})
}

func TestExport_NotFound(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)

		data, found, err := s.ExportRaw(context.Background(), "unknown")
		AssertNil(err)
		AssertFalse(found)
		AssertNil(data)
	})
}

func TestImport_NoValidation(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		AssertNil(s.ImportRaw(ctx, "opaque", []byte("not a zip")))

		data, found, err := s.ExportRaw(ctx, "opaque")
		AssertNil(err)
		AssertTrue(found)
		AssertEqual(string(data), "not a zip")

		_, err = s.Load(ctx, "opaque", 1)
		AssertTrue(errors.Is(err, ErrMalformedEntry))
	})
}

func TestSave_ConcurrentWriters(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		AssertNil(s.Save(ctx, "shared", 1, map[string]any{"writer": "initial"}))
		AssertNil(s.Save(ctx, "shared", 2, map[string]any{"untouched": true}))

		n := 20
		wg := &sync.WaitGroup{}
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.Save(ctx, "shared", 1, map[string]any{"writer": fmt.Sprintf("w%d", i)})
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			AssertNil(err)
		}

		AssertEqual(entryNames(filepath.Join(root, "shared.zip")), []string{"0001.json", "0002.json"})

		record, err := s.Load(ctx, "shared", 1)
		AssertNil(err)
		writer := record.(map[string]any)["writer"].(string)
		AssertTrue(writer != "initial")

		record, err = s.Load(ctx, "shared", 2)
		AssertNil(err)
		AssertEqual(record, map[string]any{"untouched": true})
	})
}

func TestSave_ConcurrentPages(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		n := 30
		wg := &sync.WaitGroup{}
		for i := 1; i <= n; i++ {
			wg.Add(1)
			go func(page int) {
				defer wg.Done()
				s.Save(ctx, "pages", page, map[string]any{"page": pageNumber(page)})
			}(i)
		}
		wg.Wait()

		pages, err := s.Pages(ctx, "pages")
		AssertNil(err)
		AssertEqual(len(pages), n)
		for _, page := range pages {
			record, err := s.Load(ctx, "pages", page)
			AssertNil(err)
			AssertEqual(record, map[string]any{"page": pageNumber(page)})
		}
	})
}

func TestLock_Timeout(t *testing.T) {
	Environment(func(root string) {

		s := NewStore(&Config{
			Root:        root,
			LockTimeout: 50 * time.Millisecond,
		})
		ctx := context.Background()
		AssertNil(s.Save(ctx, "busy", 1, sample))

		filename, _ := s.Path("busy")
		release, err := s.locks.acquire(ctx, filename, 0)
		AssertNil(err)

		err = s.Save(ctx, "busy", 1, map[string]any{"lost": true})
		AssertTrue(errors.Is(err, ErrLockTimeout))

		_, err = s.Load(ctx, "busy", 1)
		AssertTrue(errors.Is(err, ErrLockTimeout))

		release()

		record, err := s.Load(ctx, "busy", 1)
		AssertNil(err)
		AssertEqual(record, sample)
	})
}

func TestLock_OtherProcess(t *testing.T) {
	Environment(func(root string) {

		s := NewStore(&Config{
			Root:        root,
			LockTimeout: 50 * time.Millisecond,
		})
		ctx := context.Background()
		AssertNil(s.Save(ctx, "shared", 1, sample))

		// A lock held through another open file description behaves like a
		// lock held by another process
		filename, _ := s.Path("shared")
		f, err := lockFile(ctx, filename+LockSuffix)
		AssertNil(err)

		err = s.Save(ctx, "shared", 1, map[string]any{"lost": true})
		AssertTrue(errors.Is(err, ErrLockTimeout))

		// Other documents are not affected
		AssertNil(s.Save(ctx, "other", 1, sample))

		AssertNil(unlockFile(f))
		AssertNil(s.Save(ctx, "shared", 1, map[string]any{"won": true}))
	})
}

func TestLock_Released(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		// Failures release the lock too
		AssertNil(os.Mkdir(filepath.Join(root, "folder.zip"), 0755))
		for i := 0; i < 3; i++ {
			err := s.Save(ctx, "folder", 1, sample)
			AssertTrue(errors.Is(err, ErrSave))
		}

		AssertEqual(len(s.locks.paths), 0)
	})
}

func TestSaveLoad_BigInteger(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()

		record, err := DecodeJSON([]byte(`[{"id": 12345678901234567891, "type": "ENTRY"}]`))
		AssertNil(err)
		AssertNil(s.Save(ctx, "numbers", 1, record))

		loaded, err := s.Load(ctx, "numbers", 1)
		AssertNil(err)
		AssertEqual(loaded.([]any)[0].(map[string]any)["id"], Number("12345678901234567891"))
	})
}

func noTemporaryFiles(root string) bool {
	entries, _ := os.ReadDir(root)
	for _, entry := range entries {
		if orphanPattern.MatchString(entry.Name()) {
			return false
		}
	}
	return true
}

func TestSave_RewriteFailureKeepsArchive(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()
		filename := filepath.Join(root, "broken.zip")

		AssertNil(s.Save(ctx, "broken", 1, sample))
		AssertNil(s.Save(ctx, "broken", 2, sample))

		// The central directory is fine but the first local header is not,
		// so copying that entry into the new archive fails
		original, err := os.ReadFile(filename)
		AssertNil(err)
		copy(original, "XXXX")
		AssertNil(os.WriteFile(filename, original, 0666))

		err = s.Save(ctx, "broken", 2, map[string]any{"lost": true})
		AssertTrue(errors.Is(err, ErrSave))

		data, _ := os.ReadFile(filename)
		AssertEqual(data, original)
		AssertEqual(entryNames(filename), []string{"0001.json", "0002.json"})
		AssertTrue(noTemporaryFiles(root))
	})
}

func TestSave_AppendFailureRestoresArchive(t *testing.T) {
	Environment(func(root string) {

		s := newTestStore(root)
		ctx := context.Background()
		filename := filepath.Join(root, "diskfull.zip")

		AssertNil(s.Save(ctx, "diskfull", 1, sample))
		original, err := os.ReadFile(filename)
		AssertNil(err)

		// Half of the new tail reaches the disk, then the write fails
		defer func(w func(*os.File, []byte, int64) (int, error)) { writeAt = w }(writeAt)
		writeAt = func(f *os.File, b []byte, off int64) (int, error) {
			n, _ := f.WriteAt(b[:len(b)/2], off)
			return n, errors.New("no space left on device")
		}

		err = s.Save(ctx, "diskfull", 2, sample)
		AssertTrue(errors.Is(err, ErrSave))

		data, _ := os.ReadFile(filename)
		AssertEqual(data, original)
		AssertEqual(entryNames(filename), []string{"0001.json"})

		record, err := s.Load(ctx, "diskfull", 1)
		AssertNil(err)
		AssertEqual(record, sample)
	})
}

// stallReader blocks until release is closed, like an upload from a client
// that stopped sending.
type stallReader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	r       io.Reader
}

func newStallReader(data []byte) *stallReader {
	return &stallReader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		r:       bytes.NewReader(data),
	}
}

func (s *stallReader) Read(p []byte) (int, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.r.Read(p)
}

// stallWriter blocks until release is closed, like a client that stopped
// reading a download.
type stallWriter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	buf     bytes.Buffer
}

func newStallWriter() *stallWriter {
	return &stallWriter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *stallWriter) Write(p []byte) (int, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.buf.Write(p)
}

func TestImport_SlowUploadDoesNotHoldLock(t *testing.T) {
	Environment(func(root string) {

		s := NewStore(&Config{
			Root:        root,
			LockTimeout: 300 * time.Millisecond,
		})
		ctx := context.Background()

		AssertNil(s.Save(ctx, "slow", 1, sample))
		data, _, err := s.ExportRaw(ctx, "slow")
		AssertNil(err)

		upload := newStallReader(data)
		done := make(chan error, 1)
		go func() {
			done <- s.ImportFrom(ctx, "slow", upload)
		}()
		<-upload.started

		AssertNil(s.Save(ctx, "slow", 2, sample))
		record, err := s.Load(ctx, "slow", 2)
		AssertNil(err)
		AssertEqual(record, sample)

		close(upload.release)
		AssertNil(<-done)

		// The import wins, it was renamed last
		AssertEqual(entryNames(filepath.Join(root, "slow.zip")), []string{"0001.json"})
		AssertTrue(noTemporaryFiles(root))
	})
}

func TestExport_SlowDownloadDoesNotHoldLock(t *testing.T) {
	Environment(func(root string) {

		s := NewStore(&Config{
			Root:        root,
			LockTimeout: 300 * time.Millisecond,
		})
		ctx := context.Background()
		filename := filepath.Join(root, "slow.zip")

		AssertNil(s.Save(ctx, "slow", 1, sample))
		before, err := os.ReadFile(filename)
		AssertNil(err)

		download := newStallWriter()
		done := make(chan error, 1)
		go func() {
			found, err := s.ExportTo(ctx, "slow", download)
			if err == nil && !found {
				err = ErrArchiveNotFound
			}
			done <- err
		}()
		<-download.started

		record, err := s.Load(ctx, "slow", 1)
		AssertNil(err)
		AssertEqual(record, sample)
		AssertNil(s.Save(ctx, "slow", 2, sample))

		close(download.release)
		AssertNil(<-done)

		// The download is the archive as it was when the export started
		AssertEqual(download.buf.Bytes(), before)
	})
}
