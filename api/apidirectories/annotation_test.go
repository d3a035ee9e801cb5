package apidirectories

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/fulldump/biff"
)

func TestParseDownload(t *testing.T) {

	for query, expected := range map[string]bool{"": false, "?download=0": false, "?download=1": true} {
		download, err := parseDownload(httptest.NewRequest("GET", "/x"+query, nil))
		biff.AssertNil(err)
		biff.AssertEqual(download, expected)
	}

	_, err := parseDownload(httptest.NewRequest("GET", "/x?download=true", nil))
	biff.AssertTrue(errors.Is(err, ErrBadRequest))
}

func TestAttachment(t *testing.T) {

	biff.Alternative("Attachment", func(a *biff.A) {

		w := httptest.NewRecorder()
		at := newAttachment(w, "application/zip", "Didot_1851a.zip")

		a.Alternative("Headers are deferred", func(a *biff.A) {
			biff.AssertEqual(w.Header().Get("Content-Type"), "")
		})

		a.Alternative("First write sets headers", func(a *biff.A) {
			_, err := at.Write([]byte("PK"))
			biff.AssertNil(err)
			biff.AssertEqual(w.Header().Get("Content-Type"), "application/zip")
			biff.AssertEqual(w.Header().Get("Content-Disposition"), `attachment; filename="Didot_1851a.zip"`)
			biff.AssertEqual(w.Body.String(), "PK")
		})
	})
}
