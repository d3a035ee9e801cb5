package service

import (
	"archive/zip"
	"bytes"
	"net/http"
	"strings"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// AcceptanceDocument must exist in the documents directory before running
// Acceptance.
const AcceptanceDocument = "Didot_1851a.pdf"

func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request) {

	a.Alternative("List directories", func(a *biff.A) {
		resp := apiRequest("GET", "/directories").Do()
		Save(resp, "List directories", `
			Lists the source documents available for annotation.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"directories": JSON{
				AcceptanceDocument: JSON{},
			},
		})
	})

	a.Alternative("Retrieve directory", func(a *biff.A) {
		resp := apiRequest("GET", "/directories/"+AcceptanceDocument).Do()
		Save(resp, "Retrieve directory", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"filename":        AcceptanceDocument,
			"annotated_pages": []interface{}{},
		})
	})

	a.Alternative("Retrieve directory - not found", func(a *biff.A) {
		resp := apiRequest("GET", "/directories/unknown.pdf").Do()
		Save(resp, "Retrieve directory - not found", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})

	a.Alternative("Load annotation - not found", func(a *biff.A) {
		resp := apiRequest("GET", "/directories/"+AcceptanceDocument+"/1/annotation").Do()
		Save(resp, "Load annotation - not found", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})

	a.Alternative("Save annotation", func(a *biff.A) {
		content := []interface{}{
			JSON{"type": "ENTRY", "text": "Dupont, rue de Rivoli 12"},
			JSON{"type": "TITLE_LEVEL_1", "text": "Libraires", "origin": "human", "checked": true},
			JSON{"type": "GRAPHIC"},
		}
		resp := apiRequest("PUT", "/directories/"+AcceptanceDocument+"/1/annotation").
			WithBodyJson(JSON{"content": content}).Do()
		Save(resp, "Save annotation", `
			Stores the annotation of one view (page) of a document. The body
			must be ´{"content": ...}´ where content is a JSON object or array.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqual(resp.BodyString(), "Content saved on the server")

		a.Alternative("Load annotation", func(a *biff.A) {
			resp := apiRequest("GET", "/directories/"+AcceptanceDocument+"/1/annotation").Do()
			Save(resp, "Load annotation", `
				Elements of type ENTRY, TITLE_LEVEL_1 and TITLE_LEVEL_2 get default
				´origin´ and ´checked´ fields when they are missing.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"content": []interface{}{
					JSON{"type": "ENTRY", "text": "Dupont, rue de Rivoli 12", "origin": "computer", "checked": false},
					JSON{"type": "TITLE_LEVEL_1", "text": "Libraires", "origin": "human", "checked": true},
					JSON{"type": "GRAPHIC"},
				},
			})
		})

		a.Alternative("Load annotation - download", func(a *biff.A) {
			resp := apiRequest("GET", "/directories/"+AcceptanceDocument+"/1/annotation").
				WithQuery("download", "1").Do()
			Save(resp, "Load annotation - download", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqual(resp.Header.Get("Content-Type"), "text/plain; charset=utf-8")
			biff.AssertEqual(resp.Header.Get("Content-Disposition"), `attachment; filename="Didot_1851a-0001.json"`)
			biff.AssertEqualJson(resp.BodyJson(), []interface{}{
				JSON{"type": "ENTRY", "text": "Dupont, rue de Rivoli 12", "origin": "computer", "checked": false},
				JSON{"type": "TITLE_LEVEL_1", "text": "Libraires", "origin": "human", "checked": true},
				JSON{"type": "GRAPHIC"},
			})
		})

		a.Alternative("Load annotation - invalid download", func(a *biff.A) {
			resp := apiRequest("GET", "/directories/"+AcceptanceDocument+"/1/annotation").
				WithQuery("download", "yes").Do()
			Save(resp, "Load annotation - invalid download", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Load annotation - missing page", func(a *biff.A) {
			resp := apiRequest("GET", "/directories/"+AcceptanceDocument+"/3/annotation").Do()

			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		})

		a.Alternative("Save annotation - large integers", func(a *biff.A) {
			resp := apiRequest("PUT", "/directories/"+AcceptanceDocument+"/2/annotation").
				WithBodyString(`{"content": [{"id": 12345678901234567891, "type": "ENTRY"}]}`).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = apiRequest("GET", "/directories/"+AcceptanceDocument+"/2/annotation").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertTrue(strings.Contains(resp.BodyString(), `"id":12345678901234567891`))
		})

		a.Alternative("Replace annotation", func(a *biff.A) {
			resp := apiRequest("PUT", "/directories/"+AcceptanceDocument+"/1/annotation").
				WithBodyJson(JSON{"content": JSON{"a": 1, "c": "café🚀"}}).Do()
			Save(resp, "Replace annotation", ``)
			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = apiRequest("GET", "/directories/"+AcceptanceDocument+"/1/annotation").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"content": JSON{"a": 1, "c": "café🚀"},
			})
		})

		a.Alternative("Retrieve directory with pages", func(a *biff.A) {
			resp := apiRequest("PUT", "/directories/"+AcceptanceDocument+"/10/annotation").
				WithBodyJson(JSON{"content": JSON{}}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = apiRequest("GET", "/directories/"+AcceptanceDocument).Do()
			Save(resp, "Retrieve directory with pages", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"filename":        AcceptanceDocument,
				"annotated_pages": []interface{}{1, 10},
			})
		})

		a.Alternative("Download directory", func(a *biff.A) {
			resp := apiRequest("GET", "/directories/"+AcceptanceDocument+"/download_directory").Do()
			Save(resp, "Download directory", `
				Downloads the raw zip archive holding every annotation of the document.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqual(resp.Header.Get("Content-Type"), "application/zip")
			biff.AssertEqual(resp.Header.Get("Content-Disposition"), `attachment; filename="Didot_1851a.zip"`)

			data := resp.BodyBytes()
			r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
			biff.AssertNil(err)
			biff.AssertEqual(len(r.File), 1)
			biff.AssertEqual(r.File[0].Name, "0001.json")

			a.Alternative("Replace directory", func(a *biff.A) {
				resp := apiRequest("PUT", "/directories/Bottin_1860.pdf/replace_directory").
					WithBodyString(string(data)).Do()
				Save(resp, "Replace directory", `
					Replaces the whole annotation archive of a document with the request body.
				`)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqual(resp.BodyString(), "Content saved on the server")

				resp = apiRequest("GET", "/directories/Bottin_1860.pdf/download_directory").Do()
				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqual(resp.BodyBytes(), data)
			})
		})

		a.Alternative("Backup and restore", func(a *biff.A) {
			resp := apiRequest("GET", "/backup").Do()
			Save(resp, "Backup", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			bundle := resp.BodyBytes()

			resp = apiRequest("PUT", "/directories/"+AcceptanceDocument+"/1/annotation").
				WithBodyJson(JSON{"content": JSON{"lost": true}}).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = apiRequest("PUT", "/restore").WithBodyString(string(bundle)).Do()
			Save(resp, "Restore", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{"archives": 1})

			resp = apiRequest("GET", "/directories/"+AcceptanceDocument+"/1/annotation").Do()
			biff.AssertTrue(bytes.Contains(resp.BodyBytes(), []byte("Dupont")))
		})
	})

	a.Alternative("Save annotation - invalid view", func(a *biff.A) {
		resp := apiRequest("PUT", "/directories/"+AcceptanceDocument+"/0/annotation").
			WithBodyJson(JSON{"content": JSON{}}).Do()
		Save(resp, "Save annotation - invalid view", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Save annotation - not a number", func(a *biff.A) {
		resp := apiRequest("PUT", "/directories/"+AcceptanceDocument+"/first/annotation").
			WithBodyJson(JSON{"content": JSON{}}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})

	a.Alternative("Save annotation - malformed body", func(a *biff.A) {
		resp := apiRequest("PUT", "/directories/"+AcceptanceDocument+"/1/annotation").
			WithBodyString(`{"content": [`).Do()
		Save(resp, "Save annotation - malformed body", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Save annotation - scalar content", func(a *biff.A) {
		resp := apiRequest("PUT", "/directories/"+AcceptanceDocument+"/1/annotation").
			WithBodyJson(JSON{"content": 42}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
	})

	a.Alternative("Download directory - not found", func(a *biff.A) {
		resp := apiRequest("GET", "/directories/unknown/download_directory").Do()
		Save(resp, "Download directory - not found", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})

	a.Alternative("Image", func(a *biff.A) {
		resp := apiRequest("GET", "/directories/"+AcceptanceDocument+"/1/image").Do()
		Save(resp, "Image", `
			Page images are served by a separate service.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusNotImplemented)
	})
}
