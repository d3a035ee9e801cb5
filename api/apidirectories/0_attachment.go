package apidirectories

import (
	"fmt"
	"net/http"
)

// attachment sets the download headers on the first write, so a handler can
// still fail with a regular error response before any byte is sent.
type attachment struct {
	w           http.ResponseWriter
	contentType string
	filename    string
	started     bool
}

func newAttachment(w http.ResponseWriter, contentType, filename string) *attachment {
	return &attachment{
		w:           w,
		contentType: contentType,
		filename:    filename,
	}
}

func (a *attachment) start() {
	if a.started {
		return
	}
	a.started = true
	h := a.w.Header()
	h.Set("Content-Type", a.contentType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.filename))
}

func (a *attachment) Write(p []byte) (int, error) {
	a.start()
	return a.w.Write(p)
}
