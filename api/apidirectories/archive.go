package apidirectories

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/annotationstore/archive"
)

func downloadDirectory(ctx context.Context, w http.ResponseWriter) error {

	s := GetServicer(ctx)

	document := box.GetUrlParameter(ctx, "document")

	a := newAttachment(w, "application/zip", archive.Stem(document)+"."+archive.ArchiveExtension)
	found, err := s.ExportArchive(ctx, document, a)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no annotations for '%s'", archive.ErrArchiveNotFound, document)
	}
	a.start()

	return nil
}

func replaceDirectory(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	s := GetServicer(ctx)

	document := box.GetUrlParameter(ctx, "document")

	err := s.ImportArchive(ctx, document, r.Body)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err = w.Write([]byte(contentSaved))
	return err
}
