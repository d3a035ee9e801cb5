package service

import (
	"context"
	"fmt"
	"io"

	"github.com/fulldump/annotationstore/archive"
)

var ErrorDocumentNotFound = fmt.Errorf("document %w", archive.ErrNotFound)

type Document struct {
	Filename       string `json:"filename"`
	AnnotatedPages []int  `json:"annotated_pages"`
}

type Servicer interface {
	ListDocuments() ([]string, error)
	GetDocument(ctx context.Context, name string) (*Document, error)

	LoadAnnotation(ctx context.Context, document string, page int) (any, error)
	SaveAnnotation(ctx context.Context, document string, page int, content any) error

	ExportArchive(ctx context.Context, document string, w io.Writer) (bool, error)
	ImportArchive(ctx context.Context, document string, r io.Reader) error

	Backup(ctx context.Context, w io.Writer) (int, error)
	Restore(ctx context.Context, r io.ReaderAt, size int64) (int, error)
}
