package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fulldump/annotationstore/archive"
	"github.com/fulldump/annotationstore/database"
)

type Service struct {
	db *database.Database
}

func NewService(db *database.Database) *Service {
	return &Service{
		db: db,
	}
}

// ListDocuments rescans the documents directory, documents come and go
// without the service being told.
func (s *Service) ListDocuments() ([]string, error) {
	return s.db.Refresh()
}

func (s *Service) GetDocument(ctx context.Context, name string) (*Document, error) {

	exists, err := s.db.DocumentExists(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrorDocumentNotFound, name)
	}

	pages, err := s.db.Store.Pages(ctx, name)
	if errors.Is(err, archive.ErrArchiveNotFound) {
		pages = []int{}
	} else if err != nil {
		return nil, err
	}

	return &Document{
		Filename:       archive.Stem(name) + "." + archive.DocumentExtension,
		AnnotatedPages: pages,
	}, nil
}

func (s *Service) LoadAnnotation(ctx context.Context, document string, page int) (any, error) {
	return s.db.Store.Load(ctx, document, page)
}

func (s *Service) SaveAnnotation(ctx context.Context, document string, page int, content any) error {
	return s.db.Store.Save(ctx, document, page, content)
}

func (s *Service) ExportArchive(ctx context.Context, document string, w io.Writer) (bool, error) {
	return s.db.Bulk.Export(ctx, document, w)
}

func (s *Service) ImportArchive(ctx context.Context, document string, r io.Reader) error {
	return s.db.Bulk.Import(ctx, document, r)
}

func (s *Service) Backup(ctx context.Context, w io.Writer) (int, error) {
	return s.db.Bulk.Backup(ctx, w)
}

func (s *Service) Restore(ctx context.Context, r io.ReaderAt, size int64) (int, error) {
	return s.db.Bulk.Restore(ctx, r, size)
}
