package apidirectories

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/annotationstore/service"
)

func getDirectory(ctx context.Context) (*service.Document, error) {

	s := GetServicer(ctx)

	document := box.GetUrlParameter(ctx, "document")

	return s.GetDocument(ctx, document)
}
