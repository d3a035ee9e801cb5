package apidirectories

import (
	"errors"
	"fmt"

	"github.com/fulldump/annotationstore/archive"
)

var (
	ErrBadRequest     = errors.New("bad request")
	ErrNotImplemented = errors.New("not implemented")

	// ErrViewNotFound is returned for views that are not a number
	ErrViewNotFound = fmt.Errorf("view %w", archive.ErrNotFound)
)
