package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/annotationstore/api/apidirectories"
	"github.com/fulldump/annotationstore/archive"
	"github.com/fulldump/annotationstore/database"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("temporary unavailable")
)

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

func (p PrettyError) MarshalTo(w io.Writer) error {
	return json.NewEncoder(w).Encode(p)
}

func InterceptorUnavailable(db *database.Database) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {

			status := db.GetStatus()
			if status != database.StatusOperating {
				box.SetError(ctx, fmt.Errorf("%w: %s", ErrUnavailable, status))
				return
			}
			next(ctx)
		}
	}
}

// classify returns the http status and description of an error
func classify(ctx context.Context, err error) (int, string) {

	var syntaxError *json.SyntaxError

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden, "Invalid request token."
	case errors.Is(err, box.ErrResourceNotFound):
		return http.StatusNotFound, fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String())
	case errors.Is(err, box.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method)
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "The server is starting or stopping, retry later."
	case errors.Is(err, archive.ErrLockTimeout):
		return http.StatusServiceUnavailable, "The document is busy, retry later."
	case errors.Is(err, archive.ErrInvalidName):
		return http.StatusBadRequest, "Invalid document name."
	case errors.Is(err, archive.ErrInvalidPage):
		return http.StatusBadRequest, fmt.Sprintf("View must be between %d and %d.", archive.MinPage, archive.MaxPage)
	case errors.Is(err, archive.ErrInvalidRecord):
		return http.StatusBadRequest, "Content must be a JSON object or array."
	case errors.Is(err, apidirectories.ErrBadRequest):
		return http.StatusBadRequest, "Bad request."
	case errors.As(err, &syntaxError):
		return http.StatusBadRequest, "Malformed JSON"
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "Not found."
	case errors.Is(err, apidirectories.ErrNotImplemented):
		return http.StatusNotImplemented, "Not implemented."
	case errors.Is(err, archive.ErrMalformedEntry):
		return http.StatusInternalServerError, "Stored annotation is corrupted."
	case errors.Is(err, archive.ErrSave), errors.Is(err, archive.ErrWrite):
		return http.StatusInternalServerError, "Error saving the content."
	}

	return http.StatusInternalServerError, "Unexpected error"
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		status, description := classify(ctx, err)
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		PrettyError{
			Message:     err.Error(),
			Description: description,
		}.MarshalTo(w)
	}
}
