package apidirectories

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxRestoreSize bounds the bundle accepted by restore, it is held in memory
var MaxRestoreSize int64 = 1 << 30

func backupAll(ctx context.Context, w http.ResponseWriter) error {

	s := GetServicer(ctx)

	filename := fmt.Sprintf("annotations-%s.zip", time.Now().UTC().Format("20060102-150405"))
	_, err := s.Backup(ctx, newAttachment(w, "application/zip", filename))
	return err
}

type RestoreResponse struct {
	Archives int `json:"archives"`
}

func restoreAll(ctx context.Context, r *http.Request) (*RestoreResponse, error) {

	s := GetServicer(ctx)

	data, err := io.ReadAll(io.LimitReader(r.Body, MaxRestoreSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read bundle: %s", ErrBadRequest, err.Error())
	}
	if int64(len(data)) > MaxRestoreSize {
		return nil, fmt.Errorf("%w: bundle larger than %d bytes", ErrBadRequest, MaxRestoreSize)
	}

	n, err := s.Restore(ctx, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	return &RestoreResponse{Archives: n}, nil
}
