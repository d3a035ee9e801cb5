package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/fulldump/box"
	"github.com/klauspost/compress/gzip"
)

// Compression gzips responses for clients accepting it, except zip downloads
// which are compressed already.
func Compression(next box.H) box.H {
	return func(ctx context.Context) {
		r := box.GetRequest(ctx)
		c := box.GetBoxContext(ctx)

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") || servesZip(r) {
			next(ctx)
			return
		}

		c.Response.Header().Set("Content-Encoding", "gzip")
		c.Response.Header().Add("Vary", "Accept-Encoding")
		gz := gzip.NewWriter(c.Response)
		defer gz.Close()
		c.Response = gzipResponseWriter{Writer: gz, ResponseWriter: c.Response}
		next(ctx)
	}
}

func servesZip(r *http.Request) bool {
	path := r.URL.Path
	return strings.HasSuffix(path, "/download_directory") || path == "/backup"
}

type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}
