package apidirectories

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fulldump/box"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/annotationstore/archive"
)

const contentSaved = "Content saved on the server"

type AnnotationBody struct {
	Content any `json:"content"`
}

func parseView(ctx context.Context) (int, error) {
	view := box.GetUrlParameter(ctx, "view")
	page, err := strconv.Atoi(view)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s'", ErrViewNotFound, view)
	}
	return page, nil
}

func parseDownload(r *http.Request) (bool, error) {
	switch download := r.URL.Query().Get("download"); download {
	case "", "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("%w: download can be only 0 or 1, got '%s'", ErrBadRequest, download)
	}
}

func getAnnotation(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	s := GetServicer(ctx)

	document := box.GetUrlParameter(ctx, "document")
	page, err := parseView(ctx)
	if err != nil {
		return err
	}
	download, err := parseDownload(r)
	if err != nil {
		return err
	}

	content, err := s.LoadAnnotation(ctx, document, page)
	if err != nil {
		return err
	}

	if download {
		data, err := json.Marshal(content,
			json.Deterministic(true),
			jsontext.WithIndent("  "),
		)
		if err != nil {
			return fmt.Errorf("encode annotation: %w", err)
		}
		filename := fmt.Sprintf("%s-%04d.json", archive.Stem(document), page)
		_, err = newAttachment(w, "text/plain; charset=utf-8", filename).Write(data)
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.MarshalWrite(w, &AnnotationBody{Content: content}, json.Deterministic(true))
}

func saveAnnotation(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	s := GetServicer(ctx)

	document := box.GetUrlParameter(ctx, "document")
	page, err := parseView(ctx)
	if err != nil {
		return err
	}

	// Any content type is accepted
	body := &struct {
		Content jsontext.Value `json:"content"`
	}{}
	err = json.UnmarshalRead(r.Body, body)
	if err != nil {
		return fmt.Errorf("%w: could not parse JSON payload: %s", ErrBadRequest, err.Error())
	}

	var content any
	if len(body.Content) > 0 {
		content, err = archive.DecodeJSON(body.Content)
		if err != nil {
			return fmt.Errorf("%w: could not parse JSON payload: %s", ErrBadRequest, err.Error())
		}
	}

	err = s.SaveAnnotation(ctx, document, page, content)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err = w.Write([]byte(contentSaved))
	return err
}

func getImage(ctx context.Context) error {
	return fmt.Errorf("%w: page images are served by the document service", ErrNotImplemented)
}
