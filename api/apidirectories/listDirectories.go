package apidirectories

import (
	"context"
)

type DirectoriesResponse struct {
	Directories map[string]struct{} `json:"directories"`
}

func listDirectories(ctx context.Context) (*DirectoriesResponse, error) {

	s := GetServicer(ctx)

	documents, err := s.ListDocuments()
	if err != nil {
		return nil, err
	}

	result := &DirectoriesResponse{
		Directories: make(map[string]struct{}, len(documents)),
	}
	for _, document := range documents {
		result.Directories[document] = struct{}{}
	}

	return result, nil
}
