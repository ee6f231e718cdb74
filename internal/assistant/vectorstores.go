package assistant

import (
	"context"
	"fmt"
	"net/http"
)

// VectorStore is a remote retrieval index.
type VectorStore struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateVectorStore creates a retrieval index with the given name and returns
// its id.
func (c *Client) CreateVectorStore(ctx context.Context, name string) (string, error) {
	var vs VectorStore
	err := c.doJSON(ctx, http.MethodPost, "/vector_stores", map[string]string{"name": name}, &vs)
	if err != nil {
		return "", fmt.Errorf("creating vector store %q: %w", name, err)
	}
	return vs.ID, nil
}

type vectorStoreList struct {
	Data    []VectorStore `json:"data"`
	HasMore bool          `json:"has_more"`
	LastID  string        `json:"last_id"`
}

// ListVectorStores returns all retrieval indexes, following pagination.
func (c *Client) ListVectorStores(ctx context.Context) ([]VectorStore, error) {
	var all []VectorStore
	after := ""
	for {
		path := "/vector_stores?limit=100"
		if after != "" {
			path += "&after=" + after
		}
		var page vectorStoreList
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("listing vector stores: %w", err)
		}
		all = append(all, page.Data...)
		if !page.HasMore || page.LastID == "" {
			return all, nil
		}
		after = page.LastID
	}
}

// AttachFileToVectorStore attaches an uploaded file to a retrieval index.
func (c *Client) AttachFileToVectorStore(ctx context.Context, vectorStoreID, fileID string) error {
	path := "/vector_stores/" + vectorStoreID + "/files"
	err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"file_id": fileID}, nil)
	if err != nil {
		return fmt.Errorf("attaching file %s to vector store %s: %w", fileID, vectorStoreID, err)
	}
	return nil
}
