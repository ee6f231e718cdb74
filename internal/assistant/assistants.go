package assistant

import (
	"context"
	"fmt"
	"net/http"
)

// Tool declares an assistant capability.
type Tool struct {
	Type string `json:"type"`
}

// FileSearchTool enables retrieval over the agent's vector store.
var FileSearchTool = Tool{Type: "file_search"}

// ToolResources points an assistant's tools at concrete resources.
type ToolResources struct {
	FileSearch *FileSearchResources `json:"file_search,omitempty"`
}

// FileSearchResources names the vector stores backing file search.
type FileSearchResources struct {
	VectorStoreIDs []string `json:"vector_store_ids"`
}

// UpdateAssistantRequest carries a partial assistant update. Nil fields are
// omitted from the request and left unchanged remotely. Tools is a pointer so
// callers can distinguish "leave tools alone" (nil) from "set an empty tools
// list" (pointer to empty slice).
type UpdateAssistantRequest struct {
	Name          *string        `json:"name,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Instructions  *string        `json:"instructions,omitempty"`
	Tools         *[]Tool        `json:"tools,omitempty"`
	ToolResources *ToolResources `json:"tool_resources,omitempty"`
}

// CreateAssistant creates a remote assistant and returns its id.
func (c *Client) CreateAssistant(ctx context.Context, name, description, instructions, model string) (string, error) {
	body := map[string]any{
		"name":         name,
		"description":  description,
		"instructions": instructions,
		"model":        model,
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/assistants", body, &out); err != nil {
		return "", fmt.Errorf("creating assistant %q: %w", name, err)
	}
	return out.ID, nil
}

// UpdateAssistant applies a partial update to a remote assistant.
func (c *Client) UpdateAssistant(ctx context.Context, assistantID string, req UpdateAssistantRequest) error {
	if err := c.doJSON(ctx, http.MethodPost, "/assistants/"+assistantID, req, nil); err != nil {
		return fmt.Errorf("updating assistant %s: %w", assistantID, err)
	}
	return nil
}

// DeleteAssistant removes a remote assistant.
func (c *Client) DeleteAssistant(ctx context.Context, assistantID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/assistants/"+assistantID, nil, nil); err != nil {
		return fmt.Errorf("deleting assistant %s: %w", assistantID, err)
	}
	return nil
}

// String returns a pointer to s, for optional update fields.
func String(s string) *string { return &s }
