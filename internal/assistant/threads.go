package assistant

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// Run is one execution of an assistant against a thread.
type Run struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Message is one entry in a thread's message log, flattened to plain text.
type Message struct {
	Role string
	Text string
}

// CreateThread creates an empty conversation thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/threads", map[string]any{}, &out); err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}
	return out.ID, nil
}

// PostMessage appends a message to a thread.
func (c *Client) PostMessage(ctx context.Context, threadID, role, text string) error {
	body := map[string]string{"role": role, "content": text}
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, nil); err != nil {
		return fmt.Errorf("posting message to thread %s: %w", threadID, err)
	}
	return nil
}

// CreateRun starts a run of the given assistant on a thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	body := map[string]string{"assistant_id": assistantID}
	var run Run
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &run); err != nil {
		return Run{}, fmt.Errorf("creating run on thread %s: %w", threadID, err)
	}
	return run, nil
}

// GetRun returns the current status of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (string, error) {
	var run Run
	if err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return "", fmt.Errorf("getting run %s: %w", runID, err)
	}
	return run.Status, nil
}

// wireMessage mirrors the provider's message shape, where content is a list
// of typed blocks.
type wireMessage struct {
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

// ListMessages returns up to limit messages from a thread in the given order
// ("asc" or "desc"), with text content flattened.
func (c *Client) ListMessages(ctx context.Context, threadID, order string, limit int) ([]Message, error) {
	path := "/threads/" + threadID + "/messages?order=" + order + "&limit=" + strconv.Itoa(limit)
	var out struct {
		Data []wireMessage `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("listing messages for thread %s: %w", threadID, err)
	}

	msgs := make([]Message, 0, len(out.Data))
	for _, m := range out.Data {
		var text string
		for _, block := range m.Content {
			if block.Type == "text" {
				text += block.Text.Value
			}
		}
		msgs = append(msgs, Message{Role: m.Role, Text: text})
	}
	return msgs, nil
}
