// Package crawler drives website imports: one bulk call to the external
// crawl service, then a hand-off of the returned page bodies to the website
// ingestor under a tracked crawl job.
package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.spider.cloud"

// Page is one crawled page returned by the crawl service.
type Page struct {
	URL      string         `json:"url"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Options tunes a crawl request. Zero values fall back to service defaults;
// the orchestrator fills Limit and ReturnFormat from configuration.
type Options struct {
	Limit        int
	ReturnFormat string // "markdown", "html" or "text"
	AntiBot      bool
	Proxies      bool
	Subdomains   bool
	// PerPage persists one website source per crawled page instead of a
	// single aggregated source.
	PerPage bool
}

// Client calls the external crawl service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, defaultBaseURL)
}

func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type crawlRequest struct {
	URL          string `json:"url"`
	Limit        int    `json:"limit"`
	ReturnFormat string `json:"return_format"`
	AntiBot      bool   `json:"anti_bot,omitempty"`
	Proxies      bool   `json:"proxy_enabled,omitempty"`
	Subdomains   bool   `json:"subdomains,omitempty"`
}

// Crawl performs one bulk crawl starting at seedURL and returns the collected
// pages. The service has no incremental interface; the whole result arrives
// in a single response.
func (c *Client) Crawl(ctx context.Context, seedURL string, opts Options) ([]Page, error) {
	reqBody := crawlRequest{
		URL:          seedURL,
		Limit:        opts.Limit,
		ReturnFormat: opts.ReturnFormat,
		AntiBot:      opts.AntiBot,
		Proxies:      opts.Proxies,
		Subdomains:   opts.Subdomains,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding crawl request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/crawl", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building crawl request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling crawl service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("crawl service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var pages []Page
	if err := json.NewDecoder(resp.Body).Decode(&pages); err != nil {
		return nil, fmt.Errorf("decoding crawl response: %w", err)
	}
	return pages, nil
}
