package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAssistantAlreadySet is returned when SetAssistantID would overwrite an
// existing remote assistant reference. An agent gets exactly one.
var ErrAssistantAlreadySet = errors.New("assistant reference already set")

// Agent is one chatbot configuration mapped 1:1 to a remote assistant.
// AssistantID is empty until the remote assistant is created; VectorStoreID
// is empty until the agent's retrieval index is first claimed.
type Agent struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Instructions  string    `json:"instructions"`
	Public        bool      `json:"public"`
	Active        bool      `json:"active"`
	AssistantID   string    `json:"assistant_id,omitempty"`
	VectorStoreID string    `json:"vector_store_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Source kinds.
const (
	SourceText    = "text"
	SourceFile    = "file"
	SourceQA      = "qa"
	SourceWebsite = "website"
)

// Source is one unit of ingested knowledge belonging to exactly one agent.
// Content encoding depends on Type: verbatim text, a filename, a JSON
// question/answer pair, or a JSON crawl result. Rows are never mutated after
// creation except for the Indexed flag and deletion.
type Source struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Chars     int       `json:"chars"`
	Indexed   bool      `json:"indexed"`
	CreatedAt time.Time `json:"created_at"`
}

// Crawl job statuses.
const (
	CrawlProcessing = "processing"
	CrawlCompleted  = "completed"
	CrawlImported   = "imported"
	CrawlError      = "error"
)

// CrawlJob tracks one crawl request against an external crawl service.
type CrawlJob struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	UserID      string    `json:"user_id"`
	URL         string    `json:"url"`
	Status      string    `json:"status"`
	JobID       string    `json:"job_id,omitempty"`
	ResultCount int       `json:"result_count"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Job is one entry in the generic retry queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
