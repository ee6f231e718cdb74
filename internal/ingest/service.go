// Package ingest turns user submissions into knowledge sources. Ingestion is
// at-least-persisted, best-effort-indexed: the source row always survives,
// and indexing failures are retried from the job queue instead of losing the
// user's content.
package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/halcyon/botforge/internal/index"
	"github.com/halcyon/botforge/internal/storage"
)

// JobTypeSourceIndex names the retry jobs enqueued for sources that were
// saved but could not be indexed.
const JobTypeSourceIndex = "source_index"

// ErrInvalid marks submissions rejected before anything is persisted.
var ErrInvalid = errors.New("invalid submission")

// indexMaxAttempts bounds indexing retries per source.
const indexMaxAttempts = 5

// IndexingError reports that a source was persisted but could not be attached
// to the agent's retrieval index. Callers should treat it as a warning, not a
// failure: the content is safe and a retry job is queued.
type IndexingError struct {
	SourceID string
	Err      error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("source %s saved but not indexed: %v", e.SourceID, e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

// Indexer resolves and populates an agent's retrieval index.
type Indexer interface {
	EnsureIndex(ctx context.Context, agentID string) (string, error)
	AttachDocument(ctx context.Context, indexID string, body []byte, filename, mimeType string) (string, error)
}

// AssistantSyncer points the agent's assistant at its retrieval index.
type AssistantSyncer interface {
	SyncAssistant(ctx context.Context, agentID, indexID string) error
}

// Store is the storage surface ingestion needs.
type Store interface {
	GetAgent(id string) (storage.Agent, error)
	SaveSource(src storage.Source) error
	GetSource(id string) (storage.Source, error)
	MarkSourceIndexed(id string) error
	DeleteSource(id string) error
	ListSources(agentID string, limit, offset int) ([]storage.Source, error)
	EnqueueJob(job storage.Job) error
}

// Page is one crawled page body handed off by the crawl orchestrator.
type Page struct {
	URL     string
	Content string
}

type qaContent struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type webContent struct {
	URL            string `json:"url"`
	CrawledContent string `json:"crawled_content"`
}

// Service implements the per-kind ingestors.
type Service struct {
	store   Store
	indexer Indexer
	syncer  AssistantSyncer
	logger  *slog.Logger
}

func NewService(store Store, indexer Indexer, syncer AssistantSyncer) *Service {
	return &Service{
		store:   store,
		indexer: indexer,
		syncer:  syncer,
		logger:  slog.Default(),
	}
}

// IngestText persists a plain text source. Content is stored verbatim and
// chars is the text length.
func (s *Service) IngestText(ctx context.Context, agentID, userID, text string) (storage.Source, error) {
	if strings.TrimSpace(text) == "" {
		return storage.Source{}, fmt.Errorf("%w: text content is empty", ErrInvalid)
	}
	if _, err := s.store.GetAgent(agentID); err != nil {
		return storage.Source{}, fmt.Errorf("loading agent %s: %w", agentID, err)
	}

	src := storage.Source{
		ID:      uuid.NewString(),
		AgentID: agentID,
		UserID:  userID,
		Type:    storage.SourceText,
		Content: text,
		Chars:   len(text),
	}
	if err := s.store.SaveSource(src); err != nil {
		return storage.Source{}, fmt.Errorf("saving text source: %w", err)
	}

	body, filename, mimeType, _ := documentFor(src)
	return s.finish(ctx, src, body, filename, mimeType)
}

// IngestFile persists a file source. The content column stores only the
// filename; chars is estimated as a quarter of the byte size. PDF bodies are
// reduced to extracted text before upload, other files upload as-is.
func (s *Service) IngestFile(ctx context.Context, agentID, userID, filename string, data []byte) (storage.Source, error) {
	if filename == "" {
		return storage.Source{}, fmt.Errorf("%w: filename is empty", ErrInvalid)
	}
	if len(data) == 0 {
		return storage.Source{}, fmt.Errorf("%w: file %q is empty", ErrInvalid, filename)
	}
	if _, err := s.store.GetAgent(agentID); err != nil {
		return storage.Source{}, fmt.Errorf("loading agent %s: %w", agentID, err)
	}

	src := storage.Source{
		ID:      uuid.NewString(),
		AgentID: agentID,
		UserID:  userID,
		Type:    storage.SourceFile,
		Content: filename,
		Chars:   len(data) / 4,
	}
	if err := s.store.SaveSource(src); err != nil {
		return storage.Source{}, fmt.Errorf("saving file source: %w", err)
	}

	body, uploadName, mimeType := s.fileDocument(filename, data)
	return s.finish(ctx, src, body, uploadName, mimeType)
}

// IngestQA persists a question/answer source. Content is a JSON object and
// chars is the combined length of question and answer.
func (s *Service) IngestQA(ctx context.Context, agentID, userID, question, answer string) (storage.Source, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return storage.Source{}, fmt.Errorf("%w: question and answer are both required", ErrInvalid)
	}
	if _, err := s.store.GetAgent(agentID); err != nil {
		return storage.Source{}, fmt.Errorf("loading agent %s: %w", agentID, err)
	}

	content, err := json.Marshal(qaContent{Question: question, Answer: answer})
	if err != nil {
		return storage.Source{}, fmt.Errorf("encoding qa content: %w", err)
	}
	src := storage.Source{
		ID:      uuid.NewString(),
		AgentID: agentID,
		UserID:  userID,
		Type:    storage.SourceQA,
		Content: string(content),
		Chars:   len(question) + len(answer),
	}
	if err := s.store.SaveSource(src); err != nil {
		return storage.Source{}, fmt.Errorf("saving qa source: %w", err)
	}

	body, filename, mimeType, _ := documentFor(src)
	return s.finish(ctx, src, body, filename, mimeType)
}

// IngestWebsite persists one crawled page as a website source. Content is a
// JSON object of url and crawled content; chars counts the crawled content.
func (s *Service) IngestWebsite(ctx context.Context, agentID, userID string, page Page) (storage.Source, error) {
	if strings.TrimSpace(page.Content) == "" {
		return storage.Source{}, fmt.Errorf("%w: page %q has no content", ErrInvalid, page.URL)
	}
	if _, err := s.store.GetAgent(agentID); err != nil {
		return storage.Source{}, fmt.Errorf("loading agent %s: %w", agentID, err)
	}

	content, err := json.Marshal(webContent{URL: page.URL, CrawledContent: page.Content})
	if err != nil {
		return storage.Source{}, fmt.Errorf("encoding website content: %w", err)
	}
	src := storage.Source{
		ID:      uuid.NewString(),
		AgentID: agentID,
		UserID:  userID,
		Type:    storage.SourceWebsite,
		Content: string(content),
		Chars:   len(page.Content),
	}
	if err := s.store.SaveSource(src); err != nil {
		return storage.Source{}, fmt.Errorf("saving website source: %w", err)
	}

	body, filename, mimeType, _ := documentFor(src)
	return s.finish(ctx, src, body, filename, mimeType)
}

// ListSources returns a page of an agent's sources.
func (s *Service) ListSources(agentID string, limit, offset int) ([]storage.Source, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListSources(agentID, limit, offset)
}

// DeleteSource removes a source row. The uploaded remote file, if any, stays
// behind; the index is reconciled on the next retrain.
func (s *Service) DeleteSource(id string) error {
	return s.store.DeleteSource(id)
}

// Process runs the full indexing pipeline for a saved source: ensure the
// agent's index exists, attach the document, and point the assistant at the
// index. Used for the first attempt and for queue retries.
func (s *Service) Process(ctx context.Context, src storage.Source, body []byte, filename, mimeType string) error {
	indexID, err := s.indexer.EnsureIndex(ctx, src.AgentID)
	if err != nil {
		return fmt.Errorf("ensuring index: %w", err)
	}
	if _, err := s.indexer.AttachDocument(ctx, indexID, body, filename, mimeType); err != nil {
		return fmt.Errorf("attaching document: %w", err)
	}
	if err := s.syncer.SyncAssistant(ctx, src.AgentID, indexID); err != nil {
		return fmt.Errorf("syncing assistant: %w", err)
	}
	return nil
}

// finish attempts indexing for a freshly saved source. On failure the source
// row is kept, a retry job is queued, and the caller gets the saved source
// together with an IndexingError.
func (s *Service) finish(ctx context.Context, src storage.Source, body []byte, filename, mimeType string) (storage.Source, error) {
	if err := s.Process(ctx, src, body, filename, mimeType); err != nil {
		s.logger.Warn("source saved but not indexed",
			"source_id", src.ID, "agent_id", src.AgentID, "error", err)
		s.enqueueRetry(src, body, filename, mimeType)
		return src, &IndexingError{SourceID: src.ID, Err: err}
	}

	if err := s.store.MarkSourceIndexed(src.ID); err != nil {
		s.logger.Warn("marking source indexed failed", "source_id", src.ID, "error", err)
	} else {
		src.Indexed = true
	}
	return src, nil
}

type indexJobPayload struct {
	SourceID string `json:"source_id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	// BodyB64 carries the upload body for file sources, whose bytes are not
	// recoverable from the source row. Other kinds rebuild from content.
	BodyB64 string `json:"body_b64,omitempty"`
}

func (s *Service) enqueueRetry(src storage.Source, body []byte, filename, mimeType string) {
	payload := indexJobPayload{
		SourceID: src.ID,
		Filename: filename,
		MimeType: mimeType,
	}
	if src.Type == storage.SourceFile {
		payload.BodyB64 = base64.StdEncoding.EncodeToString(body)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encoding retry payload failed", "source_id", src.ID, "error", err)
		return
	}
	job := storage.Job{
		ID:          uuid.NewString(),
		Type:        JobTypeSourceIndex,
		PayloadJSON: string(data),
		MaxAttempts: indexMaxAttempts,
	}
	if err := s.store.EnqueueJob(job); err != nil {
		s.logger.Error("enqueueing index retry failed", "source_id", src.ID, "error", err)
	}
}

// fileDocument prepares the upload body for a file submission. PDFs are
// reduced to extracted text; extraction failure falls back to the raw bytes.
func (s *Service) fileDocument(filename string, data []byte) (body []byte, uploadName, mimeType string) {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		text, err := extractPDFText(data)
		if err == nil && strings.TrimSpace(text) != "" {
			base := strings.TrimSuffix(filename, filepath.Ext(filename))
			return []byte(text), base + ".txt", "text/plain"
		}
		if err != nil {
			s.logger.Warn("pdf text extraction failed, uploading raw bytes",
				"filename", filename, "error", err)
		}
	}
	return data, filename, index.DetectMIME(filename)
}

// documentFor rebuilds the upload body for a source from its stored content.
// Text, qa and website sources always upload as plain text. File bodies are
// not recoverable from the row.
func documentFor(src storage.Source) (body []byte, filename, mimeType string, err error) {
	filename = "source_" + src.ID + ".txt"
	mimeType = "text/plain"

	switch src.Type {
	case storage.SourceText:
		return []byte(src.Content), filename, mimeType, nil
	case storage.SourceQA:
		var qa qaContent
		if err := json.Unmarshal([]byte(src.Content), &qa); err != nil {
			return nil, "", "", fmt.Errorf("decoding qa content: %w", err)
		}
		text := "Question: " + qa.Question + "\n\nAnswer: " + qa.Answer + "\n"
		return []byte(text), filename, mimeType, nil
	case storage.SourceWebsite:
		var web webContent
		if err := json.Unmarshal([]byte(src.Content), &web); err != nil {
			return nil, "", "", fmt.Errorf("decoding website content: %w", err)
		}
		return []byte(web.CrawledContent), filename, mimeType, nil
	case storage.SourceFile:
		return nil, "", "", fmt.Errorf("file source %s body is not recoverable from the row", src.ID)
	default:
		return nil, "", "", fmt.Errorf("unknown source type %q", src.Type)
	}
}
