package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/halcyon/botforge/internal/storage"
)

type attachCall struct {
	indexID  string
	filename string
	mimeType string
	body     string
}

// fakePipeline stands in for both the index manager and the synchronizer.
type fakePipeline struct {
	ensureErr error
	attachErr error
	syncErr   error
	ensures   int
	attaches  []attachCall
	syncs     [][2]string
}

func (f *fakePipeline) EnsureIndex(ctx context.Context, agentID string) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	f.ensures++
	return "vs_" + agentID, nil
}

func (f *fakePipeline) AttachDocument(ctx context.Context, indexID string, body []byte, filename, mimeType string) (string, error) {
	if f.attachErr != nil {
		return "", f.attachErr
	}
	f.attaches = append(f.attaches, attachCall{indexID, filename, mimeType, string(body)})
	return "file-1", nil
}

func (f *fakePipeline) SyncAssistant(ctx context.Context, agentID, indexID string) error {
	if f.syncErr != nil {
		return f.syncErr
	}
	f.syncs = append(f.syncs, [2]string{agentID, indexID})
	return nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestService(t *testing.T, pipe *fakePipeline) (*Service, *storage.Store) {
	t.Helper()
	store := openTestStore(t)
	if err := store.CreateAgent(storage.Agent{ID: "A1", UserID: "u1", Name: "Bot", Active: true}); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	return NewService(store, pipe, pipe), store
}

func TestIngestText_HelloWorld(t *testing.T) {
	pipe := &fakePipeline{}
	svc, _ := newTestService(t, pipe)

	src, err := svc.IngestText(context.Background(), "A1", "u1", "Hello world")
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if src.Type != storage.SourceText || src.Chars != 11 || src.Content != "Hello world" {
		t.Errorf("source = %+v", src)
	}
	if !src.Indexed {
		t.Error("source should be marked indexed")
	}
	if pipe.ensures != 1 {
		t.Errorf("EnsureIndex calls = %d, want 1", pipe.ensures)
	}
	if len(pipe.attaches) != 1 || pipe.attaches[0].body != "Hello world" {
		t.Errorf("attaches = %+v", pipe.attaches)
	}
	if len(pipe.syncs) != 1 || pipe.syncs[0] != [2]string{"A1", "vs_A1"} {
		t.Errorf("syncs = %v, want assistant pointed at vs_A1", pipe.syncs)
	}
}

func TestIngestText_EmptyRejectedBeforePersist(t *testing.T) {
	pipe := &fakePipeline{}
	svc, store := newTestService(t, pipe)

	if _, err := svc.IngestText(context.Background(), "A1", "u1", "   "); err == nil {
		t.Fatal("expected validation error")
	}
	n, err := store.CountSources("A1")
	if err != nil {
		t.Fatalf("CountSources: %v", err)
	}
	if n != 0 {
		t.Errorf("sources = %d, want 0", n)
	}
	if pipe.ensures != 0 {
		t.Errorf("no remote call should happen on validation failure")
	}
}

func TestIngestText_PersistsDespiteIndexFailure(t *testing.T) {
	pipe := &fakePipeline{ensureErr: errors.New("gateway down")}
	svc, store := newTestService(t, pipe)

	src, err := svc.IngestText(context.Background(), "A1", "u1", "Hello world")
	if err == nil {
		t.Fatal("expected IndexingError")
	}
	var idxErr *IndexingError
	if !errors.As(err, &idxErr) {
		t.Fatalf("err = %v, want *IndexingError", err)
	}
	if idxErr.SourceID != src.ID {
		t.Errorf("SourceID = %q, want %q", idxErr.SourceID, src.ID)
	}

	saved, err := store.GetSource(src.ID)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if saved.Content != "Hello world" || saved.Indexed {
		t.Errorf("saved = %+v, want content kept and not indexed", saved)
	}

	job, err := store.ClaimNextJob([]string{JobTypeSourceIndex})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("expected a retry job to be enqueued")
	}
	if !strings.Contains(job.PayloadJSON, src.ID) {
		t.Errorf("payload = %s, want source id", job.PayloadJSON)
	}
}

func TestIngestFile(t *testing.T) {
	pipe := &fakePipeline{}
	svc, _ := newTestService(t, pipe)
	data := []byte("eight by") // 8 bytes

	src, err := svc.IngestFile(context.Background(), "A1", "u1", "notes.txt", data)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if src.Type != storage.SourceFile || src.Content != "notes.txt" {
		t.Errorf("source = %+v", src)
	}
	if src.Chars != 2 {
		t.Errorf("Chars = %d, want floor(8/4) = 2", src.Chars)
	}
	if len(pipe.attaches) != 1 {
		t.Fatalf("attaches = %d, want 1", len(pipe.attaches))
	}
	call := pipe.attaches[0]
	if call.filename != "notes.txt" || call.mimeType != "text/plain" || call.body != "eight by" {
		t.Errorf("attach = %+v", call)
	}
}

func TestIngestFile_Validation(t *testing.T) {
	svc, _ := newTestService(t, &fakePipeline{})
	if _, err := svc.IngestFile(context.Background(), "A1", "u1", "", []byte("x")); err == nil {
		t.Error("expected error for empty filename")
	}
	if _, err := svc.IngestFile(context.Background(), "A1", "u1", "a.txt", nil); err == nil {
		t.Error("expected error for empty data")
	}
}

func TestIngestQA(t *testing.T) {
	pipe := &fakePipeline{}
	svc, _ := newTestService(t, pipe)

	src, err := svc.IngestQA(context.Background(), "A1", "u1", "What is it?", "A bot.")
	if err != nil {
		t.Fatalf("IngestQA: %v", err)
	}
	if src.Chars != len("What is it?")+len("A bot.") {
		t.Errorf("Chars = %d", src.Chars)
	}
	var qa qaContent
	if err := json.Unmarshal([]byte(src.Content), &qa); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	if qa.Question != "What is it?" || qa.Answer != "A bot." {
		t.Errorf("content = %+v", qa)
	}
	if body := pipe.attaches[0].body; !strings.Contains(body, "What is it?") || !strings.Contains(body, "A bot.") {
		t.Errorf("uploaded body = %q", body)
	}
}

func TestIngestQA_Validation(t *testing.T) {
	svc, _ := newTestService(t, &fakePipeline{})
	if _, err := svc.IngestQA(context.Background(), "A1", "u1", "q", ""); err == nil {
		t.Error("expected error for missing answer")
	}
	if _, err := svc.IngestQA(context.Background(), "A1", "u1", "", "a"); err == nil {
		t.Error("expected error for missing question")
	}
}

func TestIngestWebsite(t *testing.T) {
	pipe := &fakePipeline{}
	svc, _ := newTestService(t, pipe)

	src, err := svc.IngestWebsite(context.Background(), "A1", "u1", Page{
		URL: "https://example.com", Content: "Welcome to Example.",
	})
	if err != nil {
		t.Fatalf("IngestWebsite: %v", err)
	}
	if src.Type != storage.SourceWebsite || src.Chars != len("Welcome to Example.") {
		t.Errorf("source = %+v", src)
	}
	var web webContent
	if err := json.Unmarshal([]byte(src.Content), &web); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	if web.URL != "https://example.com" || web.CrawledContent != "Welcome to Example." {
		t.Errorf("content = %+v", web)
	}
	if pipe.attaches[0].body != "Welcome to Example." {
		t.Errorf("uploaded body = %q", pipe.attaches[0].body)
	}
}

func TestIngest_UnknownAgent(t *testing.T) {
	svc, _ := newTestService(t, &fakePipeline{})
	_, err := svc.IngestText(context.Background(), "nope", "u1", "hi")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
