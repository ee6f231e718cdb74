package index

import (
	"context"
	"errors"
	"testing"

	"github.com/halcyon/botforge/internal/assistant"
	"github.com/halcyon/botforge/internal/storage"
)

type fakeGateway struct {
	stores      []assistant.VectorStore
	createCalls int
	listCalls   int
	uploadErr   error
	attachErr   error
	uploaded    []string
	attached    [][2]string
}

func (f *fakeGateway) CreateVectorStore(ctx context.Context, name string) (string, error) {
	f.createCalls++
	id := "vs_new_" + name
	f.stores = append(f.stores, assistant.VectorStore{ID: id, Name: name})
	return id, nil
}

func (f *fakeGateway) ListVectorStores(ctx context.Context) ([]assistant.VectorStore, error) {
	f.listCalls++
	return append([]assistant.VectorStore(nil), f.stores...), nil
}

func (f *fakeGateway) UploadFile(ctx context.Context, data []byte, filename, mimeType, purpose string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = append(f.uploaded, filename)
	return "file-" + filename, nil
}

func (f *fakeGateway) AttachFileToVectorStore(ctx context.Context, vsID, fileID string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, [2]string{vsID, fileID})
	return nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createAgent(t *testing.T, s *storage.Store, id string) {
	t.Helper()
	if err := s.CreateAgent(storage.Agent{ID: id, UserID: "u1", Name: "Bot", Active: true}); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
}

func TestEnsureIndex_CreatesOnce(t *testing.T) {
	s := openTestStore(t)
	createAgent(t, s, "a1")
	gw := &fakeGateway{}
	m := NewManager(s, gw)

	first, err := m.EnsureIndex(context.Background(), "a1")
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	second, err := m.EnsureIndex(context.Background(), "a1")
	if err != nil {
		t.Fatalf("EnsureIndex (second): %v", err)
	}

	if first != second {
		t.Errorf("ids differ: %q vs %q", first, second)
	}
	if gw.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", gw.createCalls)
	}
}

func TestEnsureIndex_AdoptsExistingByName(t *testing.T) {
	s := openTestStore(t)
	createAgent(t, s, "a1")
	gw := &fakeGateway{
		stores: []assistant.VectorStore{{ID: "vs_remote", Name: IndexName("a1")}},
	}
	m := NewManager(s, gw)

	id, err := m.EnsureIndex(context.Background(), "a1")
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if id != "vs_remote" {
		t.Errorf("id = %q, want vs_remote", id)
	}
	if gw.createCalls != 0 {
		t.Errorf("createCalls = %d, want 0", gw.createCalls)
	}

	agent, err := s.GetAgent("a1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if agent.VectorStoreID != "vs_remote" {
		t.Errorf("VectorStoreID = %q, want claimed", agent.VectorStoreID)
	}
}

func TestEnsureIndex_ReturnsExistingClaim(t *testing.T) {
	s := openTestStore(t)
	createAgent(t, s, "a1")
	gw := &fakeGateway{}
	m := NewManager(s, gw)

	// Another process already claimed an index for this agent.
	if _, err := s.ClaimVectorStoreID("a1", "vs_theirs"); err != nil {
		t.Fatalf("ClaimVectorStoreID: %v", err)
	}
	id, err := m.EnsureIndex(context.Background(), "a1")
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if id != "vs_theirs" {
		t.Errorf("id = %q, want vs_theirs", id)
	}
}

func TestEnsureIndex_AgentMissing(t *testing.T) {
	s := openTestStore(t)
	m := NewManager(s, &fakeGateway{})

	_, err := m.EnsureIndex(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAttachDocument(t *testing.T) {
	gw := &fakeGateway{}
	m := NewManager(openTestStore(t), gw)

	fileID, err := m.AttachDocument(context.Background(), "vs_1", []byte("Hello world"), "notes.txt", "text/plain")
	if err != nil {
		t.Fatalf("AttachDocument: %v", err)
	}
	if fileID != "file-notes.txt" {
		t.Errorf("fileID = %q", fileID)
	}
	if len(gw.attached) != 1 || gw.attached[0] != [2]string{"vs_1", "file-notes.txt"} {
		t.Errorf("attached = %v", gw.attached)
	}
}

func TestAttachDocument_UploadFailure(t *testing.T) {
	gw := &fakeGateway{uploadErr: errors.New("boom")}
	m := NewManager(openTestStore(t), gw)

	_, err := m.AttachDocument(context.Background(), "vs_1", []byte("x"), "x.txt", "text/plain")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(gw.attached) != 0 {
		t.Errorf("attach should not run after failed upload")
	}
}

func TestDetectMIME(t *testing.T) {
	cases := map[string]string{
		"doc.pdf":   "application/pdf",
		"notes.txt": "text/plain",
		"data.json": "application/json",
		"blob":      "application/octet-stream",
		"weird.xyz": "application/octet-stream",
	}
	for name, want := range cases {
		if got := DetectMIME(name); got != want {
			t.Errorf("DetectMIME(%q) = %q, want %q", name, got, want)
		}
	}
}
