package sync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/halcyon/botforge/internal/assistant"
	"github.com/halcyon/botforge/internal/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	agents   map[string]storage.Agent
	counts   map[string]int
	assigned map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:   make(map[string]storage.Agent),
		counts:   make(map[string]int),
		assigned: make(map[string]string),
	}
}

func (f *fakeStore) GetAgent(id string) (storage.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return storage.Agent{}, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) ListAgentsMissingAssistant() ([]storage.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Agent
	for _, a := range f.agents {
		if a.AssistantID == "" {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) SetAssistantID(id, assistantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned[id] = assistantID
	a := f.agents[id]
	a.AssistantID = assistantID
	f.agents[id] = a
	return nil
}

func (f *fakeStore) CountSources(agentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[agentID], nil
}

type fakeGateway struct {
	mu        sync.Mutex
	updates   []assistant.UpdateAssistantRequest
	createErr map[string]error
	created   []string
}

func (f *fakeGateway) CreateAssistant(ctx context.Context, name, description, instructions, model string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[name]; err != nil {
		return "", err
	}
	f.created = append(f.created, name)
	return "asst_" + name, nil
}

func (f *fakeGateway) UpdateAssistant(ctx context.Context, assistantID string, req assistant.UpdateAssistantRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	return nil
}

type fakeIndexer struct {
	calls int
	id    string
}

func (f *fakeIndexer) EnsureIndex(ctx context.Context, agentID string) (string, error) {
	f.calls++
	return f.id, nil
}

func newSynchronizer(store *fakeStore, gw *fakeGateway, idx *fakeIndexer) *Synchronizer {
	return New(store, gw, idx, "gpt-4o-mini")
}

func TestSyncAssistant_WiresFileSearch(t *testing.T) {
	store := newFakeStore()
	store.agents["a1"] = storage.Agent{ID: "a1", AssistantID: "asst_1"}
	gw := &fakeGateway{}
	s := newSynchronizer(store, gw, &fakeIndexer{})

	if err := s.SyncAssistant(context.Background(), "a1", "vs_1"); err != nil {
		t.Fatalf("SyncAssistant: %v", err)
	}

	if len(gw.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(gw.updates))
	}
	req := gw.updates[0]
	if req.Tools == nil || len(*req.Tools) != 1 || (*req.Tools)[0] != assistant.FileSearchTool {
		t.Errorf("Tools = %v, want file_search", req.Tools)
	}
	if req.ToolResources == nil || req.ToolResources.FileSearch == nil ||
		len(req.ToolResources.FileSearch.VectorStoreIDs) != 1 ||
		req.ToolResources.FileSearch.VectorStoreIDs[0] != "vs_1" {
		t.Errorf("ToolResources = %+v, want vs_1", req.ToolResources)
	}
	if req.Name != nil {
		t.Errorf("sync must not touch metadata, got Name = %v", *req.Name)
	}
}

func TestSyncAssistant_NoRemoteAssistant(t *testing.T) {
	store := newFakeStore()
	store.agents["a1"] = storage.Agent{ID: "a1"}
	s := newSynchronizer(store, &fakeGateway{}, &fakeIndexer{})

	if err := s.SyncAssistant(context.Background(), "a1", "vs_1"); err == nil {
		t.Fatal("expected error for agent without assistant")
	}
}

func TestUpdateMetadata_LeavesToolsAlone(t *testing.T) {
	store := newFakeStore()
	store.agents["a1"] = storage.Agent{
		ID: "a1", AssistantID: "asst_1",
		Name: "Bot", Description: "d", Instructions: "i",
	}
	gw := &fakeGateway{}
	s := newSynchronizer(store, gw, &fakeIndexer{})

	if err := s.UpdateMetadata(context.Background(), "a1"); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	req := gw.updates[0]
	if req.Name == nil || *req.Name != "Bot" {
		t.Errorf("Name = %v", req.Name)
	}
	if req.Tools != nil || req.ToolResources != nil {
		t.Errorf("metadata update must not touch tools: %+v", req)
	}
}

func TestRetrain_WithSources(t *testing.T) {
	store := newFakeStore()
	store.agents["a1"] = storage.Agent{ID: "a1", AssistantID: "asst_1", Name: "Bot"}
	store.counts["a1"] = 2
	gw := &fakeGateway{}
	idx := &fakeIndexer{id: "vs_1"}
	s := newSynchronizer(store, gw, idx)

	if err := s.Retrain(context.Background(), "a1"); err != nil {
		t.Fatalf("Retrain: %v", err)
	}

	if idx.calls != 1 {
		t.Errorf("EnsureIndex calls = %d, want 1", idx.calls)
	}
	req := gw.updates[0]
	if req.Tools == nil || len(*req.Tools) != 1 {
		t.Errorf("Tools = %v, want [file_search]", req.Tools)
	}
	if req.ToolResources == nil || req.ToolResources.FileSearch.VectorStoreIDs[0] != "vs_1" {
		t.Errorf("ToolResources = %+v", req.ToolResources)
	}
	if req.Name == nil || *req.Name != "Bot" {
		t.Errorf("retrain must push metadata too, Name = %v", req.Name)
	}
}

func TestRetrain_NoSources(t *testing.T) {
	store := newFakeStore()
	store.agents["a1"] = storage.Agent{ID: "a1", AssistantID: "asst_1", Name: "Bot"}
	gw := &fakeGateway{}
	idx := &fakeIndexer{id: "vs_1"}
	s := newSynchronizer(store, gw, idx)

	if err := s.Retrain(context.Background(), "a1"); err != nil {
		t.Fatalf("Retrain: %v", err)
	}

	if idx.calls != 0 {
		t.Errorf("no index should be created for a sourceless agent, calls = %d", idx.calls)
	}
	req := gw.updates[0]
	if req.Tools == nil || len(*req.Tools) != 0 {
		t.Errorf("Tools = %v, want explicit empty list", req.Tools)
	}
	if req.ToolResources != nil {
		t.Errorf("ToolResources = %+v, want nil", req.ToolResources)
	}
}

func TestCreateMissingAssistants_ContinuesPastFailures(t *testing.T) {
	store := newFakeStore()
	store.agents["a1"] = storage.Agent{ID: "a1", Name: "one"}
	store.agents["a2"] = storage.Agent{ID: "a2", Name: "two"}
	store.agents["a3"] = storage.Agent{ID: "a3", Name: "three"}
	gw := &fakeGateway{createErr: map[string]error{"two": errors.New("quota exceeded")}}
	s := newSynchronizer(store, gw, &fakeIndexer{})

	created, failed, err := s.CreateMissingAssistants(context.Background())
	if err != nil {
		t.Fatalf("CreateMissingAssistants: %v", err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}
	if len(failed) != 1 || failed["a2"] == nil {
		t.Errorf("failed = %v, want a2 only", failed)
	}
	if store.assigned["a1"] == "" || store.assigned["a3"] == "" {
		t.Errorf("assigned = %v, want a1 and a3 recorded", store.assigned)
	}
	if store.assigned["a2"] != "" {
		t.Errorf("a2 should not be assigned, got %q", store.assigned["a2"])
	}
}

func TestCreateMissingAssistants_SkipsAgentsWithAssistant(t *testing.T) {
	store := newFakeStore()
	store.agents["a1"] = storage.Agent{ID: "a1", Name: "one", AssistantID: "asst_existing"}
	gw := &fakeGateway{}
	s := newSynchronizer(store, gw, &fakeIndexer{})

	created, failed, err := s.CreateMissingAssistants(context.Background())
	if err != nil {
		t.Fatalf("CreateMissingAssistants: %v", err)
	}
	if created != 0 || len(failed) != 0 || len(gw.created) != 0 {
		t.Errorf("nothing should be created: created=%d failed=%v calls=%v", created, failed, gw.created)
	}
}
