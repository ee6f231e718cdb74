package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/halcyon/botforge/internal/assistant"
	"github.com/halcyon/botforge/internal/storage"
)

type fakeStore struct {
	agent storage.Agent
}

func (f *fakeStore) GetAgent(id string) (storage.Agent, error) {
	if id != f.agent.ID {
		return storage.Agent{}, storage.ErrNotFound
	}
	return f.agent, nil
}

type fakeGateway struct {
	statuses []string
	polls    int
	threads  int
	posted   []string
	reply    string
}

func (f *fakeGateway) CreateThread(ctx context.Context) (string, error) {
	f.threads++
	return "thread_1", nil
}

func (f *fakeGateway) PostMessage(ctx context.Context, threadID, role, text string) error {
	f.posted = append(f.posted, role+": "+text)
	return nil
}

func (f *fakeGateway) CreateRun(ctx context.Context, threadID, assistantID string) (assistant.Run, error) {
	return assistant.Run{ID: "run_1", Status: "queued"}, nil
}

func (f *fakeGateway) GetRun(ctx context.Context, threadID, runID string) (string, error) {
	s := f.statuses[f.polls]
	if f.polls < len(f.statuses)-1 {
		f.polls++
	}
	return s, nil
}

func (f *fakeGateway) ListMessages(ctx context.Context, threadID, order string, limit int) ([]assistant.Message, error) {
	return []assistant.Message{{Role: "assistant", Text: f.reply}}, nil
}

func newService(gw *fakeGateway) *Service {
	store := &fakeStore{agent: storage.Agent{ID: "A1", AssistantID: "asst_1"}}
	return NewService(store, gw, time.Millisecond, 5)
}

func TestAsk_NewThread(t *testing.T) {
	gw := &fakeGateway{statuses: []string{"queued", "in_progress", "completed"}, reply: "Hi there"}
	s := newService(gw)

	reply, threadID, err := s.Ask(context.Background(), "A1", "", "Hello?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply != "Hi there" {
		t.Errorf("reply = %q", reply)
	}
	if threadID != "thread_1" || gw.threads != 1 {
		t.Errorf("threadID = %q, threads created = %d", threadID, gw.threads)
	}
	if len(gw.posted) != 1 || gw.posted[0] != "user: Hello?" {
		t.Errorf("posted = %v", gw.posted)
	}
}

func TestAsk_ExistingThread(t *testing.T) {
	gw := &fakeGateway{statuses: []string{"completed"}, reply: "Again"}
	s := newService(gw)

	_, threadID, err := s.Ask(context.Background(), "A1", "thread_7", "More?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if threadID != "thread_7" || gw.threads != 0 {
		t.Errorf("threadID = %q, threads created = %d, want reuse", threadID, gw.threads)
	}
}

func TestAsk_RunFails(t *testing.T) {
	gw := &fakeGateway{statuses: []string{"queued", "failed"}}
	s := newService(gw)

	_, _, err := s.Ask(context.Background(), "A1", "", "Hello?")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "run did not complete") {
		t.Errorf("err = %v, want run-did-not-complete", err)
	}
}

func TestAsk_PollExhausted(t *testing.T) {
	gw := &fakeGateway{statuses: []string{"in_progress"}}
	s := newService(gw)

	_, _, err := s.Ask(context.Background(), "A1", "", "Hello?")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "run did not complete") {
		t.Errorf("err = %v", err)
	}
}

func TestAsk_Validation(t *testing.T) {
	s := newService(&fakeGateway{})
	if _, _, err := s.Ask(context.Background(), "A1", "", "  "); err == nil {
		t.Error("expected error for empty message")
	}
	if _, _, err := s.Ask(context.Background(), "nope", "", "hi"); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestAsk_NoAssistantYet(t *testing.T) {
	store := &fakeStore{agent: storage.Agent{ID: "A1"}}
	s := NewService(store, &fakeGateway{}, time.Millisecond, 5)

	_, _, err := s.Ask(context.Background(), "A1", "", "hi")
	if err == nil || !strings.Contains(err.Error(), "no remote assistant") {
		t.Errorf("err = %v", err)
	}
}
