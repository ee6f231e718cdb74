// Package chat runs the question/answer path: thread, message, run, bounded
// poll, reply.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/halcyon/botforge/internal/assistant"
	"github.com/halcyon/botforge/internal/storage"
)

// Gateway is the slice of the remote assistant API the chat path needs.
type Gateway interface {
	CreateThread(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, threadID, role, text string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (assistant.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (string, error)
	ListMessages(ctx context.Context, threadID, order string, limit int) ([]assistant.Message, error)
}

// Store resolves agents for chat requests.
type Store interface {
	GetAgent(id string) (storage.Agent, error)
}

// Service answers user messages through an agent's remote assistant.
type Service struct {
	store        Store
	gw           Gateway
	pollInterval time.Duration
	maxAttempts  int
	logger       *slog.Logger
}

func NewService(store Store, gw Gateway, pollInterval time.Duration, maxAttempts int) *Service {
	return &Service{
		store:        store,
		gw:           gw,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		logger:       slog.Default(),
	}
}

// Ask sends a message to the agent's assistant and waits for the reply. An
// empty threadID starts a new conversation; the thread id is returned either
// way so the caller can continue it.
func (s *Service) Ask(ctx context.Context, agentID, threadID, message string) (reply, thread string, err error) {
	if strings.TrimSpace(message) == "" {
		return "", "", fmt.Errorf("message is empty")
	}

	agent, err := s.store.GetAgent(agentID)
	if err != nil {
		return "", "", fmt.Errorf("loading agent %s: %w", agentID, err)
	}
	if agent.AssistantID == "" {
		return "", "", fmt.Errorf("agent %s has no remote assistant yet", agentID)
	}

	if threadID == "" {
		threadID, err = s.gw.CreateThread(ctx)
		if err != nil {
			return "", "", fmt.Errorf("creating thread: %w", err)
		}
	}

	if err := s.gw.PostMessage(ctx, threadID, "user", message); err != nil {
		return "", threadID, fmt.Errorf("posting message: %w", err)
	}

	run, err := s.gw.CreateRun(ctx, threadID, agent.AssistantID)
	if err != nil {
		return "", threadID, fmt.Errorf("creating run: %w", err)
	}

	status, err := assistant.AwaitCompletion(ctx, s.pollInterval, s.maxAttempts,
		func(ctx context.Context) (string, error) {
			return s.gw.GetRun(ctx, threadID, run.ID)
		})
	if err != nil {
		return "", threadID, fmt.Errorf("run did not complete: %w", err)
	}
	if status != "completed" {
		return "", threadID, fmt.Errorf("run did not complete: status %s", status)
	}

	msgs, err := s.gw.ListMessages(ctx, threadID, "desc", 1)
	if err != nil {
		return "", threadID, fmt.Errorf("listing messages: %w", err)
	}
	if len(msgs) == 0 {
		return "", threadID, fmt.Errorf("run completed but produced no reply")
	}
	return msgs[0].Text, threadID, nil
}
