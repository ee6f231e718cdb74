// Package agents implements the agent lifecycle. Local rows are the source
// of truth; the remote assistant is kept in step best-effort, with failures
// surfaced but never blocking the local write.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/halcyon/botforge/internal/storage"
)

// ErrInvalid marks agent input rejected before anything is written.
var ErrInvalid = errors.New("invalid agent")

// Gateway is the slice of the remote assistant API the lifecycle needs.
type Gateway interface {
	CreateAssistant(ctx context.Context, name, description, instructions, model string) (string, error)
	DeleteAssistant(ctx context.Context, assistantID string) error
}

// MetadataSyncer pushes local agent metadata to the remote assistant.
type MetadataSyncer interface {
	UpdateMetadata(ctx context.Context, agentID string) error
}

// Store is the storage surface agent CRUD needs.
type Store interface {
	CreateAgent(a storage.Agent) error
	GetAgent(id string) (storage.Agent, error)
	ListAgents(limit, offset int) ([]storage.Agent, error)
	UpdateAgentMeta(id, name, description, instructions string, public, active bool) error
	SetAssistantID(id, assistantID string) error
	DeleteAgent(id string) error
}

// CreateParams carries the caller-provided agent fields.
type CreateParams struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
	Public       bool   `json:"public"`
	Active       bool   `json:"active"`
}

// Service coordinates agent rows with their remote assistants.
type Service struct {
	store  Store
	gw     Gateway
	syncer MetadataSyncer
	model  string
	logger *slog.Logger
}

func NewService(store Store, gw Gateway, syncer MetadataSyncer, model string) *Service {
	return &Service{
		store:  store,
		gw:     gw,
		syncer: syncer,
		model:  model,
		logger: slog.Default(),
	}
}

// Create inserts the agent row, then tries to create its remote assistant.
// A gateway failure leaves the assistant reference empty; the backfill picks
// the agent up later.
func (s *Service) Create(ctx context.Context, p CreateParams) (storage.Agent, error) {
	if p.Name == "" {
		return storage.Agent{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}

	agent := storage.Agent{
		ID:           uuid.NewString(),
		UserID:       p.UserID,
		Name:         p.Name,
		Description:  p.Description,
		Instructions: p.Instructions,
		Public:       p.Public,
		Active:       p.Active,
	}
	if err := s.store.CreateAgent(agent); err != nil {
		return storage.Agent{}, fmt.Errorf("creating agent: %w", err)
	}

	assistantID, err := s.gw.CreateAssistant(ctx, p.Name, p.Description, p.Instructions, s.model)
	if err != nil {
		s.logger.Warn("assistant creation deferred", "agent_id", agent.ID, "error", err)
		return s.store.GetAgent(agent.ID)
	}
	if err := s.store.SetAssistantID(agent.ID, assistantID); err != nil {
		s.logger.Warn("recording assistant id failed", "agent_id", agent.ID, "error", err)
	}
	return s.store.GetAgent(agent.ID)
}

// Get returns one agent.
func (s *Service) Get(id string) (storage.Agent, error) {
	return s.store.GetAgent(id)
}

// List returns a page of agents.
func (s *Service) List(limit, offset int) ([]storage.Agent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListAgents(limit, offset)
}

// Update writes the new agent fields locally, then pushes the metadata to the
// remote assistant best-effort.
func (s *Service) Update(ctx context.Context, id string, p CreateParams) (storage.Agent, error) {
	if p.Name == "" {
		return storage.Agent{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if err := s.store.UpdateAgentMeta(id, p.Name, p.Description, p.Instructions, p.Public, p.Active); err != nil {
		return storage.Agent{}, fmt.Errorf("updating agent %s: %w", id, err)
	}

	if err := s.syncer.UpdateMetadata(ctx, id); err != nil {
		s.logger.Warn("metadata sync failed", "agent_id", id, "error", err)
	}
	return s.store.GetAgent(id)
}

// Delete removes the remote assistant best-effort, then deletes the agent row
// regardless. Sources and crawl jobs cascade with the row.
func (s *Service) Delete(ctx context.Context, id string) error {
	agent, err := s.store.GetAgent(id)
	if err != nil {
		return err
	}

	if agent.AssistantID != "" {
		if err := s.gw.DeleteAssistant(ctx, agent.AssistantID); err != nil {
			s.logger.Warn("remote assistant delete failed, removing row anyway",
				"agent_id", id, "assistant_id", agent.AssistantID, "error", err)
		}
	}
	if err := s.store.DeleteAgent(id); err != nil {
		return fmt.Errorf("deleting agent %s: %w", id, err)
	}
	return nil
}
