// Package sync keeps remote assistants consistent with their local agent
// configuration: metadata pushes, retrieval tool wiring, full retrains, and
// backfill of assistants that were never created.
package sync

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/halcyon/botforge/internal/assistant"
	"github.com/halcyon/botforge/internal/storage"
)

// backfillConcurrency bounds parallel remote creations during a backfill run.
const backfillConcurrency = 4

// Gateway is the slice of the remote assistant API the synchronizer needs.
type Gateway interface {
	CreateAssistant(ctx context.Context, name, description, instructions, model string) (string, error)
	UpdateAssistant(ctx context.Context, assistantID string, req assistant.UpdateAssistantRequest) error
}

// Indexer resolves an agent's retrieval index, creating it when needed.
type Indexer interface {
	EnsureIndex(ctx context.Context, agentID string) (string, error)
}

// Store is the storage surface the synchronizer reads and writes.
type Store interface {
	GetAgent(id string) (storage.Agent, error)
	ListAgentsMissingAssistant() ([]storage.Agent, error)
	SetAssistantID(id, assistantID string) error
	CountSources(agentID string) (int, error)
}

// Synchronizer pushes local agent state to the remote assistant API.
type Synchronizer struct {
	store   Store
	gw      Gateway
	indexer Indexer
	model   string
	logger  *slog.Logger
}

func New(store Store, gw Gateway, indexer Indexer, model string) *Synchronizer {
	return &Synchronizer{
		store:   store,
		gw:      gw,
		indexer: indexer,
		model:   model,
		logger:  slog.Default(),
	}
}

// SyncAssistant points the agent's remote assistant at the given retrieval
// index and enables file search. Called after a source has been attached so
// the assistant starts answering from it.
func (s *Synchronizer) SyncAssistant(ctx context.Context, agentID, indexID string) error {
	agent, err := s.store.GetAgent(agentID)
	if err != nil {
		return fmt.Errorf("loading agent %s: %w", agentID, err)
	}
	if agent.AssistantID == "" {
		return fmt.Errorf("agent %s has no remote assistant", agentID)
	}

	tools := []assistant.Tool{assistant.FileSearchTool}
	req := assistant.UpdateAssistantRequest{
		Tools: &tools,
		ToolResources: &assistant.ToolResources{
			FileSearch: &assistant.FileSearchResources{VectorStoreIDs: []string{indexID}},
		},
	}
	if err := s.gw.UpdateAssistant(ctx, agent.AssistantID, req); err != nil {
		return fmt.Errorf("syncing assistant for agent %s: %w", agentID, err)
	}
	return nil
}

// UpdateMetadata pushes the agent's name, description and instructions to the
// remote assistant without touching its tool configuration.
func (s *Synchronizer) UpdateMetadata(ctx context.Context, agentID string) error {
	agent, err := s.store.GetAgent(agentID)
	if err != nil {
		return fmt.Errorf("loading agent %s: %w", agentID, err)
	}
	if agent.AssistantID == "" {
		return fmt.Errorf("agent %s has no remote assistant", agentID)
	}

	req := assistant.UpdateAssistantRequest{
		Name:         assistant.String(agent.Name),
		Description:  assistant.String(agent.Description),
		Instructions: assistant.String(agent.Instructions),
	}
	if err := s.gw.UpdateAssistant(ctx, agent.AssistantID, req); err != nil {
		return fmt.Errorf("updating metadata for agent %s: %w", agentID, err)
	}
	return nil
}

// Retrain rebuilds the remote assistant's full configuration from local
// state. Metadata is always pushed. The file search tool and the retrieval
// index are included only when the agent has at least one source; otherwise
// the tool list is set to empty, which disables retrieval remotely. An agent
// with no sources never gets an index created on its behalf.
func (s *Synchronizer) Retrain(ctx context.Context, agentID string) error {
	agent, err := s.store.GetAgent(agentID)
	if err != nil {
		return fmt.Errorf("loading agent %s: %w", agentID, err)
	}
	if agent.AssistantID == "" {
		return fmt.Errorf("agent %s has no remote assistant", agentID)
	}

	count, err := s.store.CountSources(agentID)
	if err != nil {
		return fmt.Errorf("counting sources for agent %s: %w", agentID, err)
	}

	req := assistant.UpdateAssistantRequest{
		Name:         assistant.String(agent.Name),
		Description:  assistant.String(agent.Description),
		Instructions: assistant.String(agent.Instructions),
	}
	if count > 0 {
		indexID, err := s.indexer.EnsureIndex(ctx, agentID)
		if err != nil {
			return fmt.Errorf("ensuring index for agent %s: %w", agentID, err)
		}
		tools := []assistant.Tool{assistant.FileSearchTool}
		req.Tools = &tools
		req.ToolResources = &assistant.ToolResources{
			FileSearch: &assistant.FileSearchResources{VectorStoreIDs: []string{indexID}},
		}
	} else {
		tools := []assistant.Tool{}
		req.Tools = &tools
	}

	if err := s.gw.UpdateAssistant(ctx, agent.AssistantID, req); err != nil {
		return fmt.Errorf("retraining agent %s: %w", agentID, err)
	}
	s.logger.Info("assistant retrained", "agent_id", agentID, "sources", count)
	return nil
}

// CreateMissingAssistants creates remote assistants for every agent that has
// none, a bounded number at a time. One agent's failure does not stop the
// rest; failures are returned per agent id.
func (s *Synchronizer) CreateMissingAssistants(ctx context.Context) (created int, failed map[string]error, err error) {
	agents, err := s.store.ListAgentsMissingAssistant()
	if err != nil {
		return 0, nil, fmt.Errorf("listing agents without assistants: %w", err)
	}

	results := make([]error, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillConcurrency)
	for i, agent := range agents {
		g.Go(func() error {
			results[i] = s.createFor(gctx, agent)
			return nil
		})
	}
	_ = g.Wait() // goroutines report through results, never through errgroup

	failed = make(map[string]error)
	for i, agent := range agents {
		if results[i] != nil {
			failed[agent.ID] = results[i]
			s.logger.Error("assistant backfill failed", "agent_id", agent.ID, "error", results[i])
			continue
		}
		created++
	}
	return created, failed, nil
}

func (s *Synchronizer) createFor(ctx context.Context, agent storage.Agent) error {
	assistantID, err := s.gw.CreateAssistant(ctx, agent.Name, agent.Description, agent.Instructions, s.model)
	if err != nil {
		return fmt.Errorf("creating assistant: %w", err)
	}
	if err := s.store.SetAssistantID(agent.ID, assistantID); err != nil {
		return fmt.Errorf("recording assistant id: %w", err)
	}
	return nil
}
