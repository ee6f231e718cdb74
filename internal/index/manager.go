// Package index manages the per-agent remote retrieval index: exactly one
// index per agent, found or created idempotently, with document upload and
// attachment.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/halcyon/botforge/internal/assistant"
	"github.com/halcyon/botforge/internal/storage"
)

// namePrefix makes index names derivable from agent ids, so an index can be
// located by lookup when the local claim is missing.
const namePrefix = "vs_"

// IndexName returns the deterministic index name for an agent.
func IndexName(agentID string) string {
	return namePrefix + agentID
}

// Gateway is the slice of the remote assistant API the manager needs.
type Gateway interface {
	CreateVectorStore(ctx context.Context, name string) (string, error)
	ListVectorStores(ctx context.Context) ([]assistant.VectorStore, error)
	UploadFile(ctx context.Context, data []byte, filename, mimeType, purpose string) (string, error)
	AttachFileToVectorStore(ctx context.Context, vectorStoreID, fileID string) error
}

// ClaimStore persists the per-agent index claim.
type ClaimStore interface {
	GetAgent(id string) (storage.Agent, error)
	ClaimVectorStoreID(id, vsID string) (string, error)
}

// Manager ensures one retrieval index per agent and attaches documents to it.
type Manager struct {
	store  ClaimStore
	gw     Gateway
	group  singleflight.Group
	logger *slog.Logger
}

func NewManager(store ClaimStore, gw Gateway) *Manager {
	return &Manager{
		store:  store,
		gw:     gw,
		logger: slog.Default(),
	}
}

// EnsureIndex returns the id of the agent's retrieval index, creating it if
// none exists. The local claim column is consulted first, then the remote
// name lookup, then creation; the claim CAS decides the winner so concurrent
// first-time ingestions converge on one index. Same-process callers are
// additionally collapsed through a singleflight group.
func (m *Manager) EnsureIndex(ctx context.Context, agentID string) (string, error) {
	v, err, _ := m.group.Do(agentID, func() (any, error) {
		return m.ensure(ctx, agentID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) ensure(ctx context.Context, agentID string) (string, error) {
	agent, err := m.store.GetAgent(agentID)
	if err != nil {
		return "", fmt.Errorf("loading agent %s: %w", agentID, err)
	}
	if agent.VectorStoreID != "" {
		return agent.VectorStoreID, nil
	}

	name := IndexName(agentID)

	stores, err := m.gw.ListVectorStores(ctx)
	if err != nil {
		return "", fmt.Errorf("listing vector stores: %w", err)
	}
	for _, vs := range stores {
		if vs.Name == name {
			return m.claim(agentID, vs.ID)
		}
	}

	created, err := m.gw.CreateVectorStore(ctx, name)
	if err != nil {
		return "", fmt.Errorf("creating vector store %q: %w", name, err)
	}
	return m.claim(agentID, created)
}

func (m *Manager) claim(agentID, vsID string) (string, error) {
	won, err := m.store.ClaimVectorStoreID(agentID, vsID)
	if err != nil {
		return "", fmt.Errorf("claiming vector store for agent %s: %w", agentID, err)
	}
	if won != vsID {
		m.logger.Warn("lost vector store claim, using earlier index",
			"agent_id", agentID, "created", vsID, "claimed", won)
	}
	return won, nil
}

// AttachDocument uploads a document body as a remote file and attaches it to
// the given index, returning the remote file id.
func (m *Manager) AttachDocument(ctx context.Context, indexID string, body []byte, filename, mimeType string) (string, error) {
	fileID, err := m.gw.UploadFile(ctx, body, filename, mimeType, "assistants")
	if err != nil {
		return "", fmt.Errorf("uploading document %q: %w", filename, err)
	}
	if err := m.gw.AttachFileToVectorStore(ctx, indexID, fileID); err != nil {
		return "", fmt.Errorf("attaching document %q: %w", filename, err)
	}
	return fileID, nil
}

// DetectMIME infers a MIME type from a filename extension, defaulting to
// application/octet-stream.
func DetectMIME(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t := mime.TypeByExtension(ext); t != "" {
		if base, _, ok := strings.Cut(t, ";"); ok {
			return strings.TrimSpace(base)
		}
		return t
	}
	return "application/octet-stream"
}
