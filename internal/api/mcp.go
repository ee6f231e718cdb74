package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/halcyon/botforge/internal/ingest"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Agents AgentService
	Ingest IngestService
	Chat   ChatService
}

// NewMCPServer creates an MCP server exposing agent knowledge ingestion and
// chat as tools, plus the agent list as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"botforge",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("botforge — manage chatbot agents, feed them knowledge sources, and talk to them."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ingest_text",
			mcp.WithDescription("Store a piece of text as a knowledge source for an agent."),
			mcp.WithString("agent_id", mcp.Description("Target agent id"), mcp.Required()),
			mcp.WithString("text", mcp.Description("The text content to store"), mcp.Required()),
		),
		mcpIngestText(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_agent",
			mcp.WithDescription("Send a message to an agent and return its reply. Pass thread_id to continue a conversation."),
			mcp.WithString("agent_id", mcp.Description("Target agent id"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The message to send"), mcp.Required()),
			mcp.WithString("thread_id", mcp.Description("Existing conversation thread id")),
		),
		mcpAskAgent(deps),
	)

	s.AddTool(
		mcp.NewTool("list_agents",
			mcp.WithDescription("List configured agents with their source status."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of agents (default 20)")),
		),
		mcpListAgents(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"botforge://agents",
			"Agents",
			mcp.WithResourceDescription("All configured agents as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAgents(deps),
	)

	return s
}

func mcpIngestText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentID, err := req.RequireString("agent_id")
		if err != nil {
			return mcpError("agent_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		src, err := deps.Ingest.IngestText(ctx, agentID, defaultUserID, text)
		var idxErr *ingest.IndexingError
		if errors.As(err, &idxErr) {
			return mcpText(fmt.Sprintf("Source %s saved; indexing pending retry", src.ID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("ingest failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Source %s stored and indexed (%d chars)", src.ID, src.Chars)), nil
	}
}

func mcpAskAgent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentID, err := req.RequireString("agent_id")
		if err != nil {
			return mcpError("agent_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		threadID := req.GetString("thread_id", "")

		reply, threadID, err := deps.Chat.Ask(ctx, agentID, threadID, message)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{"reply": reply, "thread_id": threadID})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListAgents(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		list, err := deps.Agents.List(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("listing agents failed: %v", err)), nil
		}

		type agentSummary struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Active    bool   `json:"active"`
			Ready     bool   `json:"ready"`
			CreatedAt string `json:"created_at"`
		}
		summaries := make([]agentSummary, len(list))
		for i, a := range list {
			summaries[i] = agentSummary{
				ID:        a.ID,
				Name:      a.Name,
				Active:    a.Active,
				Ready:     a.AssistantID != "",
				CreatedAt: a.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal agents: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceAgents(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := deps.Agents.List(100, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list agents: %w", err)
		}

		b, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal agents: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
