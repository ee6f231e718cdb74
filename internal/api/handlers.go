// Package api exposes the HTTP surface: agent CRUD, source ingestion, crawl
// jobs, retrain, backfill and chat, all behind bearer auth.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/halcyon/botforge/internal/agents"
	"github.com/halcyon/botforge/internal/assistant"
	"github.com/halcyon/botforge/internal/crawler"
	"github.com/halcyon/botforge/internal/ingest"
	"github.com/halcyon/botforge/internal/storage"
)

const maxIngestBodySize = 10 << 20 // 10MB

// defaultUserID attributes rows when the caller does not name a user; the
// server runs single-tenant behind one API token.
const defaultUserID = "local"

// AgentService is the agent lifecycle surface.
type AgentService interface {
	Create(ctx context.Context, p agents.CreateParams) (storage.Agent, error)
	Get(id string) (storage.Agent, error)
	List(limit, offset int) ([]storage.Agent, error)
	Update(ctx context.Context, id string, p agents.CreateParams) (storage.Agent, error)
	Delete(ctx context.Context, id string) error
}

// IngestService is the source ingestion surface.
type IngestService interface {
	IngestText(ctx context.Context, agentID, userID, text string) (storage.Source, error)
	IngestFile(ctx context.Context, agentID, userID, filename string, data []byte) (storage.Source, error)
	IngestQA(ctx context.Context, agentID, userID, question, answer string) (storage.Source, error)
	ListSources(agentID string, limit, offset int) ([]storage.Source, error)
	DeleteSource(id string) error
}

// CrawlService is the website import surface.
type CrawlService interface {
	Crawl(ctx context.Context, agentID, userID, seedURL string, opts crawler.Options) (storage.CrawlJob, error)
	ListJobs(agentID string, limit, offset int) ([]storage.CrawlJob, error)
	DeleteJob(id string) error
}

// SyncService is the reconciliation surface.
type SyncService interface {
	Retrain(ctx context.Context, agentID string) error
	CreateMissingAssistants(ctx context.Context) (int, map[string]error, error)
}

// ChatService answers user messages.
type ChatService interface {
	Ask(ctx context.Context, agentID, threadID, message string) (string, string, error)
}

// AppDeps bundles the services behind the HTTP API.
type AppDeps struct {
	Agents AgentService
	Ingest IngestService
	Crawl  CrawlService
	Sync   SyncService
	Chat   ChatService
	Token  string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/agents", handleCreateAgent(deps))
		r.Get("/agents", handleListAgents(deps))
		r.Post("/agents/fix-missing", handleFixMissing(deps))
		r.Get("/agents/{id}", handleGetAgent(deps))
		r.Patch("/agents/{id}", handleUpdateAgent(deps))
		r.Delete("/agents/{id}", handleDeleteAgent(deps))

		r.Post("/agents/{id}/sources/text", handleIngestText(deps))
		r.Post("/agents/{id}/sources/file", handleIngestFile(deps))
		r.Post("/agents/{id}/sources/qa", handleIngestQA(deps))
		r.Get("/agents/{id}/sources", handleListSources(deps))
		r.Delete("/agents/{id}/sources/{sourceID}", handleDeleteSource(deps))

		r.Post("/agents/{id}/crawl", handleCrawl(deps))
		r.Get("/agents/{id}/crawl", handleListCrawlJobs(deps))
		r.Delete("/agents/{id}/crawl/{jobID}", handleDeleteCrawlJob(deps))

		r.Post("/agents/{id}/retrain", handleRetrain(deps))
		r.Post("/agents/{id}/chat", handleChat(deps))
	})

	return r
}

func handleCreateAgent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p agents.CreateParams
		if !decodeBody(w, r, &p) {
			return
		}
		if p.UserID == "" {
			p.UserID = defaultUserID
		}

		agent, err := deps.Agents.Create(r.Context(), p)
		if err != nil {
			serviceError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, agent)
	}
}

func handleListAgents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		list, err := deps.Agents.List(limit, offset)
		if err != nil {
			serviceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"agents": emptyIfNil(list)})
	}
}

func handleGetAgent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := deps.Agents.Get(chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, agent)
	}
}

func handleUpdateAgent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p agents.CreateParams
		if !decodeBody(w, r, &p) {
			return
		}
		agent, err := deps.Agents.Update(r.Context(), chi.URLParam(r, "id"), p)
		if err != nil {
			serviceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, agent)
	}
}

func handleDeleteAgent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Agents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			serviceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type textSourceRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func handleIngestText(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req textSourceRequest
		if !decodeBody(w, r, &req) {
			return
		}
		src, err := deps.Ingest.IngestText(r.Context(), chi.URLParam(r, "id"), userOrDefault(req.UserID), req.Text)
		respondIngest(w, src, err)
	}
}

type fileSourceRequest struct {
	UserID   string `json:"user_id"`
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
}

func handleIngestFile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fileSourceRequest
		if !decodeBody(w, r, &req) {
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content must be base64: %v", err)
			return
		}
		src, err := deps.Ingest.IngestFile(r.Context(), chi.URLParam(r, "id"), userOrDefault(req.UserID), req.Filename, data)
		respondIngest(w, src, err)
	}
}

type qaSourceRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func handleIngestQA(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req qaSourceRequest
		if !decodeBody(w, r, &req) {
			return
		}
		src, err := deps.Ingest.IngestQA(r.Context(), chi.URLParam(r, "id"), userOrDefault(req.UserID), req.Question, req.Answer)
		respondIngest(w, src, err)
	}
}

func handleListSources(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		list, err := deps.Ingest.ListSources(chi.URLParam(r, "id"), limit, offset)
		if err != nil {
			serviceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"sources": emptyIfNil(list)})
	}
}

func handleDeleteSource(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Ingest.DeleteSource(chi.URLParam(r, "sourceID")); err != nil {
			serviceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type crawlRequest struct {
	UserID       string `json:"user_id"`
	URL          string `json:"url"`
	Limit        int    `json:"limit"`
	ReturnFormat string `json:"return_format"`
	AntiBot      bool   `json:"anti_bot"`
	Proxies      bool   `json:"proxies"`
	Subdomains   bool   `json:"subdomains"`
	PerPage      bool   `json:"per_page"`
}

func handleCrawl(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req crawlRequest
		if !decodeBody(w, r, &req) {
			return
		}
		opts := crawler.Options{
			Limit:        req.Limit,
			ReturnFormat: req.ReturnFormat,
			AntiBot:      req.AntiBot,
			Proxies:      req.Proxies,
			Subdomains:   req.Subdomains,
			PerPage:      req.PerPage,
		}
		job, err := deps.Crawl.Crawl(r.Context(), chi.URLParam(r, "id"), userOrDefault(req.UserID), req.URL, opts)
		if err != nil {
			if job.ID == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			// The job row records the failure; surface both.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": err.Error(), "type": "api_error"},
				"job":   job,
			})
			return
		}
		respondJSON(w, http.StatusCreated, job)
	}
}

func handleListCrawlJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		jobs, err := deps.Crawl.ListJobs(chi.URLParam(r, "id"), limit, offset)
		if err != nil {
			serviceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"jobs": emptyIfNil(jobs)})
	}
}

func handleDeleteCrawlJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Crawl.DeleteJob(chi.URLParam(r, "jobID")); err != nil {
			serviceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRetrain(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sync.Retrain(r.Context(), chi.URLParam(r, "id")); err != nil {
			serviceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "retrained"})
	}
}

func handleFixMissing(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		created, failed, err := deps.Sync.CreateMissingAssistants(r.Context())
		if err != nil {
			serviceError(w, err)
			return
		}
		failures := make(map[string]string, len(failed))
		for id, ferr := range failed {
			failures[id] = ferr.Error()
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"created": created,
			"failed":  failures,
		})
	}
}

type chatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		reply, threadID, err := deps.Chat.Ask(r.Context(), chi.URLParam(r, "id"), req.ThreadID, req.Message)
		if err != nil {
			serviceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{
			"reply":     reply,
			"thread_id": threadID,
		})
	}
}

// respondIngest maps ingestion outcomes to the wire: 201 indexed, 202 saved
// with a warning when indexing failed, errors otherwise.
func respondIngest(w http.ResponseWriter, src storage.Source, err error) {
	var idxErr *ingest.IndexingError
	switch {
	case err == nil:
		respondJSON(w, http.StatusCreated, map[string]any{
			"status": "indexed",
			"source": src,
		})
	case errors.As(err, &idxErr):
		respondJSON(w, http.StatusAccepted, map[string]any{
			"status":  "saved",
			"warning": "source saved but not yet searchable; indexing will be retried",
			"source":  src,
		})
	default:
		serviceError(w, err)
	}
}

// serviceError maps service-layer errors to HTTP statuses.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, ingest.ErrInvalid), errors.Is(err, agents.ErrInvalid):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, assistant.ErrPollTimeout):
		httpError(w, http.StatusGatewayTimeout, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func userOrDefault(userID string) string {
	if userID == "" {
		return defaultUserID
	}
	return userID
}

func emptyIfNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
