package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/halcyon/botforge/internal/ingest"
	"github.com/halcyon/botforge/internal/storage"
)

// Ingestor persists one crawled page as a website source.
type Ingestor interface {
	IngestWebsite(ctx context.Context, agentID, userID string, page ingest.Page) (storage.Source, error)
}

// JobStore tracks crawl jobs.
type JobStore interface {
	CreateCrawlJob(j storage.CrawlJob) error
	GetCrawlJob(id string) (storage.CrawlJob, error)
	ListCrawlJobs(agentID string, limit, offset int) ([]storage.CrawlJob, error)
	UpdateCrawlJobStatus(id, status, jobID string, resultCount int, errMsg string) error
	DeleteCrawlJob(id string) error
}

// Crawler performs the bulk crawl call.
type Crawler interface {
	Crawl(ctx context.Context, seedURL string, opts Options) ([]Page, error)
}

// Orchestrator runs the crawl job state machine:
// processing -> completed -> imported, or processing -> error.
type Orchestrator struct {
	store     JobStore
	crawler   Crawler
	ingestor  Ingestor
	pageLimit int
	logger    *slog.Logger
}

func NewOrchestrator(store JobStore, crawler Crawler, ingestor Ingestor, pageLimit int) *Orchestrator {
	if pageLimit <= 0 {
		pageLimit = 10
	}
	return &Orchestrator{
		store:     store,
		crawler:   crawler,
		ingestor:  ingestor,
		pageLimit: pageLimit,
		logger:    slog.Default(),
	}
}

// Crawl imports a website for an agent. The job row is created before the
// remote call and records the outcome either way. Pages persisted before a
// later failure are kept; result_count is the number of sources actually
// written.
func (o *Orchestrator) Crawl(ctx context.Context, agentID, userID, seedURL string, opts Options) (storage.CrawlJob, error) {
	if err := validateSeedURL(seedURL); err != nil {
		return storage.CrawlJob{}, err
	}

	job := storage.CrawlJob{
		ID:      uuid.NewString(),
		AgentID: agentID,
		UserID:  userID,
		URL:     seedURL,
		Status:  storage.CrawlProcessing,
	}
	if err := o.store.CreateCrawlJob(job); err != nil {
		return storage.CrawlJob{}, fmt.Errorf("creating crawl job: %w", err)
	}

	if opts.Limit <= 0 {
		opts.Limit = o.pageLimit
	}
	if opts.ReturnFormat == "" {
		opts.ReturnFormat = "markdown"
	}

	pages, err := o.crawler.Crawl(ctx, seedURL, opts)
	if err != nil {
		o.fail(job.ID, err.Error())
		return o.current(job), fmt.Errorf("crawling %s: %w", seedURL, err)
	}
	if len(pages) == 0 {
		o.fail(job.ID, "crawl returned no pages")
		return o.current(job), fmt.Errorf("crawling %s: no pages returned", seedURL)
	}

	if opts.ReturnFormat == "html" {
		for i := range pages {
			pages[i].Content = StripHTML(pages[i].Content)
		}
	}

	if err := o.store.UpdateCrawlJobStatus(job.ID, storage.CrawlCompleted, "", len(pages), ""); err != nil {
		o.logger.Warn("recording crawl completion failed", "crawl_job_id", job.ID, "error", err)
	}

	persisted := o.persist(ctx, agentID, userID, seedURL, pages, opts.PerPage)
	if persisted == 0 {
		o.fail(job.ID, "no pages could be persisted")
		return o.current(job), fmt.Errorf("importing %s: no pages could be persisted", seedURL)
	}

	if err := o.store.UpdateCrawlJobStatus(job.ID, storage.CrawlImported, "", persisted, ""); err != nil {
		o.logger.Warn("recording crawl import failed", "crawl_job_id", job.ID, "error", err)
	}
	return o.current(job), nil
}

// persist writes the crawled pages as website sources, either one source per
// page or a single aggregated source. Per-page failures are logged and
// skipped; already-written sources are never rolled back.
func (o *Orchestrator) persist(ctx context.Context, agentID, userID, seedURL string, pages []Page, perPage bool) int {
	if !perPage {
		var parts []string
		for _, p := range pages {
			parts = append(parts, p.Content)
		}
		aggregate := ingest.Page{URL: seedURL, Content: strings.Join(parts, "\n\n")}
		if _, err := o.ingestor.IngestWebsite(ctx, agentID, userID, aggregate); err != nil {
			if isIndexingError(err) {
				return len(pages)
			}
			o.logger.Error("persisting aggregated crawl failed", "url", seedURL, "error", err)
			return 0
		}
		return len(pages)
	}

	persisted := 0
	for _, p := range pages {
		if _, err := o.ingestor.IngestWebsite(ctx, agentID, userID, ingest.Page{URL: p.URL, Content: p.Content}); err != nil {
			if isIndexingError(err) {
				persisted++
				continue
			}
			o.logger.Warn("persisting crawled page failed", "url", p.URL, "error", err)
			continue
		}
		persisted++
	}
	return persisted
}

// ListJobs returns a page of an agent's crawl jobs.
func (o *Orchestrator) ListJobs(agentID string, limit, offset int) ([]storage.CrawlJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return o.store.ListCrawlJobs(agentID, limit, offset)
}

// DeleteJob removes a crawl job record. Jobs are never deleted automatically.
func (o *Orchestrator) DeleteJob(id string) error {
	return o.store.DeleteCrawlJob(id)
}

func (o *Orchestrator) fail(jobID, msg string) {
	if err := o.store.UpdateCrawlJobStatus(jobID, storage.CrawlError, "", 0, msg); err != nil {
		o.logger.Error("recording crawl failure failed", "crawl_job_id", jobID, "error", err)
	}
}

// current re-reads the job row so callers see the final status; the in-memory
// copy is returned when the read fails.
func (o *Orchestrator) current(job storage.CrawlJob) storage.CrawlJob {
	got, err := o.store.GetCrawlJob(job.ID)
	if err != nil {
		return job
	}
	return got
}

// isIndexingError reports whether the source row was written even though
// indexing failed; such pages count as persisted.
func isIndexingError(err error) bool {
	var idxErr *ingest.IndexingError
	return errors.As(err, &idxErr)
}

func validateSeedURL(seedURL string) error {
	u, err := url.Parse(seedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid seed url %q", seedURL)
	}
	return nil
}
