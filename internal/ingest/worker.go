package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halcyon/botforge/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetSource(id string) (storage.Source, error)
	MarkSourceIndexed(id string) error
}

// SourceProcessor runs the indexing pipeline for a saved source.
type SourceProcessor interface {
	Process(ctx context.Context, src storage.Source, body []byte, filename, mimeType string) error
}

// Worker retries source_index jobs from the SQLite job queue until the
// source is attached to its agent's index or the attempt budget runs out.
type Worker struct {
	store  JobStore
	proc   SourceProcessor
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, proc SourceProcessor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		proc:   proc,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single source_index job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeSourceIndex})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload indexJobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	src, err := w.store.GetSource(payload.SourceID)
	if errors.Is(err, storage.ErrNotFound) {
		// Source was deleted while the retry was queued; nothing to index.
		w.logger.Info("source gone, dropping retry", "source_id", payload.SourceID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading source %s: %w", payload.SourceID, err)
	}
	if src.Indexed {
		return nil
	}

	body, filename, mimeType, err := w.documentFromPayload(src, payload)
	if err != nil {
		return err
	}

	if err := w.proc.Process(ctx, src, body, filename, mimeType); err != nil {
		return fmt.Errorf("indexing source %s: %w", src.ID, err)
	}
	if err := w.store.MarkSourceIndexed(src.ID); err != nil {
		return fmt.Errorf("marking source %s indexed: %w", src.ID, err)
	}
	return nil
}

func (w *Worker) documentFromPayload(src storage.Source, payload indexJobPayload) ([]byte, string, string, error) {
	if payload.BodyB64 != "" {
		body, err := base64.StdEncoding.DecodeString(payload.BodyB64)
		if err != nil {
			return nil, "", "", fmt.Errorf("decoding payload body: %w", err)
		}
		return body, payload.Filename, payload.MimeType, nil
	}
	return documentFor(src)
}
