package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) CreateCrawlJob(j CrawlJob) error {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = now
	}
	if j.Status == "" {
		j.Status = CrawlProcessing
	}
	_, err := s.db.Exec(`
		INSERT INTO crawl_jobs (id, agent_id, user_id, url, status, job_id, result_count, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.AgentID, j.UserID, j.URL, j.Status, j.JobID, j.ResultCount, j.Error,
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetCrawlJob(id string) (CrawlJob, error) {
	row := s.db.QueryRow(`
		SELECT id, agent_id, user_id, url, status, job_id, result_count, error, created_at, updated_at
		FROM crawl_jobs WHERE id = ?`, id)
	return scanCrawlJob(row)
}

func (s *Store) ListCrawlJobs(agentID string, limit, offset int) ([]CrawlJob, error) {
	rows, err := s.db.Query(`
		SELECT id, agent_id, user_id, url, status, job_id, result_count, error, created_at, updated_at
		FROM crawl_jobs WHERE agent_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, agentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CrawlJob
	for rows.Next() {
		j, err := scanCrawlJob(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, j)
	}
	return results, rows.Err()
}

// UpdateCrawlJobStatus advances the crawl job state machine. The remote job
// id, result count, and error message are recorded alongside the status.
func (s *Store) UpdateCrawlJobStatus(id, status, jobID string, resultCount int, errMsg string) error {
	res, err := s.db.Exec(`
		UPDATE crawl_jobs SET status = ?, job_id = ?, result_count = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		status, jobID, resultCount, errMsg, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteCrawlJob removes a crawl job record. Jobs are never deleted
// automatically; this backs the explicit user action only.
func (s *Store) DeleteCrawlJob(id string) error {
	res, err := s.db.Exec(`DELETE FROM crawl_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanCrawlJob(row interface{ Scan(...any) error }) (CrawlJob, error) {
	var j CrawlJob
	var createdAt, updatedAt string
	err := row.Scan(&j.ID, &j.AgentID, &j.UserID, &j.URL, &j.Status, &j.JobID,
		&j.ResultCount, &j.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return CrawlJob{}, ErrNotFound
	}
	if err != nil {
		return CrawlJob{}, err
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return CrawlJob{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return CrawlJob{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return j, nil
}
