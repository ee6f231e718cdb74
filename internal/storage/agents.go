package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const agentColumns = `id, user_id, name, description, instructions, public, active,
	assistant_id, vector_store_id, created_at, updated_at`

func scanAgent(row interface{ Scan(...any) error }) (Agent, error) {
	var a Agent
	var public, active int
	var assistantID, vectorStoreID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.Instructions,
		&public, &active, &assistantID, &vectorStoreID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, err
	}
	a.Public = public != 0
	a.Active = active != 0
	a.AssistantID = assistantID.String
	a.VectorStoreID = vectorStoreID.String
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Agent{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Agent{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return a, nil
}

func (s *Store) CreateAgent(a Agent) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	var assistantID, vectorStoreID any
	if a.AssistantID != "" {
		assistantID = a.AssistantID
	}
	if a.VectorStoreID != "" {
		vectorStoreID = a.VectorStoreID
	}
	_, err := s.db.Exec(`
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Description, a.Instructions,
		boolToInt(a.Public), boolToInt(a.Active), assistantID, vectorStoreID,
		a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetAgent(id string) (Agent, error) {
	row := s.db.QueryRow(`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func (s *Store) ListAgents(limit, offset int) ([]Agent, error) {
	rows, err := s.db.Query(`
		SELECT `+agentColumns+` FROM agents
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ListAgentsMissingAssistant returns agents with no remote assistant
// reference, oldest first. Used by the creation backfill.
func (s *Store) ListAgentsMissingAssistant() ([]Agent, error) {
	rows, err := s.db.Query(`
		SELECT ` + agentColumns + ` FROM agents
		WHERE assistant_id IS NULL OR assistant_id = ''
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgentMeta updates the user-editable agent fields.
func (s *Store) UpdateAgentMeta(id, name, description, instructions string, public, active bool) error {
	res, err := s.db.Exec(`
		UPDATE agents SET name = ?, description = ?, instructions = ?,
			public = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		name, description, instructions, boolToInt(public), boolToInt(active),
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetAssistantID records the remote assistant reference. It is set exactly
// once: a second call for the same agent returns ErrAssistantAlreadySet.
func (s *Store) SetAssistantID(id, assistantID string) error {
	res, err := s.db.Exec(`
		UPDATE agents SET assistant_id = ?, updated_at = ?
		WHERE id = ? AND (assistant_id IS NULL OR assistant_id = '')`,
		assistantID, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetAgent(id); err != nil {
		return err
	}
	return ErrAssistantAlreadySet
}

// ClaimVectorStoreID atomically claims a retrieval index for the agent and
// returns the winning index id. If another caller claimed one first, the
// previously claimed id is returned and vsID is discarded.
func (s *Store) ClaimVectorStoreID(id, vsID string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	var current sql.NullString
	err = tx.QueryRow(`SELECT vector_store_id FROM agents WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if current.Valid && current.String != "" {
		return current.String, nil
	}

	_, err = tx.Exec(`UPDATE agents SET vector_store_id = ?, updated_at = ? WHERE id = ?`,
		vsID, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing claim: %w", err)
	}
	return vsID, nil
}

func (s *Store) DeleteAgent(id string) error {
	res, err := s.db.Exec(`DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
