package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) SaveSource(src Source) error {
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO sources (id, agent_id, user_id, type, content, chars, indexed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.AgentID, src.UserID, src.Type, src.Content, src.Chars,
		boolToInt(src.Indexed), src.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSource(id string) (Source, error) {
	row := s.db.QueryRow(`
		SELECT id, agent_id, user_id, type, content, chars, indexed, created_at
		FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

func (s *Store) ListSources(agentID string, limit, offset int) ([]Source, error) {
	rows, err := s.db.Query(`
		SELECT id, agent_id, user_id, type, content, chars, indexed, created_at
		FROM sources WHERE agent_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, agentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, src)
	}
	return results, rows.Err()
}

func (s *Store) CountSources(agentID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sources WHERE agent_id = ?`, agentID).Scan(&n)
	return n, err
}

// MarkSourceIndexed flags a source as attached to the agent's retrieval
// index. Indexed sources are never re-processed.
func (s *Store) MarkSourceIndexed(id string) error {
	res, err := s.db.Exec(`UPDATE sources SET indexed = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeleteSource(id string) error {
	res, err := s.db.Exec(`DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanSource(row interface{ Scan(...any) error }) (Source, error) {
	var src Source
	var indexed int
	var createdAt string
	err := row.Scan(&src.ID, &src.AgentID, &src.UserID, &src.Type, &src.Content,
		&src.Chars, &indexed, &createdAt)
	if err == sql.ErrNoRows {
		return Source{}, ErrNotFound
	}
	if err != nil {
		return Source{}, err
	}
	src.Indexed = indexed != 0
	if src.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Source{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return src, nil
}
