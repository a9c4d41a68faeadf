package store

import (
	"database/sql"
	"encoding/json"

	_ "github.com/glebarez/go-sqlite"
)

// MemoryStore persists memories, learnings, execution records and the
// conversation history for each project. All tables are append-mostly;
// execution records transition in_progress → terminal exactly once.
type MemoryStore struct {
	DB *sql.DB
}

func NewMemoryStore(dbPath string) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT,
			type TEXT,
			category TEXT,
			content TEXT,
			metadata TEXT,
			importance INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_accessed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS learnings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT,
			learning_type TEXT,
			pattern TEXT,
			insight TEXT,
			applicable_contexts TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS execution_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT,
			goal TEXT,
			plan TEXT,
			execution_steps TEXT,
			evaluation_results TEXT,
			final_outcome TEXT DEFAULT 'in_progress',
			lessons_learned TEXT,
			total_iterations INTEGER DEFAULT 0,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			return nil, err
		}
	}

	return &MemoryStore{DB: db}, nil
}

func (s *MemoryStore) Close() error {
	return s.DB.Close()
}

// --- conversation history ---

func (s *MemoryStore) AddMessage(projectID string, role string, content string) error {
	query := `INSERT INTO messages (project_id, role, content) VALUES (?, ?, ?)`
	_, err := s.DB.Exec(query, projectID, role, content)
	return err
}

// GetHistory returns the last limit messages in chronological order.
func (s *MemoryStore) GetHistory(projectID string, limit int) ([]Message, error) {
	query := `SELECT role, content FROM messages WHERE project_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`
	rows, err := s.DB.Query(query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}

// --- memories ---

func (s *MemoryStore) StoreMemory(projectID string, entry MemoryEntry) error {
	meta := ""
	if entry.Metadata != nil {
		data, err := json.Marshal(entry.Metadata)
		if err == nil {
			meta = string(data)
		}
	}
	query := `INSERT INTO memories (project_id, type, category, content, metadata, importance) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.DB.Exec(query, projectID, entry.Type, entry.Category, entry.Content, meta, entry.Importance)
	return err
}

// RetrieveMemories returns the most recent memories first and bumps their
// last_accessed_at.
func (s *MemoryStore) RetrieveMemories(projectID string, limit int) ([]MemoryEntry, error) {
	query := `SELECT id, type, category, content, metadata, importance, created_at, last_accessed_at
		FROM memories WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.DB.Query(query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []MemoryEntry
	var ids []any
	for rows.Next() {
		var (
			id       int64
			e        MemoryEntry
			category sql.NullString
			meta     sql.NullString
		)
		if err := rows.Scan(&id, &e.Type, &category, &e.Content, &meta, &e.Importance, &e.CreatedAt, &e.LastAccessedAt); err != nil {
			return nil, err
		}
		e.Category = category.String
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		entries = append(entries, e)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		_, _ = s.DB.Exec(`UPDATE memories SET last_accessed_at = datetime('now') WHERE id = ?`, id)
	}

	return entries, nil
}

// --- learnings ---

func (s *MemoryStore) StoreLearning(projectID string, entry LearningEntry) error {
	contexts := ""
	if len(entry.ApplicableContexts) > 0 {
		data, err := json.Marshal(entry.ApplicableContexts)
		if err == nil {
			contexts = string(data)
		}
	}
	query := `INSERT INTO learnings (project_id, learning_type, pattern, insight, applicable_contexts) VALUES (?, ?, ?, ?, ?)`
	_, err := s.DB.Exec(query, projectID, entry.LearningType, entry.Pattern, entry.Insight, contexts)
	return err
}

func (s *MemoryStore) RetrieveLearnings(projectID string, limit int) ([]LearningEntry, error) {
	query := `SELECT learning_type, pattern, insight, applicable_contexts, created_at
		FROM learnings WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.DB.Query(query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LearningEntry
	for rows.Next() {
		var (
			e        LearningEntry
			contexts sql.NullString
		)
		if err := rows.Scan(&e.LearningType, &e.Pattern, &e.Insight, &contexts, &e.CreatedAt); err != nil {
			return nil, err
		}
		if contexts.Valid && contexts.String != "" {
			_ = json.Unmarshal([]byte(contexts.String), &e.ApplicableContexts)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- execution records ---

// BeginRecord opens the audit record for one invocation.
func (s *MemoryStore) BeginRecord(projectID, goal string, planJSON []byte) (int64, error) {
	query := `INSERT INTO execution_records (project_id, goal, plan) VALUES (?, ?, ?)`
	res, err := s.DB.Exec(query, projectID, goal, string(planJSON))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinalizeRecord transitions a record from in_progress to its terminal
// outcome. A record that already terminated is left untouched.
func (s *MemoryStore) FinalizeRecord(id int64, outcome FinalOutcome, stepsJSON, evalJSON []byte, lessons []string, totalIterations int) error {
	lessonsStr := ""
	if len(lessons) > 0 {
		data, err := json.Marshal(lessons)
		if err == nil {
			lessonsStr = string(data)
		}
	}
	query := `UPDATE execution_records
		SET final_outcome = ?, execution_steps = ?, evaluation_results = ?, lessons_learned = ?, total_iterations = ?, completed_at = datetime('now')
		WHERE id = ? AND final_outcome = 'in_progress'`
	_, err := s.DB.Exec(query, string(outcome), string(stepsJSON), string(evalJSON), lessonsStr, totalIterations, id)
	return err
}

// GetRecord loads one execution record by id.
func (s *MemoryStore) GetRecord(id int64) (*ExecutionRecord, error) {
	query := `SELECT id, project_id, goal, plan, execution_steps, evaluation_results, final_outcome, lessons_learned, total_iterations, started_at, completed_at
		FROM execution_records WHERE id = ?`
	row := s.DB.QueryRow(query, id)

	var (
		r           ExecutionRecord
		planStr     sql.NullString
		stepsStr    sql.NullString
		evalStr     sql.NullString
		lessonsStr  sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.ProjectID, &r.Goal, &planStr, &stepsStr, &evalStr, &r.FinalOutcome, &lessonsStr, &r.TotalIterations, &r.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if planStr.Valid {
		r.Plan = json.RawMessage(planStr.String)
	}
	if stepsStr.Valid {
		r.ExecutionSteps = json.RawMessage(stepsStr.String)
	}
	if evalStr.Valid {
		r.EvaluationResults = json.RawMessage(evalStr.String)
	}
	if lessonsStr.Valid && lessonsStr.String != "" {
		_ = json.Unmarshal([]byte(lessonsStr.String), &r.LessonsLearned)
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

// PruneMessages keeps only the most recent keep messages for a project.
func (s *MemoryStore) PruneMessages(projectID string, keep int) error {
	query := `DELETE FROM messages WHERE project_id = ? AND id NOT IN (
		SELECT id FROM messages WHERE project_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?)`
	_, err := s.DB.Exec(query, projectID, projectID, keep)
	return err
}
