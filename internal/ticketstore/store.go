// Package ticketstore provides SQLite-backed persistence for completed
// workflows and their derived tickets.
package ticketstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/planforge/planforge/internal/tickets"
	"github.com/planforge/planforge/internal/workflow"
)

// Store provides SQLite-backed ticket persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveWorkflow inserts or updates a workflow row
func (s *Store) SaveWorkflow(st *workflow.State, summary *workflow.Summary) error {
	var count, points int
	if summary != nil {
		count, points = summary.TicketsCount, summary.StoryPoints
	}
	_, err := s.db.Exec(`
		INSERT INTO workflows (id, task, source_path, greenfield, status, tickets_count, story_points, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			tickets_count = excluded.tickets_count,
			story_points = excluded.story_points,
			completed_at = excluded.completed_at
	`,
		st.ID,
		st.Task,
		st.SourcePath,
		st.Greenfield(),
		string(st.Status),
		count,
		points,
		time.Now().UTC(),
	)
	return err
}

// SaveTickets replaces a workflow's ticket rows with the given set
func (s *Store) SaveTickets(workflowID string, ts []tickets.Ticket) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tickets WHERE workflow_id = ?`, workflowID); err != nil {
		return err
	}

	for _, t := range ts {
		risks, _ := json.Marshal(t.Risks)
		create, _ := json.Marshal(t.FilesToCreate)
		modify, _ := json.Marshal(t.FilesToModify)
		deps, _ := json.Marshal(t.DependsOn)

		_, err := tx.Exec(`
			INSERT INTO tickets (id, workflow_id, seq, title, description, points, risks, files_to_create, files_to_modify, depends_on, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			t.ID, t.WorkflowID, t.Seq, t.Title, t.Description, t.Points,
			string(risks), string(create), string(modify), string(deps), t.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListTickets returns a workflow's tickets in plan order
func (s *Store) ListTickets(workflowID string) ([]tickets.Ticket, error) {
	rows, err := s.db.Query(`
		SELECT id, workflow_id, seq, title, description, points, risks, files_to_create, files_to_modify, depends_on, created_at
		FROM tickets WHERE workflow_id = ? ORDER BY seq
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tickets.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// WorkflowRow is one row of the workflows table
type WorkflowRow struct {
	ID           string
	Task         string
	Status       string
	TicketsCount int
	StoryPoints  int
	CompletedAt  time.Time
}

// ListWorkflows returns stored workflows, most recently completed first
func (s *Store) ListWorkflows() ([]WorkflowRow, error) {
	rows, err := s.db.Query(`
		SELECT id, task, status, tickets_count, story_points, completed_at
		FROM workflows ORDER BY completed_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkflowRow
	for rows.Next() {
		var r WorkflowRow
		if err := rows.Scan(&r.ID, &r.Task, &r.Status, &r.TicketsCount, &r.StoryPoints, &r.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanTicket(rows *sql.Rows) (tickets.Ticket, error) {
	var t tickets.Ticket
	var description sql.NullString
	var risks, create, modify, deps string

	err := rows.Scan(&t.ID, &t.WorkflowID, &t.Seq, &t.Title, &description,
		&t.Points, &risks, &create, &modify, &deps, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}

	unmarshalList(risks, &t.Risks)
	unmarshalList(create, &t.FilesToCreate)
	unmarshalList(modify, &t.FilesToModify)
	unmarshalList(deps, &t.DependsOn)
	return t, nil
}

func unmarshalList(raw string, dst *[]string) {
	if raw == "" || raw == "null" {
		return
	}
	json.Unmarshal([]byte(raw), dst)
}
