package ticketstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/planforge/planforge/internal/tickets"
	"github.com/planforge/planforge/internal/workflow"
)

// Publisher derives tickets from a completed workflow, writes their markdown
// files next to the workflow's artifacts, and records them in the store.
type Publisher struct {
	store *Store
	root  string
}

// NewPublisher creates a publisher writing under root/<workflow-id>/tickets
func NewPublisher(store *Store, root string) *Publisher {
	return &Publisher{store: store, root: root}
}

// Publish implements the worker's ticket sink
func (p *Publisher) Publish(st *workflow.State) (*workflow.Summary, error) {
	ts, err := tickets.Derive(st)
	if err != nil {
		return nil, fmt.Errorf("deriving tickets: %w", err)
	}

	dir := filepath.Join(workflow.Dir(p.root, st.ID), "tickets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	for _, t := range ts {
		data, err := t.RenderMarkdown()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, t.FileName()), data, 0o644); err != nil {
			return nil, err
		}
	}

	summary := tickets.Summarize(ts)
	if err := p.store.SaveWorkflow(st, summary); err != nil {
		return nil, err
	}
	if err := p.store.SaveTickets(st.ID, ts); err != nil {
		return nil, err
	}
	return summary, nil
}
