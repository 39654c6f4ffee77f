package ticketstore

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
    id TEXT PRIMARY KEY,
    task TEXT NOT NULL,
    source_path TEXT,
    greenfield BOOLEAN DEFAULT FALSE,
    status TEXT NOT NULL,
    tickets_count INTEGER DEFAULT 0,
    story_points INTEGER DEFAULT 0,
    completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);

CREATE TABLE IF NOT EXISTS tickets (
    id TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL REFERENCES workflows(id),
    seq INTEGER NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    points INTEGER DEFAULT 0,
    risks TEXT,
    files_to_create TEXT,
    files_to_modify TEXT,
    depends_on TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tickets_workflow_id ON tickets(workflow_id);
`
