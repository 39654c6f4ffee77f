// Package tickets derives implementation tickets from a completed workflow's
// change-planning findings and renders them as markdown with YAML
// frontmatter.
package tickets

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/planforge/planforge/internal/workflow"
)

// Ticket is one unit of implementation work produced by a plan
type Ticket struct {
	ID            string    `yaml:"id"`
	WorkflowID    string    `yaml:"workflow_id"`
	Seq           int       `yaml:"seq"`
	Title         string    `yaml:"-"`
	Description   string    `yaml:"-"`
	Points        int       `yaml:"points"`
	Risks         []string  `yaml:"risks,omitempty"`
	FilesToCreate []string  `yaml:"files_to_create,omitempty"`
	FilesToModify []string  `yaml:"files_to_modify,omitempty"`
	DependsOn     []string  `yaml:"depends_on,omitempty"`
	CreatedAt     time.Time `yaml:"created_at"`
}

// Derive builds tickets from a workflow's change-planning findings. Workflows
// whose plan produced no tickets yield an empty slice, not an error.
func Derive(st *workflow.State) ([]Ticket, error) {
	findings, ok := st.Context[workflow.PhaseChangePlanning]
	if !ok {
		return nil, nil
	}
	raw, ok := findings["tickets"].([]any)
	if !ok {
		return nil, nil
	}

	now := time.Now().UTC()
	out := make([]Ticket, 0, len(raw))
	for i, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("ticket %d: expected object, got %T", i+1, entry)
		}
		t := Ticket{
			ID:            fmt.Sprintf("%s-T%02d", st.ID, i+1),
			WorkflowID:    st.ID,
			Seq:           i + 1,
			Title:         stringField(m, "title"),
			Description:   stringField(m, "description"),
			Points:        intField(m, "points"),
			Risks:         listField(m, "risks"),
			FilesToCreate: listField(m, "files_to_create"),
			FilesToModify: listField(m, "files_to_modify"),
			DependsOn:     listField(m, "depends_on"),
			CreatedAt:     now,
		}
		if t.Title == "" {
			return nil, fmt.Errorf("ticket %d: missing title", i+1)
		}
		out = append(out, t)
	}
	return out, nil
}

// Summarize aggregates a ticket set into a workflow summary
func Summarize(ts []Ticket) *workflow.Summary {
	s := &workflow.Summary{TicketsCount: len(ts)}
	for _, t := range ts {
		s.StoryPoints += t.Points
		s.FilesToCreate += len(t.FilesToCreate)
		s.FilesToModify += len(t.FilesToModify)
		s.Risks = append(s.Risks, t.Risks...)
	}
	return s
}

// RenderMarkdown renders a ticket as markdown with YAML frontmatter
func (t Ticket) RenderMarkdown() ([]byte, error) {
	fm, err := yaml.Marshal(t)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s\n\n", t.Title)
	if t.Description != "" {
		buf.WriteString(t.Description)
		if !strings.HasSuffix(t.Description, "\n") {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// ParseMarkdown reads a rendered ticket back from markdown
func ParseMarkdown(content []byte) (*Ticket, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return nil, fmt.Errorf("missing frontmatter")
	}
	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return nil, fmt.Errorf("unterminated frontmatter")
	}

	var t Ticket
	if err := yaml.Unmarshal(rest[:endIdx], &t); err != nil {
		return nil, err
	}

	body := bytes.TrimLeft(rest[endIdx+4:], "\n")
	if line, remainder, found := bytes.Cut(body, []byte("\n")); found || len(line) > 0 {
		t.Title = strings.TrimPrefix(strings.TrimSpace(string(line)), "# ")
		t.Description = strings.TrimSpace(string(remainder))
	}
	return &t, nil
}

// FileName returns the on-disk name for a ticket markdown file
func (t Ticket) FileName() string {
	return fmt.Sprintf("ticket_%02d.md", t.Seq)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func listField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
