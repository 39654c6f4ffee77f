package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StateFileName is the single JSON document persisted per workflow directory
const StateFileName = "state.json"

// Dir returns the directory for a workflow id under the workflows root
func Dir(root, id string) string {
	return filepath.Join(root, id)
}

// Save writes the full state document to the workflow directory, creating it
// if needed. The write goes to a temp file first and is renamed into place so
// a crash mid-write never leaves a torn document. Last writer wins; nothing
// guards against two processes writing the same directory.
func (s *State) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating workflow dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	tmp := filepath.Join(dir, StateFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, StateFileName)); err != nil {
		return fmt.Errorf("replacing state: %w", err)
	}
	return nil
}

// Load reads the state document back from a workflow directory. A missing or
// corrupt file surfaces as an error without side effects. Absent optional
// fields default to their creation-time values, so documents written by older
// versions still load.
func Load(dir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	if err != nil {
		return nil, fmt.Errorf("reading workflow state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding workflow state: %w", err)
	}
	if st.ID == "" {
		return nil, fmt.Errorf("workflow state in %s has no id", dir)
	}
	if st.Phases == nil {
		st.Phases = make(map[string]*PhaseRecord, len(PhaseOrder))
	}
	for _, ph := range PhaseOrder {
		if st.Phases[ph] == nil {
			st.Phases[ph] = &PhaseRecord{Status: PhasePending}
		}
	}
	if st.Context == nil {
		st.Context = make(map[string]Findings)
	}
	if st.Status == "" {
		st.Status = StatusCreated
	}
	return &st, nil
}

// Clone returns an independent deep copy of the state, used when replying to
// synchronous state queries so callers never share memory with the worker
func (s *State) Clone() *State {
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var out State
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}
