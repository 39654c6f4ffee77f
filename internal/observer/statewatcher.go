// Package observer watches the workflows directory for state file writes, so
// external consumers (status displays, follow mode) see progress without
// polling every workflow.
package observer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/planforge/planforge/internal/workflow"
)

// StateChangeCallback is called with the ids of workflows whose state files
// changed since the last flush
type StateChangeCallback func(workflowIDs []string)

// StateWatcher monitors workflow directories for state.json writes
type StateWatcher struct {
	watcher  *fsnotify.Watcher
	callback StateChangeCallback
	root     string
	debounce time.Duration

	// Debounce state
	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewStateWatcher creates a watcher over the given workflows directory
func NewStateWatcher(root string, callback StateChangeCallback) (*StateWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sw := &StateWatcher{
		watcher:  watcher,
		callback: callback,
		root:     root,
		debounce: 500 * time.Millisecond, // Batch rapid writes
		pending:  make(map[string]struct{}),
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, err
	}

	// Watch existing workflow directories
	entries, err := os.ReadDir(root)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := watcher.Add(filepath.Join(root, e.Name())); err != nil {
				watcher.Close()
				return nil, err
			}
		}
	}

	return sw, nil
}

// Start begins watching for file changes
func (sw *StateWatcher) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sw.watcher.Events:
				if !ok {
					return
				}
				sw.handleEvent(event)
			case _, ok := <-sw.watcher.Errors:
				if !ok {
					return
				}
				// Keep watching past transient errors
			}
		}
	}()
}

// Stop stops watching for file changes
func (sw *StateWatcher) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.watcher.Close()
}

func (sw *StateWatcher) handleEvent(event fsnotify.Event) {
	// A new workflow directory appears under the root
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if filepath.Dir(event.Name) == sw.root {
				sw.watcher.Add(event.Name)
			}
			return
		}
	}

	// State files land via rename from a temp file
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	if filepath.Base(event.Name) != workflow.StateFileName {
		return
	}

	id := sw.workflowID(event.Name)
	if id == "" {
		return
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pending[id] = struct{}{}
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(sw.debounce, sw.flush)
}

// workflowID extracts the workflow id from a state file path under root
func (sw *StateWatcher) workflowID(path string) string {
	rel, err := filepath.Rel(sw.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

func (sw *StateWatcher) flush() {
	sw.mu.Lock()
	pending := sw.pending
	sw.pending = make(map[string]struct{})
	sw.mu.Unlock()

	if sw.callback == nil || len(pending) == 0 {
		return
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sw.callback(ids)
}

// SetDebounce sets the debounce duration for batching state writes
func (sw *StateWatcher) SetDebounce(d time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.debounce = d
}
