// Package supervisor spawns and tracks worker tasks, one per active
// workflow. A worker's crash is isolated: its registry entry is removed and
// its persisted state stays on disk as the source of truth, but it is never
// restarted automatically — a later resume spawns a fresh worker from that
// state.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/planforge/planforge/internal/registry"
)

// ErrAtCapacity is returned when max parallel workflows are already running
var ErrAtCapacity = errors.New("max parallel workflows reached")

// Task is a runnable worker. ID must be stable for the task's lifetime.
type Task interface {
	ID() string
	Run(ctx context.Context) error
}

// handle tracks one running task
type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns the dynamic set of worker tasks
type Supervisor struct {
	reg *registry.Registry
	sem *semaphore.Weighted

	mu      sync.Mutex
	running map[string]*handle
	wg      sync.WaitGroup
}

// New creates a supervisor capping concurrent workflows at maxParallel
func New(reg *registry.Registry, maxParallel int64) *Supervisor {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Supervisor{
		reg:     reg,
		sem:     semaphore.NewWeighted(maxParallel),
		running: make(map[string]*handle),
	}
}

// Start spawns a worker task under crash isolation. Fails when the id is
// already running or the parallelism cap is reached.
func (s *Supervisor) Start(ctx context.Context, task Task) error {
	id := task.ID()
	if !s.sem.TryAcquire(1) {
		return fmt.Errorf("%w: cannot start %s", ErrAtCapacity, id)
	}

	s.mu.Lock()
	if _, exists := s.running[id]; exists {
		s.mu.Unlock()
		s.sem.Release(1)
		return fmt.Errorf("workflow %s already has a live worker", id)
	}
	tctx, cancel := context.WithCancel(ctx)
	h := &handle{cancel: cancel, done: make(chan struct{})}
	s.running[id] = h
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		defer cancel()
		defer close(h.done)
		defer s.remove(id)
		defer func() {
			// A panicking worker must not take down its siblings. Persisted
			// state on disk remains the source of truth for a later resume.
			if r := recover(); r != nil {
				s.reg.Unregister(id)
				log.Printf("supervisor: worker %s crashed: %v", id, r)
			}
		}()

		if err := task.Run(tctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("supervisor: worker %s exited: %v", id, err)
		}
	}()
	return nil
}

// Stop cancels a worker task and waits for it to exit. Unknown ids are a
// no-op.
func (s *Supervisor) Stop(id string) {
	s.mu.Lock()
	h, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	h.cancel()
	<-h.done
}

// List returns the ids of the currently running worker tasks
func (s *Supervisor) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

// WaitFor blocks until the given worker exits. Returns false for unknown ids.
func (s *Supervisor) WaitFor(id string) bool {
	s.mu.Lock()
	h, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	<-h.done
	return true
}

// Wait blocks until every running worker has exited
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) remove(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}
