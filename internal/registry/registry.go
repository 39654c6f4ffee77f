// Package registry maps workflow ids to the mailboxes of their live worker
// tasks so external callers can route queries and notifications. One live
// worker per workflow id is enforced at registration.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when no worker is registered under an id
var ErrNotFound = errors.New("workflow not registered")

// ErrTimeout is returned when a synchronous call exceeds its bounded wait.
// Distinct from ErrNotFound so callers can decide whether to retry.
var ErrTimeout = errors.New("call timed out")

// ErrMailboxFull is returned when a notification cannot be enqueued because
// the worker stopped draining its mailbox
var ErrMailboxFull = errors.New("mailbox full")

// Message is any payload routed to a worker
type Message any

// Envelope wraps a message with an optional reply channel. Reply is nil for
// fire-and-forget notifications.
type Envelope struct {
	Msg   Message
	Reply chan Message
}

// Mailbox is a worker's inbound message queue. Workers create it buffered and
// drain it until they stop.
type Mailbox chan Envelope

// DefaultMailboxSize comfortably covers a workflow's lifetime message volume
const DefaultMailboxSize = 32

// NewMailbox creates a mailbox with the default buffer
func NewMailbox() Mailbox {
	return make(Mailbox, DefaultMailboxSize)
}

// Registry tracks live workers by workflow id
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Mailbox
}

// New creates an empty registry
func New() *Registry {
	return &Registry{workers: make(map[string]Mailbox)}
}

// Register associates a mailbox with a workflow id. Fails if the id already
// has a live worker.
func (r *Registry) Register(id string, mb Mailbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workers[id]; exists {
		return fmt.Errorf("workflow %s already registered", id)
	}
	r.workers[id] = mb
	return nil
}

// Unregister removes a workflow's entry. Safe to call for unknown ids.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}

// Lookup returns the mailbox for an id
func (r *Registry) Lookup(id string) (Mailbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mb, ok := r.workers[id]
	return mb, ok
}

// IDs returns the ids of all live workers
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live workers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Call sends a message and waits up to timeout for a reply
func (r *Registry) Call(id string, msg Message, timeout time.Duration) (Message, error) {
	mb, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	reply := make(chan Message, 1)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case mb <- Envelope{Msg: msg, Reply: reply}:
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrTimeout, id)
	}
	select {
	case resp := <-reply:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrTimeout, id)
	}
}

// Send delivers a fire-and-forget notification. Used for phase completion
// and failure signals so phase executors never block on the engine: a full
// mailbox fails with ErrMailboxFull instead of blocking the sender.
func (r *Registry) Send(id string, msg Message) error {
	mb, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	select {
	case mb <- Envelope{Msg: msg}:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrMailboxFull, id)
	}
}
