// Package maintenance sweeps the workflows directory for orphaned runs:
// workflows whose persisted status says a phase is running but that have no
// live worker behind them, typically left behind by a crash or hard kill.
// Orphans are marked failed on disk so they become resumable.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/planforge/planforge/internal/registry"
	"github.com/planforge/planforge/internal/workflow"
)

// DefaultSchedule runs the sweep every 15 minutes
const DefaultSchedule = "*/15 * * * *"

// Janitor periodically reconciles persisted workflow state against the
// registry of live workers
type Janitor struct {
	reg      *registry.Registry
	root     string
	schedule cron.Schedule

	mu      sync.Mutex
	lastRun time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a janitor sweeping root on the given cron schedule
func New(reg *registry.Registry, root, schedule string) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing janitor schedule: %w", err)
	}
	return &Janitor{
		reg:      reg,
		root:     root,
		schedule: sched,
		stopChan: make(chan struct{}),
	}, nil
}

// NextRun returns the next scheduled sweep time
func (j *Janitor) NextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	last := j.lastRun
	if last.IsZero() {
		last = time.Now()
	}
	return j.schedule.Next(last)
}

// Start begins the sweep loop. Blocks until Stop or ctx cancellation.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopChan:
			return
		case <-ticker.C:
			if j.due() {
				if n, err := j.Sweep(); err != nil {
					log.Printf("janitor: sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("janitor: marked %d orphaned workflows failed", n)
				}
			}
		}
	}
}

// Stop stops the sweep loop
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

func (j *Janitor) due() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	last := j.lastRun
	if last.IsZero() {
		last = time.Now().Add(-24 * time.Hour)
	}
	if !time.Now().After(j.schedule.Next(last)) {
		return false
	}
	j.lastRun = time.Now()
	return true
}

// Sweep scans every workflow directory once and returns how many orphans it
// marked failed
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	marked := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()

		st, err := workflow.Load(workflow.Dir(j.root, id))
		if err != nil {
			log.Printf("janitor: skipping %s: %v", id, err)
			continue
		}
		if !st.Status.IsRunning() {
			continue
		}
		if _, alive := j.reg.Lookup(st.ID); alive {
			continue
		}

		if err := j.markOrphan(st); err != nil {
			log.Printf("janitor: marking %s failed: %v", id, err)
			continue
		}
		marked++
	}
	return marked, nil
}

func (j *Janitor) markOrphan(st *workflow.State) error {
	if phase := st.FirstIncompletePhase(); phase != "" {
		if err := st.FailPhase(phase, fmt.Errorf("worker disappeared mid-phase")); err != nil {
			return err
		}
	} else {
		st.Status = workflow.StatusFailed
	}
	return st.Save(workflow.Dir(j.root, st.ID))
}
