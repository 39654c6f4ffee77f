package maintenance

import (
	"strings"
	"testing"
	"time"

	"github.com/planforge/planforge/internal/registry"
	"github.com/planforge/planforge/internal/workflow"
)

func TestSweep_MarksOrphanedRunningWorkflow(t *testing.T) {
	root := t.TempDir()
	reg := registry.New()

	st := workflow.New("Add OAuth login", "/repo", "wf-orphan")
	if err := st.StartPhase(workflow.PhaseDomainResearch); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(workflow.Dir(root, "wf-orphan")); err != nil {
		t.Fatal(err)
	}

	j, err := New(reg, root, "")
	if err != nil {
		t.Fatal(err)
	}
	n, err := j.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d orphans marked, want 1", n)
	}

	loaded, err := workflow.Load(workflow.Dir(root, "wf-orphan"))
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != workflow.StatusFailed {
		t.Errorf("got status=%s, want failed", loaded.Status)
	}
	rec := loaded.Phase(workflow.PhaseDomainResearch)
	if rec.Status != workflow.PhaseFailed {
		t.Errorf("got phase status=%s, want failed", rec.Status)
	}
	if !strings.Contains(rec.Error, "disappeared") {
		t.Errorf("got error=%q", rec.Error)
	}
}

func TestSweep_SkipsLiveWorker(t *testing.T) {
	root := t.TempDir()
	reg := registry.New()
	reg.Register("wf-live", registry.NewMailbox())

	st := workflow.New("task", "/repo", "wf-live")
	if err := st.StartPhase(workflow.PhaseDomainResearch); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(workflow.Dir(root, "wf-live")); err != nil {
		t.Fatal(err)
	}

	j, err := New(reg, root, "")
	if err != nil {
		t.Fatal(err)
	}
	n, err := j.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("got %d orphans marked, want 0", n)
	}

	loaded, err := workflow.Load(workflow.Dir(root, "wf-live"))
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Status.IsRunning() {
		t.Errorf("got status=%s, want running", loaded.Status)
	}
}

func TestSweep_IgnoresTerminalAndPausedWorkflows(t *testing.T) {
	root := t.TempDir()

	done := workflow.New("done", "/repo", "wf-done")
	done.Status = workflow.StatusCompleted
	if err := done.Save(workflow.Dir(root, "wf-done")); err != nil {
		t.Fatal(err)
	}
	paused := workflow.New("paused", "/repo", "wf-paused")
	paused.Pause("Which provider?")
	if err := paused.Save(workflow.Dir(root, "wf-paused")); err != nil {
		t.Fatal(err)
	}

	j, err := New(registry.New(), root, "")
	if err != nil {
		t.Fatal(err)
	}
	n, err := j.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("got %d orphans marked, want 0", n)
	}
}

func TestSweep_MissingRoot(t *testing.T) {
	j, err := New(registry.New(), "/nonexistent/planforge-test", "")
	if err != nil {
		t.Fatal(err)
	}
	if n, err := j.Sweep(); err != nil || n != 0 {
		t.Errorf("got n=%d err=%v, want 0, nil", n, err)
	}
}

func TestNew_BadSchedule(t *testing.T) {
	if _, err := New(registry.New(), t.TempDir(), "not a cron expr"); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestNextRun(t *testing.T) {
	j, err := New(registry.New(), t.TempDir(), "*/15 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	next := j.NextRun()
	if !next.After(time.Now()) {
		t.Errorf("got next run %v, want in the future", next)
	}
}
