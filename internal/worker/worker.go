// Package worker drives one workflow's phase sequencing. Each worker is an
// isolated task that owns its workflow state, persists it after every
// transition, and communicates with the outside world only through its
// registry mailbox.
package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/planforge/planforge/internal/agent"
	"github.com/planforge/planforge/internal/notify"
	"github.com/planforge/planforge/internal/registry"
	"github.com/planforge/planforge/internal/workflow"
)

// AnswerQuestion asks the worker to record an answer to the most recent
// clarifying question and resume. Sent via registry.Call; replies "ok".
type AnswerQuestion struct {
	Answer string
}

// GetState requests a snapshot of the in-memory workflow state. Replies with
// a *workflow.State clone.
type GetState struct{}

// GetResult requests a derived result summary. Replies with Result.
type GetResult struct{}

// Result is the reply to GetResult
type Result struct {
	ID          string
	Status      workflow.Status
	Summary     *workflow.Summary
	FailedPhase string
	Error       string
}

// advance is the worker's internal drive signal
type advance struct{}

// TicketSink persists derived ticket artifacts when a workflow completes and
// returns the resulting summary
type TicketSink interface {
	Publish(st *workflow.State) (*workflow.Summary, error)
}

// Config wires a worker's collaborators
type Config struct {
	Registry *registry.Registry
	Executor agent.Executor
	// Root is the workflows directory; state persists to Root/<id>
	Root     string
	Tickets  TicketSink      // optional
	Notifier notify.Notifier // optional
}

// Worker owns one workflow run
type Worker struct {
	id      string
	dir     string
	state   *workflow.State
	cfg     Config
	mailbox registry.Mailbox
}

// New creates a worker over an existing state (fresh or loaded for resume)
func New(st *workflow.State, cfg Config) *Worker {
	return &Worker{
		id:      st.ID,
		dir:     workflow.Dir(cfg.Root, st.ID),
		state:   st,
		cfg:     cfg,
		mailbox: registry.NewMailbox(),
	}
}

// ID returns the workflow id this worker drives
func (w *Worker) ID() string { return w.id }

// Run registers the worker, persists the state, and drives the advance loop
// until the workflow reaches a terminal status or ctx is cancelled. Every
// transition persists before the next action, so a crash never loses a
// persisted mutation.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.cfg.Registry.Register(w.id, w.mailbox); err != nil {
		return err
	}
	defer w.cfg.Registry.Unregister(w.id)

	if err := w.persist(); err != nil {
		return err
	}
	w.enqueue(advance{})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-w.mailbox:
			done, err := w.handle(ctx, env)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// handle processes one mailbox message. done means the worker stops normally.
func (w *Worker) handle(ctx context.Context, env registry.Envelope) (done bool, err error) {
	switch msg := env.Msg.(type) {
	case advance:
		return w.advance(ctx)

	case agent.PhaseCompleted:
		if err := w.state.CompletePhase(msg.Phase, msg.Findings); err != nil {
			return false, err
		}
		if err := w.persist(); err != nil {
			return false, err
		}
		log.Printf("workflow %s: phase %s completed", w.id, msg.Phase)
		w.enqueue(advance{})
		return false, nil

	case agent.PhaseFailed:
		if err := w.state.FailPhase(msg.Phase, fmt.Errorf("%s", msg.Err)); err != nil {
			return false, err
		}
		if err := w.persist(); err != nil {
			return false, err
		}
		log.Printf("workflow %s: phase %s failed: %s", w.id, msg.Phase, msg.Err)
		w.notify(notify.NotifyError, "Workflow failed",
			fmt.Sprintf("Phase %s failed: %s", msg.Phase, msg.Err))
		return true, nil

	case agent.PhaseQuestion:
		w.state.Pause(msg.Question)
		if err := w.persist(); err != nil {
			return false, err
		}
		log.Printf("workflow %s: paused on question from %s", w.id, msg.Phase)
		w.notify(notify.NotifyWarning, "Workflow paused", msg.Question)
		return false, nil

	case AnswerQuestion:
		resume := w.state.ResumeStatus()
		if err := w.state.AnswerQuestion(msg.Answer, resume); err != nil {
			w.reply(env, err)
			return false, nil
		}
		if err := w.persist(); err != nil {
			return false, err
		}
		w.enqueue(advance{})
		w.reply(env, "ok")
		return false, nil

	case GetState:
		w.reply(env, w.state.Clone())
		return false, nil

	case GetResult:
		w.reply(env, w.result())
		return false, nil

	default:
		log.Printf("workflow %s: ignoring unexpected message %T", w.id, env.Msg)
		return false, nil
	}
}

// advance runs the next incomplete phase, or finalizes the workflow when
// nothing remains
func (w *Worker) advance(ctx context.Context) (done bool, err error) {
	phase := w.state.FirstIncompletePhase()
	if phase == "" {
		return true, w.finalize()
	}

	if err := w.state.StartPhase(phase); err != nil {
		return false, err
	}
	if err := w.persist(); err != nil {
		return false, err
	}
	log.Printf("workflow %s: starting phase %s", w.id, phase)

	w.cfg.Executor.ExecutePhase(ctx, agent.PhaseRequest{
		WorkflowID:         w.id,
		ProjectDir:         w.dir,
		SourcePath:         w.state.SourcePath,
		Task:               w.state.Task,
		Phase:              phase,
		Context:            w.state.ProjectContext(phase),
		OutputArtifactName: workflow.ArtifactName(phase),
	})
	// Block internal progression until the phase's notification arrives;
	// phases within one workflow never overlap
	return false, nil
}

// finalize attaches the summary, publishes ticket artifacts, and persists the
// completed state
func (w *Worker) finalize() error {
	w.state.Status = workflow.StatusCompleted
	summary := w.state.ComputeSummary()
	if w.cfg.Tickets != nil {
		if s, err := w.cfg.Tickets.Publish(w.state); err != nil {
			log.Printf("workflow %s: publishing tickets: %v", w.id, err)
		} else if s != nil {
			summary = s
		}
	}
	w.state.Summary = summary
	if err := w.persist(); err != nil {
		return err
	}
	log.Printf("workflow %s: completed, %d tickets", w.id, summary.TicketsCount)
	w.notify(notify.NotifySuccess, "Workflow completed",
		fmt.Sprintf("%d tickets, %d story points", summary.TicketsCount, summary.StoryPoints))
	return nil
}

func (w *Worker) result() Result {
	res := Result{
		ID:      w.id,
		Status:  w.state.Status,
		Summary: w.state.Summary,
	}
	for _, ph := range workflow.PhaseOrder {
		if rec := w.state.Phase(ph); rec != nil && rec.Status == workflow.PhaseFailed {
			res.FailedPhase = ph
			res.Error = rec.Error
			break
		}
	}
	return res
}

func (w *Worker) persist() error {
	if err := w.state.Save(w.dir); err != nil {
		return fmt.Errorf("workflow %s: %w", w.id, err)
	}
	return nil
}

func (w *Worker) enqueue(msg registry.Message) {
	w.mailbox <- registry.Envelope{Msg: msg}
}

func (w *Worker) reply(env registry.Envelope, msg registry.Message) {
	if env.Reply != nil {
		env.Reply <- msg
	}
}

func (w *Worker) notify(typ notify.NotificationType, title, message string) {
	if w.cfg.Notifier == nil {
		return
	}
	if err := w.cfg.Notifier.Send(notify.Notification{
		Title:      title,
		Message:    message,
		Type:       typ,
		WorkflowID: w.id,
	}); err != nil {
		log.Printf("workflow %s: notification failed: %v", w.id, err)
	}
}
