package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/planforge/planforge/internal/agent"
	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/llm"
	"github.com/planforge/planforge/internal/notify"
	"github.com/planforge/planforge/internal/registry"
	"github.com/planforge/planforge/internal/supervisor"
	"github.com/planforge/planforge/internal/ticketstore"
	"github.com/planforge/planforge/internal/worker"
	"github.com/planforge/planforge/internal/workflow"
)

// app wires the in-process runtime: registry, supervisor, generation client,
// ticket store, and notifiers
type app struct {
	cfg      *config.Config
	reg      *registry.Registry
	sup      *supervisor.Supervisor
	runner   *agent.Runner
	store    *ticketstore.Store
	notifier notify.Notifier
}

func newApp() (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	store, err := ticketstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening ticket database: %w", err)
	}

	reg := registry.New()
	client := buildClient(cfg)

	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}

	return &app{
		cfg:      cfg,
		reg:      reg,
		sup:      supervisor.New(reg, int64(cfg.General.MaxParallelWorkflows)),
		runner:   agent.NewRunner(client, reg, cfg.LLM.DefaultProvider),
		store:    store,
		notifier: notify.NewMultiNotifier(notifiers...),
	}, nil
}

func (a *app) close() {
	a.store.Close()
}

// buildClient assembles the generation client from the configured providers
func buildClient(cfg *config.Config) *llm.Client {
	client := llm.NewClient(llm.ClientConfig{
		DefaultProvider:  cfg.LLM.DefaultProvider,
		FallbackProvider: cfg.LLM.FallbackProvider,
		MaxRetries:       cfg.LLM.MaxRetries,
		BackoffBase:      time.Duration(cfg.LLM.BackoffBaseMs) * time.Millisecond,
		BackoffMax:       time.Duration(cfg.LLM.BackoffMaxMs) * time.Millisecond,
	})

	timeout := time.Duration(cfg.LLM.RequestTimeoutSecs) * time.Second
	for name, pc := range cfg.Providers {
		provider := llm.ProviderConfig{
			Model:       pc.Model,
			APIKey:      pc.APIKey(),
			BaseURL:     pc.BaseURL,
			Temperature: pc.Temperature,
			MaxTokens:   pc.MaxTokens,
			Timeout:     timeout,
		}
		switch name {
		case "anthropic":
			client.Register(llm.NewAnthropicProvider(provider))
		case "openai":
			client.Register(llm.NewOpenAIProvider(provider))
		default:
			fmt.Fprintf(os.Stderr, "warning: unknown provider %q in config, skipping\n", name)
		}
	}
	return client
}

// runWorkflow spawns a worker for st and follows it to a stop, answering
// clarifying questions interactively from stdin
func (a *app) runWorkflow(ctx context.Context, st *workflow.State) error {
	w := worker.New(st, worker.Config{
		Registry: a.reg,
		Executor: a.runner,
		Root:     a.cfg.General.WorkflowsDir,
		Tickets:  ticketstore.NewPublisher(a.store, a.cfg.General.WorkflowsDir),
		Notifier: a.notifier,
	})

	if err := a.sup.Start(ctx, w); err != nil {
		return err
	}
	fmt.Printf("Workflow %s started\n", st.ID)

	done := make(chan struct{})
	go func() {
		a.sup.WaitFor(st.ID)
		close(done)
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	var answered int

	for {
		select {
		case <-done:
			return a.printOutcome(st)
		case <-ticker.C:
			snap, err := a.reg.Call(st.ID, worker.GetState{}, 2*time.Second)
			if err != nil {
				continue
			}
			cur := snap.(*workflow.State)
			if cur.Status != workflow.StatusPaused || len(cur.ClarifyingQuestions) <= answered {
				continue
			}

			q := cur.ClarifyingQuestions[len(cur.ClarifyingQuestions)-1]
			fmt.Printf("\nQuestion: %s\n> ", q.Question)
			reader := bufio.NewReader(os.Stdin)
			answer, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading answer: %w", err)
			}
			if _, err := a.reg.Call(st.ID, worker.AnswerQuestion{Answer: answer}, 5*time.Second); err != nil {
				return fmt.Errorf("delivering answer: %w", err)
			}
			answered = len(cur.ClarifyingQuestions)
		}
	}
}

func (a *app) printOutcome(st *workflow.State) error {
	switch st.Status {
	case workflow.StatusCompleted:
		sum := st.Summary
		if sum == nil {
			sum = st.ComputeSummary()
		}
		fmt.Printf("Workflow %s completed: %d tickets, %d story points\n",
			st.ID, sum.TicketsCount, sum.StoryPoints)
		fmt.Printf("Artifacts in %s\n", workflow.Dir(a.cfg.General.WorkflowsDir, st.ID))
		return nil
	case workflow.StatusFailed:
		for _, ph := range workflow.PhaseOrder {
			if rec := st.Phase(ph); rec != nil && rec.Status == workflow.PhaseFailed {
				return fmt.Errorf("workflow %s failed at %s: %s", st.ID, ph, rec.Error)
			}
		}
		return fmt.Errorf("workflow %s failed", st.ID)
	default:
		return fmt.Errorf("workflow %s stopped with status %s", st.ID, st.Status)
	}
}

func (a *app) loadState(id string) (*workflow.State, error) {
	st, err := workflow.Load(workflow.Dir(a.cfg.General.WorkflowsDir, id))
	if err != nil {
		return nil, fmt.Errorf("loading workflow %s: %w", id, err)
	}
	return st, nil
}
