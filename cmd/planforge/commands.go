package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/planforge/planforge/internal/maintenance"
	"github.com/planforge/planforge/internal/observer"
	"github.com/planforge/planforge/internal/workflow"
)

var (
	newSource     string
	newID         string
	replanScope   string
	watchSchedule string
)

func init() {
	// new command
	newCmd := &cobra.Command{
		Use:   "new TASK",
		Short: "Plan a change against an existing codebase",
		Args:  cobra.ExactArgs(1),
		RunE:  runNew,
	}
	newCmd.Flags().StringVar(&newSource, "source", "", "path to the codebase to analyze (required)")
	newCmd.Flags().StringVar(&newID, "id", "", "explicit workflow id")
	newCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(newCmd)

	// new-greenfield command
	greenfieldCmd := &cobra.Command{
		Use:   "new-greenfield TASK",
		Short: "Plan a project from scratch, skipping codebase analysis phases",
		Args:  cobra.ExactArgs(1),
		RunE:  runNewGreenfield,
	}
	greenfieldCmd.Flags().StringVar(&newID, "id", "", "explicit workflow id")
	rootCmd.AddCommand(greenfieldCmd)

	// resume command
	resumeCmd := &cobra.Command{
		Use:   "resume ID",
		Short: "Resume a failed, paused, or interrupted workflow",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
	rootCmd.AddCommand(resumeCmd)

	// answer command
	answerCmd := &cobra.Command{
		Use:   "answer ID ANSWER",
		Short: "Answer a paused workflow's clarifying question and continue it",
		Args:  cobra.ExactArgs(2),
		RunE:  runAnswer,
	}
	rootCmd.AddCommand(answerCmd)

	// replan command
	replanCmd := &cobra.Command{
		Use:   "replan ID",
		Short: "Re-run the planning tail of a completed workflow",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplan,
	}
	replanCmd.Flags().StringVar(&replanScope, "scope", "minimal",
		"replan scope: minimal (change planning only) or full (impact analysis onward)")
	rootCmd.AddCommand(replanCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status ID",
		Short: "Show a workflow's phase progress",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// list command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE:  runList,
	}
	rootCmd.AddCommand(listCmd)

	// tickets command
	ticketsCmd := &cobra.Command{
		Use:   "tickets ID",
		Short: "List a workflow's derived tickets",
		Args:  cobra.ExactArgs(1),
		RunE:  runTickets,
	}
	rootCmd.AddCommand(ticketsCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the workflows directory and report state changes",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchSchedule, "sweep-schedule", maintenance.DefaultSchedule,
		"cron schedule for the orphan sweep")
	rootCmd.AddCommand(watchCmd)

	// sweep command
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark orphaned running workflows as failed",
		RunE:  runSweep,
	}
	rootCmd.AddCommand(sweepCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := os.Stat(newSource); err != nil {
		return fmt.Errorf("source path: %w", err)
	}

	st := workflow.New(args[0], newSource, newID)
	return a.runWorkflow(cmd.Context(), st)
}

func runNewGreenfield(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	st := workflow.NewGreenfield(args[0], newID)
	return a.runWorkflow(cmd.Context(), st)
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.loadState(args[0])
	if err != nil {
		return err
	}
	if st.Status == workflow.StatusCompleted {
		fmt.Printf("Workflow %s already completed\n", st.ID)
		return nil
	}
	if st.Status == workflow.StatusPaused {
		q := st.ClarifyingQuestions[len(st.ClarifyingQuestions)-1]
		return fmt.Errorf("workflow %s is waiting on a question: %q (use answer)", st.ID, q.Question)
	}

	return a.runWorkflow(cmd.Context(), st)
}

func runAnswer(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.loadState(args[0])
	if err != nil {
		return err
	}
	if st.Status != workflow.StatusPaused {
		return fmt.Errorf("workflow %s is not paused (status %s)", st.ID, st.Status)
	}

	if err := st.AnswerQuestion(args[1], st.ResumeStatus()); err != nil {
		return err
	}
	if err := st.Save(workflow.Dir(a.cfg.General.WorkflowsDir, st.ID)); err != nil {
		return err
	}

	return a.runWorkflow(cmd.Context(), st)
}

func runReplan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.loadState(args[0])
	if err != nil {
		return err
	}
	if st.Status != workflow.StatusCompleted {
		return fmt.Errorf("workflow %s has not completed (status %s)", st.ID, st.Status)
	}

	if err := st.Replan(workflow.ReplanScope(replanScope)); err != nil {
		return err
	}
	if err := st.Save(workflow.Dir(a.cfg.General.WorkflowsDir, st.ID)); err != nil {
		return err
	}

	return a.runWorkflow(cmd.Context(), st)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.loadState(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Workflow:  %s\n", st.ID)
	fmt.Printf("Task:      %s\n", st.Task)
	if st.Greenfield() {
		fmt.Printf("Source:    (greenfield)\n")
	} else {
		fmt.Printf("Source:    %s\n", st.SourcePath)
	}
	fmt.Printf("Status:    %s\n", st.Status)
	fmt.Printf("Updated:   %s\n\n", humanize.Time(st.UpdatedAt))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tSTATUS\tDURATION\tARTIFACT")
	for _, ph := range workflow.PhaseOrder {
		rec := st.Phase(ph)
		duration := "-"
		if rec.DurationMs != nil {
			duration = (time.Duration(*rec.DurationMs) * time.Millisecond).Round(time.Second).String()
		}
		artifact := rec.OutputArtifactName
		if artifact == "" {
			artifact = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ph, rec.Status, duration, artifact)
	}
	w.Flush()

	for _, q := range st.ClarifyingQuestions {
		if q.Answer == "" {
			fmt.Printf("\nOpen question (%s): %s\n", humanize.Time(q.AskedAt), q.Question)
		}
	}
	if st.Summary != nil {
		fmt.Printf("\nSummary: %d tickets, %d story points, %d files to create, %d to modify\n",
			st.Summary.TicketsCount, st.Summary.StoryPoints,
			st.Summary.FilesToCreate, st.Summary.FilesToModify)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := os.ReadDir(a.cfg.General.WorkflowsDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No workflows yet")
			return nil
		}
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTASK\tUPDATED")
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st, err := workflow.Load(workflow.Dir(a.cfg.General.WorkflowsDir, e.Name()))
		if err != nil {
			continue
		}
		task := st.Task
		if len(task) > 48 {
			task = task[:45] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.ID, st.Status, task, humanize.Time(st.UpdatedAt))
	}
	w.Flush()
	return nil
}

func runTickets(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ts, err := a.store.ListTickets(args[0])
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		fmt.Printf("No tickets for workflow %s\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPOINTS\tTITLE\tDEPENDS ON")
	for _, t := range ts {
		deps := "-"
		if len(t.DependsOn) > 0 {
			deps = fmt.Sprintf("%v", t.DependsOn)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", t.ID, t.Points, t.Title, deps)
	}
	w.Flush()
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sw, err := observer.NewStateWatcher(a.cfg.General.WorkflowsDir, func(ids []string) {
		for _, id := range ids {
			st, err := a.loadState(id)
			if err != nil {
				continue
			}
			fmt.Printf("%s  %s -> %s\n", time.Now().Format("15:04:05"), st.ID, st.Status)
		}
	})
	if err != nil {
		return err
	}
	sw.Start(ctx)
	defer sw.Stop()

	janitor, err := maintenance.New(a.reg, a.cfg.General.WorkflowsDir, watchSchedule)
	if err != nil {
		return err
	}
	go janitor.Start(ctx)
	defer janitor.Stop()

	fmt.Printf("Watching %s (next sweep %s)\n",
		a.cfg.General.WorkflowsDir, humanize.Time(janitor.NextRun()))
	<-ctx.Done()
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	janitor, err := maintenance.New(a.reg, a.cfg.General.WorkflowsDir, "")
	if err != nil {
		return err
	}
	n, err := janitor.Sweep()
	if err != nil {
		return err
	}
	fmt.Printf("Marked %d orphaned workflows as failed\n", n)
	return nil
}
