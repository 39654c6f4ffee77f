package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "planforge",
		Short: "PlanForge - Multi-phase change planning for codebases",
		Long: `PlanForge runs a task description through a fixed sequence of analysis
phases (domain research, tech stack, architecture, conventions, feature
location, impact analysis, change planning) against an existing codebase or
from scratch, and produces reviewed markdown artifacts plus implementation
tickets.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
