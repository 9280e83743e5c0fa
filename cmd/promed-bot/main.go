package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "promed-bot",
		Short:        "Telegram delivery worker for the ProMed patient dashboard",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(migrateCmd())

	return rootCmd
}

func runCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the task dispatcher, Telegram bot, scheduled jobs and operator API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before starting")
	return cmd
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "remind today|tomorrow",
		Short:     "Send injection reminders once",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"today", "tomorrow"},
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, ok := map[string]int{"today": 0, "tomorrow": 1}[args[0]]
			if !ok {
				return fmt.Errorf("unknown day %q, want today or tomorrow", args[0])
			}
			return runReminders(cmd.Context(), offset, cmd.OutOrStdout())
		},
	}
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished tasks older than 24 hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), cmd.OutOrStdout())
		},
	}
}
