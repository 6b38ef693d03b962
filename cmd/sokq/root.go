package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sokrates-llm/sokq/internal/config"
	"github.com/sokrates-llm/sokq/internal/daemon"
	"github.com/sokrates-llm/sokq/internal/ops"
	"github.com/sokrates-llm/sokq/internal/platform/logger"
	"github.com/sokrates-llm/sokq/internal/platform/sqlite"
	"github.com/sokrates-llm/sokq/internal/store"
)

// Exit codes distinguish error categories for scripting.
const (
	exitOK           = 0
	exitError        = 1
	exitNotFound     = 2
	exitInvalidState = 3
)

// app carries the dependencies shared by all commands, initialized
// once by the root command's PersistentPreRunE.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	taskStore store.TaskStore
	svc       *ops.Service
}

// openStore opens the task database on first use so commands that
// never touch it (daemon status, stop) don't require one.
func (a *app) openStore() error {
	if a.taskStore != nil {
		return nil
	}
	db, err := sqlite.Open(a.cfg.Queue.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open task database: %w", err)
	}
	a.taskStore = sqlite.NewTaskStore(db)
	a.svc = ops.NewService(a.taskStore, a.cfg.Queue.DefaultMaxAttempts, a.logger)
	return nil
}

func (a *app) close() {
	if a.taskStore != nil {
		if err := a.taskStore.Close(); err != nil {
			a.logger.Debug("failed to close task store", "error", err)
		}
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "sokq",
		Short:         "Background task queue for LLM prompt-processing jobs",
		Long: `sokq queues prompt-processing work (send-prompt, refine, breakdown,
idea-generation) and drains it through a background daemon, so long
LLM calls never block an interactive session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			a.cfg = cfg
			a.logger = logger.Setup(cfg.Daemon.LogLevel, cmd.ErrOrStderr())
			return nil
		},
	}

	root.AddCommand(
		newAddCmd(a),
		newListCmd(a),
		newStatusCmd(a),
		newRemoveCmd(a),
		newDaemonCmd(a),
	)
	return root
}

// run executes the CLI and maps the error taxonomy onto exit codes.
func run(args []string) int {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	switch {
	case store.IsNotFound(err):
		return exitNotFound
	case store.IsInvalidState(err):
		return exitInvalidState
	case errors.Is(err, daemon.ErrAlreadyRunning), errors.Is(err, daemon.ErrNotRunning):
		return exitInvalidState
	default:
		return exitError
	}
}
