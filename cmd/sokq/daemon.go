package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sokrates-llm/sokq/internal/daemon"
	"github.com/sokrates-llm/sokq/internal/executor"
	"github.com/sokrates-llm/sokq/internal/platform/openai"
	"github.com/sokrates-llm/sokq/internal/task"
	"github.com/sokrates-llm/sokq/internal/workflows"
)

func newDaemonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background worker process",
	}

	cmd.AddCommand(
		newDaemonStartCmd(a),
		newDaemonStopCmd(a),
		newDaemonRestartCmd(a),
		newDaemonStatusCmd(a),
		newDaemonRunCmd(a),
	)
	return cmd
}

func newDaemonStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pid, err := daemon.Spawn(a.cfg.PIDFilePath(), a.cfg.DaemonLogPath())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon started (pid %d), logging to %s\n",
				pid, a.cfg.DaemonLogPath())
			return nil
		},
	}
}

func newDaemonStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := daemon.Stop(a.cfg.PIDFilePath()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "daemon stopped")
			return nil
		},
	}
}

func newDaemonRestartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemon.Stop(a.cfg.PIDFilePath())
			if err != nil && !errors.Is(err, daemon.ErrNotRunning) {
				return err
			}

			pid, err := daemon.Spawn(a.cfg.PIDFilePath(), a.cfg.DaemonLogPath())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon restarted (pid %d)\n", pid)
			return nil
		},
	}
}

func newDaemonStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := daemon.Status(a.cfg.PIDFilePath())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !info.Running {
				fmt.Fprintln(out, "daemon is not running")
				return nil
			}

			fmt.Fprintf(out, "daemon is running (pid %d)\n", info.PID)
			fmt.Fprintf(out, "uptime:    %s\n", time.Since(info.StartedAt).Round(time.Second))
			fmt.Fprintf(out, "last poll: %s ago\n", time.Since(info.HeartbeatAt).Round(time.Second))

			if err := a.openStore(); err != nil {
				return err
			}
			counts, err := a.svc.Counts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "queue:     %d pending, %d running, %d completed, %d failed, %d cancelled\n",
				counts[task.StatusPending], counts[task.StatusRunning],
				counts[task.StatusCompleted], counts[task.StatusFailed],
				counts[task.StatusCancelled])
			return nil
		},
	}
}

// newDaemonRunCmd runs the loop in the foreground. It is what `daemon
// start` re-executes in the background, and is also useful directly
// under a process supervisor.
func newDaemonRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon loop in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.openStore(); err != nil {
				return err
			}

			client, err := openai.NewClient(a.cfg.LLM, a.logger)
			if err != nil {
				return err
			}

			registry := executor.NewRegistry()
			workflows.Register(registry, client, a.cfg.LLM, a.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d := daemon.New(a.taskStore, registry, daemon.OptionsFromConfig(a.cfg), a.logger)
			return d.Run(ctx)
		},
	}
}
