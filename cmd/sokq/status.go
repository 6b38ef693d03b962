package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sokrates-llm/sokq/internal/task"
)

func newStatusCmd(a *app) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the state of one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openStore(); err != nil {
				return err
			}

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}

			t, err := a.svc.Status(cmd.Context(), id)
			if err != nil {
				return err
			}

			printTask(cmd.OutOrStdout(), t, verbose)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"include payload, result, and error detail")
	return cmd
}

func printTask(w io.Writer, t *task.Task, verbose bool) {
	fmt.Fprintf(w, "ID:           %s\n", t.ID)
	fmt.Fprintf(w, "Kind:         %s\n", t.Kind)
	fmt.Fprintf(w, "Priority:     %s\n", t.Priority.String())
	fmt.Fprintf(w, "Status:       %s\n", t.Status)
	fmt.Fprintf(w, "Attempts:     %d/%d\n", t.Attempts, t.MaxAttempts)
	fmt.Fprintf(w, "Created:      %s\n", t.CreatedAt.Local().Format(time.RFC3339))
	if !t.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started:      %s\n", t.StartedAt.Local().Format(time.RFC3339))
	}
	if !t.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Finished:     %s\n", t.FinishedAt.Local().Format(time.RFC3339))
	}
	if t.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:        %s (%s)\n", t.ErrorMessage, t.ErrorClass)
	}
	if t.StopRequested {
		fmt.Fprintln(w, "Stop:         requested")
	}

	if !verbose {
		return
	}
	fmt.Fprintf(w, "Payload:      %s\n", t.Payload)
	if len(t.Result) > 0 {
		fmt.Fprintf(w, "Result:       %s\n", t.Result)
	}
	if t.LockOwner != "" {
		fmt.Fprintf(w, "Lock owner:   %s\n", t.LockOwner)
	}
	if !t.LockExpiry.IsZero() {
		fmt.Fprintf(w, "Lock expiry:  %s\n", t.LockExpiry.Local().Format(time.RFC3339))
	}
}
