package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRemoveCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Remove a task from the queue",
		Long: `Remove a task. Terminal tasks (completed, failed, cancelled) are
deleted outright. Non-terminal tasks require --force: a pending task
is cancelled before deletion, and a running task is asked to stop
cooperatively before its record is deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openStore(); err != nil {
				return err
			}

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}

			if _, err := a.svc.Remove(cmd.Context(), id, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false,
		"remove non-terminal tasks (cancels pending, stops and removes running)")
	return cmd
}
