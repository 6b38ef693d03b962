package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sokrates-llm/sokq/internal/store"
	"github.com/sokrates-llm/sokq/internal/task"
)

func newListCmd(a *app) *cobra.Command {
	var (
		statusName   string
		kindName     string
		priorityName string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.openStore(); err != nil {
				return err
			}

			var filter store.Filter
			filter.Limit = limit

			if statusName != "" {
				status, err := task.ParseStatus(statusName)
				if err != nil {
					return err
				}
				filter.Status = status
			}
			if kindName != "" {
				kind, err := task.ParseKind(kindName)
				if err != nil {
					return err
				}
				filter.Kind = kind
			}
			if priorityName != "" {
				priority, err := task.ParsePriority(priorityName)
				if err != nil {
					return err
				}
				filter.Priority = &priority
			}

			summaries, err := a.svc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no tasks found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tPRIORITY\tSTATUS\tATTEMPTS\tAGE")
			now := time.Now()
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					s.ID, s.Kind, s.Priority.String(), s.Status,
					s.Attempts, now.Sub(s.CreatedAt).Round(time.Second))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&statusName, "status", "",
		"filter by status (pending, running, completed, failed, cancelled)")
	cmd.Flags().StringVar(&kindName, "kind", "",
		"filter by task kind")
	cmd.Flags().StringVarP(&priorityName, "priority", "p", "",
		"filter by priority (low, normal, high, urgent)")
	cmd.Flags().IntVar(&limit, "limit", 0,
		"maximum number of tasks to show (0 shows all)")

	return cmd
}
