package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sokrates-llm/sokq/internal/ops"
	"github.com/sokrates-llm/sokq/internal/task"
)

func newAddCmd(a *app) *cobra.Command {
	var (
		priorityName string
		maxAttempts  int
		payloadJSON  string
		payloadFile  string
	)

	cmd := &cobra.Command{
		Use:   "add <kind> [prompt...]",
		Short: "Submit a task to the queue",
		Long: `Submit a task for background processing. The payload comes from
--payload (inline JSON), --payload-file, or, for prompt-style kinds,
from the remaining arguments joined as the prompt text.

Examples:
  sokq add send-prompt "explain the difference between channels and mutexes"
  sokq add send-prompt --priority urgent --payload '{"prompt":"...","model":"qwen/qwen3-8b"}'
  sokq add breakdown --payload '{"task":"migrate the billing service"}'
  sokq add idea-generation --payload '{"topic":"onboarding friction","count":10}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openStore(); err != nil {
				return err
			}

			kind, err := task.ParseKind(args[0])
			if err != nil {
				return err
			}
			priority, err := task.ParsePriority(priorityName)
			if err != nil {
				return err
			}
			payload, err := resolvePayload(kind, args[1:], payloadJSON, payloadFile)
			if err != nil {
				return err
			}

			id, err := a.svc.Add(cmd.Context(), ops.AddRequest{
				Kind:        kind,
				Payload:     payload,
				Priority:    priority,
				MaxAttempts: maxAttempts,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&priorityName, "priority", "p", "normal",
		"task priority (low, normal, high, urgent)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0,
		"retry ceiling for this task (0 uses the configured default)")
	cmd.Flags().StringVar(&payloadJSON, "payload", "",
		"task payload as inline JSON")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "",
		"path to a JSON file with the task payload")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-file")

	return cmd
}

// resolvePayload builds the payload from whichever source the operator
// used. Bare arguments become the kind's primary text field.
func resolvePayload(kind task.Kind, args []string, payloadJSON, payloadFile string) (json.RawMessage, error) {
	switch {
	case payloadJSON != "":
		return json.RawMessage(payloadJSON), nil

	case payloadFile != "":
		data, err := os.ReadFile(payloadFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		return json.RawMessage(data), nil

	case len(args) > 0:
		text := strings.Join(args, " ")
		field := primaryField(kind)
		return json.Marshal(map[string]string{field: text})

	default:
		return nil, fmt.Errorf("kind %q needs a payload: pass text arguments, --payload, or --payload-file", kind)
	}
}

// primaryField names the payload field that bare text arguments fill.
func primaryField(kind task.Kind) string {
	switch kind {
	case task.KindBreakdown:
		return "task"
	case task.KindIdeaGeneration:
		return "topic"
	default:
		return "prompt"
	}
}
