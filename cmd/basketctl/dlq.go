package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/salesops/basket-engine/pkg/db/models"
)

func dlqCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and requeue outbox events the publisher gave up on",
	}
	cmd.AddCommand(dlqListCommand(a), dlqRequeueCommand(a))
	return cmd
}

func dlqListCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parked events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := a.outbox.ListParked(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list parked events: %w", err)
			}
			return writeParked(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to print")
	return cmd
}

func dlqRequeueCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue EVENT_ID",
		Short: "Hand a parked event back to the publisher",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return err
			}
			if _, err := uuid.Parse(args[0]); err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID := uuid.MustParse(args[0])
			if err := a.outbox.Requeue(cmd.Context(), eventID); err != nil {
				return fmt.Errorf("requeue %s: %w", eventID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", eventID)
			return nil
		},
	}
}

func writeParked(out io.Writer, rows []models.OutboxDLQ) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT_ID\tTYPE\tAGGREGATE\tREASON\tATTEMPTS\tFAILED_AT\tERROR")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s:%s\t%s\t%d\t%s\t%s\n",
			row.EventID, row.EventType, row.AggregateType, row.AggregateID,
			row.ErrorReason, row.AttemptCount, row.FailedAt.UTC().Format(time.RFC3339), strOrDash(row.ErrorMessage))
	}
	return w.Flush()
}
