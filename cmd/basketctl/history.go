package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesops/basket-engine/pkg/db/models"
)

func historyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history CUSTOMER_ID",
		Short: "Print a customer's basket transitions, oldest first",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return err
			}
			_, err := parseID("customer id", args[0])
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, _ := parseID("customer id", args[0])
			entries, err := a.eng.Baskets.ListTransitionLog(cmd.Context(), customerID)
			if err != nil {
				return fmt.Errorf("load transition log: %w", err)
			}
			return writeHistory(cmd.OutOrStdout(), entries)
		},
	}
}

func writeHistory(out io.Writer, entries []models.BasketTransitionLog) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tFROM\tTO\tTYPE\tOWNER\tORDER\tBY\tNOTES")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s->%s\t%s\t%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), strOrDash(e.FromBasketKey), e.ToBasketKey, e.TransitionType,
			idOrDash(e.AssignedToOld), idOrDash(e.AssignedToNew), strOrDash(e.OrderID), idOrDash(e.TriggeredBy), strOrDash(e.Notes))
	}
	return w.Flush()
}

func idOrDash(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}
