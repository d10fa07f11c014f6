package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/salesops/basket-engine/internal/baskets"
)

func sweepCommand(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Move customers out of baskets they have outstayed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.logg.WithField(cmd.Context(), "dry_run", dryRun)
			report, err := a.eng.Sweeper.ProcessAgingCustomers(ctx, dryRun)
			if err != nil {
				return fmt.Errorf("aging sweep: %w", err)
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Err() != nil {
				return fmt.Errorf("aging sweep %w: %v", errPartial, report.Err())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the moves without writing them")
	return cmd
}

func releaseCommand(a *app) *cobra.Command {
	var (
		by    int64
		notes string
	)
	cmd := &cobra.Command{
		Use:   "release CUSTOMER_ID",
		Short: "Return a customer to the unowned pool of their basket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			customerID, err := parseID("customer id", args[0])
			if err != nil {
				return err
			}
			res, err := a.eng.Release.Release(cmd.Context(), baskets.ReleaseRequest{
				CustomerID:  customerID,
				TriggeredBy: optionalID(by),
				Notes:       notes,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().Int64Var(&by, "by", 0, "user id recorded as the trigger")
	cmd.Flags().StringVar(&notes, "notes", "", "note stored on the transition")
	return cmd
}

func distributeCommand(a *app) *cobra.Command {
	var (
		agents []int64
		limit  int
		by     int64
	)
	cmd := &cobra.Command{
		Use:   "distribute BASKET_KEY",
		Short: "Hand unowned customers of a basket to agents in rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.eng.Release.Distribute(cmd.Context(), baskets.DistributeRequest{
				BasketKey:   args[0],
				AgentIDs:    agents,
				Limit:       limit,
				TriggeredBy: optionalID(by),
			})
			if err != nil {
				return err
			}
			return writeBatch(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().Int64SliceVar(&agents, "agents", nil, "agent user ids, in rotation order")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum customers to distribute")
	cmd.Flags().Int64Var(&by, "by", 0, "user id recorded as the trigger")
	_ = cmd.MarkFlagRequired("agents")
	return cmd
}

func reclaimCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reclaim AGENT_ID BASKET_KEY",
		Short: "Pull customers back from an agent into the basket's distribution pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, err := parseID("agent id", args[0])
			if err != nil {
				return err
			}
			report, err := a.eng.Release.Reclaim(cmd.Context(), agentID, args[1], limit)
			if err != nil {
				return err
			}
			return writeBatch(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum customers to reclaim")
	return cmd
}

func catalogCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the active baskets and their role bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := a.eng.Catalog.Current(cmd.Context())
			if err != nil {
				return err
			}
			return writeCatalog(cmd.OutOrStdout(), catalog)
		},
	}
}

func writeCatalog(out io.Writer, catalog *baskets.Catalog) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tROLE\tFAIL_AFTER_DAYS\tMAX_DIST\tON_FAIL")
	for _, cfg := range catalog.Active() {
		role := "-"
		if r, ok := catalog.Role(cfg.BasketKey); ok {
			role = string(r)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			cfg.BasketKey, role, intOrDash(cfg.FailAfterDays), cfg.MaxDistributionCount, strOrDash(cfg.OnFailBasketKey))
	}
	return w.Flush()
}

func writeBatch(out io.Writer, report baskets.BatchReport) error {
	summary := map[string]any{
		"moved":   report.Moved,
		"skipped": report.Skipped,
		"results": report.Results,
	}
	var errs []string
	for _, err := range report.Errors {
		errs = append(errs, err.Error())
	}
	summary["errors"] = errs
	if err := writeJSON(out, summary); err != nil {
		return err
	}
	if report.Err() != nil {
		return fmt.Errorf("batch %w: %v", errPartial, report.Err())
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(what, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, raw)
	}
	return id, nil
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func strOrDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}
