package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/atmx/bet-processor/internal/api"
	"github.com/atmx/bet-processor/internal/model"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Bet    model.Bet
	Status string
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one bet update",
		Long: `Submit one bet update for asynchronous processing.

Example:
  betctl submit --id 1 --amount 100 --odds 2 --client client-1 --status OPEN
  betctl submit --id 1 --amount 100 --odds 2 --client client-1 --status WINNER`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bet := opts.Bet
			bet.Status = model.Status(opts.Status)
			if err := bet.Validate(); err != nil {
				return err
			}

			var resp api.SubmitResponse
			if err := newClient(opts.RootOptions).do(cmd.Context(), http.MethodPost, "/api/v1/bets", bet, &resp); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Format, resp, func(w io.Writer) {
				fmt.Fprintf(w, "accepted bet %d (%s)\n", resp.BetID, resp.Status)
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Bet.ID, "id", 0, "bet id")
	f.Float64Var(&opts.Bet.Amount, "amount", 0, "stake")
	f.Float64Var(&opts.Bet.Odds, "odds", 0, "decimal odds")
	f.StringVar(&opts.Bet.Client, "client", "", "client id")
	f.StringVar(&opts.Bet.Event, "event", "", "event descriptor")
	f.StringVar(&opts.Bet.Market, "market", "", "market descriptor")
	f.StringVar(&opts.Bet.Selection, "selection", "", "selection descriptor")
	f.StringVar(&opts.Status, "status", string(model.StatusOpen), "OPEN|WINNER|LOSER|VOID")
	cmd.MarkFlagRequired("id")

	return cmd
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	var latest bool

	cmd := &cobra.Command{
		Use:           "summary",
		Short:         "Print the running summary",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/summary"
			if latest {
				path += "/latest"
			}
			var sum model.Summary
			if err := newClient(rootOpts).do(cmd.Context(), http.MethodGet, path, nil, &sum); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts.Format, sum, func(w io.Writer) { printSummary(w, sum) })
		},
	}

	cmd.Flags().BoolVar(&latest, "latest", false, "read the last archived snapshot instead of live totals")
	return cmd
}

// NewShutdownCommand creates the shutdown command.
func NewShutdownCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "shutdown",
		Short:         "Drain the processor and print the final summary",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sum model.Summary
			if err := newClient(rootOpts).do(cmd.Context(), http.MethodPost, "/api/v1/shutdown", nil, &sum); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts.Format, sum, func(w io.Writer) { printSummary(w, sum) })
		},
	}
}

// NewReviewsCommand creates the reviews command.
func NewReviewsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "reviews",
		Short:         "List archived review entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/reviews"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			var entries []model.ReviewEntry
			if err := newClient(rootOpts).do(cmd.Context(), http.MethodGet, path, nil, &entries); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts.Format, entries, func(w io.Writer) {
				for _, e := range entries {
					fmt.Fprintf(w, "%d\t%s\t%s\n", e.BetID, e.ReceivedStatus, e.Reason)
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to list (0 = all)")
	return cmd
}

// NewSettlementsCommand creates the settlements command.
func NewSettlementsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "settlements <client>",
		Short:         "List archived settlements for a client",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/clients/" + url.PathEscape(args[0]) + "/settlements"
			var out []model.Settlement
			if err := newClient(rootOpts).do(cmd.Context(), http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer) {
				for _, s := range out {
					fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\n", s.BetID, s.Status, s.Amount, s.PnL)
				}
			})
		},
	}
}

// render writes v as indented JSON or calls text for the text format.
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func printSummary(w io.Writer, sum model.Summary) {
	fmt.Fprintf(w, "processed:      %d\n", sum.TotalProcessed)
	fmt.Fprintf(w, "total amount:   %s\n", sum.TotalAmount)
	fmt.Fprintf(w, "profit/loss:    %s\n", sum.TotalProfitOrLoss)
	fmt.Fprintf(w, "review queue:   %d\n", sum.ReviewQueueSize)
	fmt.Fprintln(w, "top by profit:")
	for _, c := range sum.TopClientsByProfit {
		fmt.Fprintf(w, "  %s\t%s\n", c.Client, c.Amount.StringFixed(2))
	}
	fmt.Fprintln(w, "top by loss:")
	for _, c := range sum.TopClientsByLoss {
		fmt.Fprintf(w, "  %s\t%s\n", c.Client, c.Amount.StringFixed(2))
	}
}
