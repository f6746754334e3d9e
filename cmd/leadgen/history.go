package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyRemote bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past analyses of this installation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		defer tw.Flush()

		if historyRemote {
			reports, err := a.history.RemoteReports(ctx, historyLimit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return json.NewEncoder(out).Encode(reports)
			}
			fmt.Fprintln(tw, "ID\tTYPE\tSOURCE\tCREATED")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.SourceType, r.SourceURL, r.CreatedAt)
			}
			return nil
		}

		reports, err := a.history.List(ctx, historyLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(out).Encode(reports)
		}
		fmt.Fprintln(tw, "ID\tFLOW\tTITLE\tSOURCE\tCREATED")
		for _, r := range reports {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Flow, r.Title, r.Source, r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show the report quota of this installation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		usage, err := a.history.Usage(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return json.NewEncoder(out).Encode(usage)
		}
		fmt.Fprintf(out, "Tier:      %s\n", usage.Tier)
		if left, ok := usage.Remaining(); ok {
			fmt.Fprintf(out, "Used:      %d of %d\n", usage.ReportsGenerated, *usage.Limit)
			fmt.Fprintf(out, "Remaining: %d\n", left)
		} else {
			fmt.Fprintf(out, "Used:      %d (unlimited)\n", usage.ReportsGenerated)
		}
		if usage.ResetDate != nil {
			fmt.Fprintf(out, "Resets:    %s\n", *usage.ResetDate)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of entries")
	historyCmd.Flags().BoolVar(&historyRemote, "remote", false, "list the reports stored by the backend")
}

var emailCmd = &cobra.Command{
	Use:   "email <history-id> <starter-index>",
	Short: "Draft an outreach email from a stored analysis",
	Long: `Draft an outreach email from the summary of a stored analysis and one of
its conversation starters. Starters are numbered from 1 as printed by the
url and pdf commands.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil || index < 1 {
			return fmt.Errorf("invalid starter index %q", args[1])
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()

		draft, err := a.history.DraftEmail(ctx, args[0], index-1)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return json.NewEncoder(out).Encode(draft)
		}
		renderEmail(out, draft)
		return nil
	},
}
