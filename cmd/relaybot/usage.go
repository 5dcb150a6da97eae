package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"relaybot/pkg/metrics"
)

func newUsageCmd() *cobra.Command {
	var (
		prometheusURL string
		model         string
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show per-model token usage recorded in Prometheus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := metrics.NewQueryService(prometheusURL)
			if err != nil {
				return err
			}
			ctx, cancel := contextWithTimeout(cmd, timeout)
			defer cancel()

			usage, err := svc.GetUsage(ctx, model)
			if err != nil {
				return fmt.Errorf("query usage: %w", err)
			}
			return printUsage(cmd.OutOrStdout(), usage)
		},
	}

	cmd.Flags().StringVar(&prometheusURL, "prometheus", "http://localhost:9090", "Prometheus server URL")
	cmd.Flags().StringVar(&model, "model", "", "Restrict to one model")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Query timeout")
	return cmd
}

func printUsage(out io.Writer, usage []*metrics.ModelUsage) error {
	if len(usage) == 0 {
		_, err := fmt.Fprintln(out, "No usage recorded.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPROMPT\tCOMPLETION\tTOTAL\tCALLS")
	for _, u := range usage {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", u.Model, u.PromptTokens, u.CompletionTokens, u.TotalTokens, formatCalls(u.Calls))
	}
	return w.Flush()
}

// formatCalls renders outcome counts as "ok=3 timeout=1", sorted by outcome.
func formatCalls(calls map[string]int64) string {
	if len(calls) == 0 {
		return "-"
	}
	outcomes := make([]string, 0, len(calls))
	for outcome := range calls {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)

	parts := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		parts = append(parts, fmt.Sprintf("%s=%d", outcome, calls[outcome]))
	}
	return strings.Join(parts, " ")
}
