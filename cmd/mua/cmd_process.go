package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

func newProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run and inspect enrichment on the server",
	}
	cmd.AddCommand(processRunCmd())
	cmd.AddCommand(processStatsCmd())
	return cmd
}

func processRunCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch of queued blocks and artifacts",
		Run: func(cmd *cobra.Command, args []string) {
			report, err := apiClient.Processing.Run(context.Background(), size)
			if err != nil {
				fatal("process run", err)
			}
			output(report, fmt.Sprintf("%d", report.Processed))
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "Batch size (server default when 0)")
	return cmd
}

func processStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count processing records by state",
		Run: func(cmd *cobra.Command, args []string) {
			counts, err := apiClient.Processing.Stats(context.Background())
			if err != nil {
				fatal("process stats", err)
			}
			if flagFmt == "table" {
				states := make([]string, 0, len(counts))
				for s := range counts {
					states = append(states, s)
				}
				slices.Sort(states)

				rows := make([][]string, 0, len(states))
				for _, s := range states {
					rows = append(rows, []string{s, fmt.Sprintf("%d", counts[s])})
				}
				formatTable([]string{"STATE", "COUNT"}, rows)
				return
			}
			output(counts, "")
		},
	}
}
