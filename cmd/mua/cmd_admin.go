package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}
	cmd.AddCommand(adminHealthCmd())
	cmd.AddCommand(adminStatsCmd())
	cmd.AddCommand(adminBackfillCmd())
	return cmd
}

func adminHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := apiClient.Health(context.Background())
			if err != nil {
				fatal("health", err)
			}
			output(resp, resp.Status)
		},
	}
}

func adminStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := apiClient.Stats(context.Background())
			if err != nil {
				fatal("stats", err)
			}
			if flagFmt == "table" {
				formatTable(
					[]string{"METRIC", "VALUE"},
					[][]string{
						{"User blocks", fmt.Sprintf("%d", resp.UserBlocks)},
						{"Mua blocks", fmt.Sprintf("%d", resp.MuaBlocks)},
						{"Entities", fmt.Sprintf("%d", resp.Entities)},
						{"Links", fmt.Sprintf("%d", resp.Links)},
						{"Artifacts", fmt.Sprintf("%d", resp.Artifacts)},
						{"Open questions", fmt.Sprintf("%d", resp.OpenClarifications)},
						{"Embeddings done", fmt.Sprintf("%d", resp.EmbeddingsComplete)},
					},
				)
				return
			}
			output(resp, "")
		},
	}
}

func adminBackfillCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "backfill-embeddings",
		Short: "Queue embedding generation for blocks with missing or stale embeddings",
		Run: func(cmd *cobra.Command, args []string) {
			queued, err := apiClient.Admin.BackfillEmbeddings(context.Background(), limit)
			if err != nil {
				fatal("backfill", err)
			}
			output(map[string]int{"queued": queued}, fmt.Sprintf("%d", queued))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Max blocks to queue (server default when 0)")
	return cmd
}
