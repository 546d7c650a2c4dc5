package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newArtifactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Inspect ingested files and trigger intake scans",
	}
	cmd.AddCommand(artifactListCmd())
	cmd.AddCommand(artifactGetCmd())
	cmd.AddCommand(artifactIngestCmd())
	return cmd
}

func artifactListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			artifacts, err := apiClient.Artifacts.List(context.Background(), status, limit)
			if err != nil {
				fatal("artifact list", err)
			}
			switch flagFmt {
			case "table":
				headers := []string{"ID", "STATUS", "MIME", "SIZE", "TITLE"}
				var rows [][]string
				for _, a := range artifacts {
					rows = append(rows, []string{a.ID, a.IngestStatus, a.MimeType, fmt.Sprintf("%d", a.SizeBytes), preview(a.Title, 40)})
				}
				formatTable(headers, rows)
			case "quiet":
				for _, a := range artifacts {
					formatQuiet(a.ID)
				}
			default:
				output(artifacts, "")
			}
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by ingest status: parsed|linked|error")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max results")
	return cmd
}

func artifactGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an artifact",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			artifact, err := apiClient.Artifacts.Get(context.Background(), args[0])
			if err != nil {
				fatal("artifact get", err)
			}
			output(artifact, artifact.ID)
		},
	}
}

func artifactIngestCmd() *cobra.Command {
	var sourceType string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scan the server's intake directory",
		Run: func(cmd *cobra.Command, args []string) {
			report, err := apiClient.Artifacts.Ingest(context.Background(), sourceType)
			if err != nil {
				fatal("artifact ingest", err)
			}
			output(report, fmt.Sprintf("%d", report.Created))
		},
	}
	cmd.Flags().StringVar(&sourceType, "source-type", "upload", "Source type recorded on new artifacts")
	return cmd
}
